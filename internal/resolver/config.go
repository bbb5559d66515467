package resolver

import (
	"errors"
	"fmt"
)

// Resolver type tags. Experiment variations name their resolver by tag in
// persisted configuration; the factory maps the tag back to a concrete type.
const (
	TypeProduct         = "product"
	TypeSimilar         = "similar"
	TypeRecommendations = "personalize-recommendations"
	TypeRanking         = "personalize-ranking"
	TypeRankingNoOp     = "ranking-no-op"
	TypeHTTP            = "http"
)

// ErrUnknownType is returned by the factory for an unregistered resolver type tag.
var ErrUnknownType = errors.New("unknown resolver type")

// Config is the persisted, loosely-typed form of a variation's resolver
// parameters. Only the fields relevant to the tagged type are consulted;
// Validate performs the required-field check at the decode boundary so that
// misconfiguration fails at experiment load time rather than mid-request.
type Config struct {
	Type string `json:"type" yaml:"type"`

	// Inference resolvers (personalize-recommendations, personalize-ranking).
	CampaignARN string `json:"campaignArn,omitempty" yaml:"campaignArn,omitempty"`
	FilterARN   string `json:"filterArn,omitempty" yaml:"filterArn,omitempty"`

	// Generic HTTP resolver. The param names have sane defaults.
	BaseURL         string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`
	UserParam       string `json:"userParam,omitempty" yaml:"userParam,omitempty"`
	ItemParam       string `json:"itemParam,omitempty" yaml:"itemParam,omitempty"`
	NumResultsParam string `json:"numResultsParam,omitempty" yaml:"numResultsParam,omitempty"`
}

// Validate checks that the config carries every field its resolver type
// requires. Missing required parameters are construction-time failures,
// never silently defaulted.
func (c Config) Validate() error {
	switch c.Type {
	case TypeProduct, TypeSimilar, TypeRankingNoOp:
		return nil
	case TypeRecommendations, TypeRanking:
		if c.CampaignARN == "" {
			return fmt.Errorf("resolver type %q requires campaignArn", c.Type)
		}
		return nil
	case TypeHTTP:
		if c.BaseURL == "" {
			return fmt.Errorf("resolver type %q requires baseUrl", c.Type)
		}
		return nil
	case "":
		return errors.New("resolver type is required")
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, c.Type)
	}
}
