package experiment

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidCorrelationID is returned when a correlation token cannot be
// decoded or fails field validation.
var ErrInvalidCorrelationID = errors.New("invalid correlation id")

// Correlation carries the identity of one served recommendation through the
// client and back, so a later outcome can be attributed to the exact
// (experiment, user, variation, rank) that produced it. It is encoded as
// URL-safe base64 over compact JSON; the token is opaque to clients.
type Correlation struct {
	ExperimentID string `json:"e"`
	UserID       string `json:"u"`
	VariationKey string `json:"v"`
	ResultRank   int    `json:"r"`
}

// Encode serializes the correlation into an opaque URL-safe token.
func (c Correlation) Encode() string {
	payload, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(payload)
}

// DecodeCorrelation parses and validates a correlation token. Every field
// must be present: a token missing its experiment, user or variation cannot
// be attributed and is rejected.
func DecodeCorrelation(token string) (Correlation, error) {
	if token == "" {
		return Correlation{}, ErrInvalidCorrelationID
	}
	payload, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Correlation{}, fmt.Errorf("%w: %v", ErrInvalidCorrelationID, err)
	}

	var c Correlation
	if err := json.Unmarshal(payload, &c); err != nil {
		return Correlation{}, fmt.Errorf("%w: %v", ErrInvalidCorrelationID, err)
	}
	if c.ExperimentID == "" || c.UserID == "" || c.VariationKey == "" {
		return Correlation{}, ErrInvalidCorrelationID
	}
	if c.ResultRank < 0 {
		return Correlation{}, ErrInvalidCorrelationID
	}
	return c, nil
}
