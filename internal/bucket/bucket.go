// Package bucket provides deterministic user-to-variation assignment for experiments.
package bucket

import (
	"github.com/cespare/xxhash/v2"
)

// VariationIndex returns a deterministic variation index in [0, count) for the
// given experiment identity and user. The same (feature, name, userID) always
// maps to the same index for a fixed variation count, so a user stays in the
// same variation for the lifetime of an experiment. Renaming the experiment or
// moving it to another feature re-randomizes all users.
func VariationIndex(feature, name, userID string, count int) int {
	if userID == "" || count <= 0 {
		return -1 // Invalid: no user context or no variations
	}
	key := "experiments." + feature + "." + name + "." + userID
	hash := xxhash.Sum64String(key)
	return int(hash % uint64(count))
}
