package util

import "github.com/google/uuid"

// NewID returns a fresh random id, optionally namespaced by prefix.
// Prefixes keep session and wizard ids recognizable in logs and in
// component custom-ids.
func NewID(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
