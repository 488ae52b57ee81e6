package util

import (
	"crypto/rand"
	"strings"

	"github.com/oklog/ulid/v2"
)

// NewID returns a lexicographically sortable identifier, optionally prefixed.
// Clients assign ids before persistence, so creates can be applied
// optimistically and broadcast under the same id everywhere.
func NewID(prefix string) string {
	id := strings.ToLower(ulid.MustNew(ulid.Now(), rand.Reader).String())
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
