// Package blob writes objects to durable storage under caller-chosen, deterministic keys.
// Every backend overwrites existing objects and never randomizes names, so repeated writes
// of the same key are idempotent.
package blob

import (
	"context"
	"net/url"
	"strings"
)

// Store closes over how we persist objects
type Store interface {
	// Put writes data under key, replacing any previous object, and returns the
	// externally resolvable location of the object.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// objectURL joins a base URL and an object key, escaping each key segment.
func objectURL(base, key string) string {
	segments := strings.Split(strings.TrimPrefix(key, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.Join(segments, "/")
}
