package store

import "github.com/google/uuid"

// newID generates an opaque, collision-resistant identifier prefixed by
// entity kind, e.g. "sess-3fa85f64...". No code relies on ordering of ids.
func newID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
