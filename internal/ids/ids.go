// Package ids generates identifiers for requests and audit entries.
package ids

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// New returns a lexicographically sortable identifier.
func New() string {
	return ulid.Make().String()
}

// Timestamp reports when id was generated. ok is false for anything that is
// not a ULID, such as a request id supplied by an upstream proxy.
func Timestamp(id string) (ts time.Time, ok bool) {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(parsed.Time()), true
}
