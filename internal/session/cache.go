// Package session holds the per-process record of whether the current
// access token has been validated against the identity service.
package session

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// State is the tri-state authentication flag.
type State int

const (
	Unknown State = iota
	Authenticated
	Unauthenticated
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "authenticated":
		*s = Authenticated
	case "unauthenticated":
		*s = Unauthenticated
	case "unknown", "":
		*s = Unknown
	default:
		return errors.New("session: unknown state " + strconv.Quote(string(b)))
	}
	return nil
}

// Snapshot is a point-in-time copy of the cache.
type Snapshot struct {
	Authenticated State `json:"authenticated"`
	Validating    bool  `json:"validating"`

	// Generation changes on every Reset; pass it to SetAuthenticatedAt.
	Generation uint64 `json:"-"`
}

// Known reports whether the state is authoritative.
func (s Snapshot) Known() bool { return s.Authenticated != Unknown }

// ErrStale is returned to callers of a validation that was overtaken by
// Reset before it completed. Its result is not recorded.
var ErrStale = errors.New("session: reset during validation")

// ValidateFunc asks the identity service whether the current token is valid.
type ValidateFunc func(ctx context.Context) (bool, error)

// Cache is safe for concurrent use. The zero value is not usable; call New.
type Cache struct {
	mu         sync.Mutex
	state      State
	validating bool
	gen        uint64

	flights singleflight.Group
}

// New returns a cache in the Unknown state.
func New() *Cache {
	return &Cache{state: Unknown}
}

// State returns the current snapshot.
func (c *Cache) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{Authenticated: c.state, Validating: c.validating, Generation: c.gen}
}

// SetAuthenticated records a validation outcome and clears the validating
// flag.
func (c *Cache) SetAuthenticated(ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(ok)
}

// SetAuthenticatedAt records ok only if no Reset happened since the
// snapshot with generation gen was taken. It reports whether it recorded.
func (c *Cache) SetAuthenticatedAt(gen uint64, ok bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.setLocked(ok)
	return true
}

// Reset returns the cache to Unknown. A validation still in flight will not
// record its result.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Unknown
	c.validating = false
	c.gen++
}

// Validate resolves an Unknown state by calling fn. Concurrent callers share
// one call. fn runs detached from ctx cancellation; a caller whose ctx ends
// stops waiting and gets ctx.Err() while the shared call still records its
// outcome. A failed call records Unauthenticated. When the state is already
// known it is returned without calling fn.
func (c *Cache) Validate(ctx context.Context, fn ValidateFunc) (bool, error) {
	c.mu.Lock()
	if c.state != Unknown {
		ok := c.state == Authenticated
		c.mu.Unlock()
		return ok, nil
	}
	gen := c.gen
	c.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	ch := c.flights.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		return c.run(detached, gen, fn)
	})

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		return res.Val.(bool), nil
	}
}

func (c *Cache) run(ctx context.Context, gen uint64, fn ValidateFunc) (bool, error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return false, ErrStale
	}
	if c.state != Unknown {
		ok := c.state == Authenticated
		c.mu.Unlock()
		return ok, nil
	}
	c.validating = true
	c.mu.Unlock()

	ok, err := fn(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false, ErrStale
	}
	if err != nil {
		c.setLocked(false)
		return false, err
	}
	c.setLocked(ok)
	return ok, nil
}

func (c *Cache) setLocked(ok bool) {
	if ok {
		c.state = Authenticated
	} else {
		c.state = Unauthenticated
	}
	c.validating = false
}
