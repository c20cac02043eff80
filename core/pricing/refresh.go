package pricing

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxAge is how old the cache file may be before a refresh is offered.
const DefaultMaxAge = 24 * time.Hour

// Decision is the outcome of the refresh policy.
type Decision int

const (
	// KeepCache uses the cache file as is
	KeepCache Decision = iota

	// RefreshNow rebuilds the cache without asking
	RefreshNow

	// RefreshIfConfirmed rebuilds the cache only if the operator agrees
	RefreshIfConfirmed
)

func (d Decision) String() string {
	switch d {
	case KeepCache:
		return "keep"
	case RefreshNow:
		return "refresh"
	case RefreshIfConfirmed:
		return "refresh-if-confirmed"
	default:
		return "unknown"
	}
}

// Decide applies the refresh policy:
//   - no file: refresh, no question asked
//   - force: refresh, no question asked
//   - age <= maxAge: keep
//   - age > maxAge: ask
func Decide(fileExists bool, age time.Duration, force bool, maxAge time.Duration) Decision {
	switch {
	case !fileExists, force:
		return RefreshNow
	case age <= maxAge:
		return KeepCache
	default:
		return RefreshIfConfirmed
	}
}

// ShouldRefresh is Decide with the default 24 hour threshold, folding in the
// operator's answer for the stale case.
func ShouldRefresh(fileExists bool, age time.Duration, force, userConfirmed bool) bool {
	switch Decide(fileExists, age, force, DefaultMaxAge) {
	case RefreshNow:
		return true
	case RefreshIfConfirmed:
		return userConfirmed
	default:
		return false
	}
}

// Refresher rebuilds the cache file at path from the bulk price source.
type Refresher interface {
	Refresh(ctx context.Context, path string) error
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context, path string) error

// Refresh calls f
func (f RefresherFunc) Refresh(ctx context.Context, path string) error {
	return f(ctx, path)
}

// Confirmer asks the operator a yes/no question.
type Confirmer interface {
	Confirm(question string) (bool, error)
}

// RefreshOutcome describes what the controller did.
type RefreshOutcome struct {
	FileExisted bool
	ModTime     time.Time
	Decision    Decision
	Refreshed   bool
	Err         error
	OldChecksum string
	NewChecksum string
}

// Changed reports whether a successful refresh altered the file.
func (o *RefreshOutcome) Changed() bool {
	return o.Refreshed && o.Err == nil && o.OldChecksum != o.NewChecksum
}

// Controller decides whether to rebuild the cache file before a run and then
// loads it.
type Controller struct {
	Path      string
	MaxAge    time.Duration
	Refresher Refresher
	Confirmer Confirmer
	Logger    *zap.Logger

	// Now is the clock; time.Now when nil
	Now func() time.Time
}

// Refresh runs the refresh step. A failed refresh is recorded in the outcome
// and is not returned as an error: the previous file stays in use. The error
// result is reserved for cancellation and for a failing confirmation provider.
func (c *Controller) Refresh(ctx context.Context, force bool) (*RefreshOutcome, error) {
	log := c.logger()
	out := &RefreshOutcome{}

	age, exists := CacheAge(c.Path, c.now())
	out.FileExisted = exists
	if exists {
		out.ModTime = c.now().Add(-age)
		log.Info("price cache found", zap.String("path", c.Path), zap.Time("modified", out.ModTime))
	} else {
		log.Info("price cache file is missing, fetching now", zap.String("path", c.Path))
	}

	maxAge := c.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	out.Decision = Decide(exists, age, force, maxAge)

	switch out.Decision {
	case KeepCache:
		log.Info("price cache is recent, no update needed", zap.Duration("age", age.Truncate(time.Second)))
		return out, nil
	case RefreshIfConfirmed:
		yes, err := c.Confirmer.Confirm("Price cache is older than " + maxAge.String() + ". Update?")
		if err != nil {
			return out, err
		}
		if !yes {
			log.Info("skipping refresh, continuing with the old file")
			return out, nil
		}
	}

	out.OldChecksum = Checksum(c.Path)
	log.Info("fetching new price table")
	out.Refreshed = true
	if err := c.Refresher.Refresh(ctx, c.Path); err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		out.Err = err
		log.Error("price refresh failed, keeping the previous cache", zap.Error(err))
		return out, nil
	}
	out.NewChecksum = Checksum(c.Path)

	if out.Changed() {
		log.Info("price cache changed",
			zap.String("old_sha256", orNone(out.OldChecksum)),
			zap.String("new_sha256", orNone(out.NewChecksum)))
	} else {
		log.Info("no changes in price cache (checksum is the same)")
	}
	return out, nil
}

// Prepare refreshes when the policy says so and then loads whatever cache file
// exists. The returned cache is nil when no usable file is present.
func (c *Controller) Prepare(ctx context.Context, force bool) (*Cache, *RefreshOutcome, error) {
	out, err := c.Refresh(ctx, force)
	if err != nil {
		return nil, out, err
	}

	cache, ok := LoadCache(c.Path)
	if !ok {
		c.logger().Warn("no usable price cache, every price will be fetched remotely")
		return nil, out, nil
	}
	c.logger().Info("loaded price cache", zap.Int("codes", cache.Len()))
	return cache, out, nil
}

func (c *Controller) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Controller) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
