package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ajitpratap0/depot/pkg/sinkerrors"
)

// TTL types.
const (
	TTLTypeDisable   = "DISABLE"
	TTLTypeDuration  = "DURATION"
	TTLTypeExactTime = "EXACT_TIME"
)

// Expirer is the subset of goredis.Cmdable used to set expiries. Both clients
// and pipelines satisfy it.
type Expirer interface {
	Expire(ctx context.Context, key string, expiration time.Duration) *goredis.BoolCmd
	ExpireAt(ctx context.Context, key string, tm time.Time) *goredis.BoolCmd
}

// TTL applies an expiry policy to written keys.
type TTL interface {
	// Apply issues the expiry for key on c. It returns nil when the policy
	// sets no expiry.
	Apply(ctx context.Context, c Expirer, key string) *goredis.BoolCmd
	fmt.Stringer
}

// NewTTL builds the policy for ttlType. value is in seconds for DURATION
// and a unix timestamp in seconds for EXACT_TIME.
func NewTTL(ttlType string, value int64) (TTL, error) {
	switch strings.ToUpper(ttlType) {
	case "", TTLTypeDisable:
		return NoTTL{}, nil
	case TTLTypeDuration:
		if value < 0 {
			return nil, sinkerrors.New(sinkerrors.ErrorTypeConfig, "Provide a positive TTL value")
		}
		return DurationTTL{Seconds: value}, nil
	case TTLTypeExactTime:
		if value < 0 {
			return nil, sinkerrors.New(sinkerrors.ErrorTypeConfig, "Provide a positive TTL value")
		}
		return ExactTimeTTL{UnixSeconds: value}, nil
	default:
		return nil, sinkerrors.Newf(sinkerrors.ErrorTypeConfig, "unknown ttl type %q", ttlType)
	}
}

// NoTTL leaves keys without expiry.
type NoTTL struct{}

func (NoTTL) Apply(context.Context, Expirer, string) *goredis.BoolCmd { return nil }

func (NoTTL) String() string { return "NoTTL" }

// DurationTTL expires keys a fixed number of seconds after each write.
type DurationTTL struct {
	Seconds int64
}

func (t DurationTTL) Apply(ctx context.Context, c Expirer, key string) *goredis.BoolCmd {
	return c.Expire(ctx, key, time.Duration(t.Seconds)*time.Second)
}

func (t DurationTTL) String() string {
	return fmt.Sprintf("DurationTTL{seconds=%d}", t.Seconds)
}

// ExactTimeTTL expires keys at a fixed instant.
type ExactTimeTTL struct {
	UnixSeconds int64
}

func (t ExactTimeTTL) Apply(ctx context.Context, c Expirer, key string) *goredis.BoolCmd {
	return c.ExpireAt(ctx, key, time.Unix(t.UnixSeconds, 0))
}

func (t ExactTimeTTL) String() string {
	return fmt.Sprintf("ExactTimeTTL{unixSeconds=%d}", t.UnixSeconds)
}
