package signaling

import "time"

// State is the connection state of a Channel
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// MarshalText lets State render as its name in JSON responses
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

const (
	DefaultBaseDelay  = 1000 * time.Millisecond
	DefaultMaxDelay   = 10000 * time.Millisecond
	DefaultMaxRetries = 5
)

// Options tunes a Channel. Zero values fall back to the defaults.
type Options struct {
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	MaxRetries       int
	HandshakeTimeout time.Duration
	Token            string // sent as a bearer token on the upgrade request
}

func (o Options) withDefaults() Options {
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = handshakeTimeout
	}
	return o
}

// Backoff returns the wait after failure number k (1-based):
// min(base * 2^(k-1), max).
func Backoff(k int, base, max time.Duration) time.Duration {
	if k < 1 {
		k = 1
	}
	d := base
	for i := 1; i < k; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
