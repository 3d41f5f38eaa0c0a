package gatt

import "time"

// Config holds the GATT-layer timeout defaults, parsed from the
// `gatt` environment namespace. Apply pushes ReadTimeout onto a
// Client's bearer; DiscoverServices takes no deadline of its own.
type Config struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	InitTimeout      time.Duration
	DiscoveryTimeout time.Duration
	RingSize         int
}

// DefaultConfig returns 500ms read/write and 2500ms discovery/init.
func DefaultConfig() Config {
	return Config{
		ReadTimeout:      500 * time.Millisecond,
		WriteTimeout:     500 * time.Millisecond,
		InitTimeout:      2500 * time.Millisecond,
		DiscoveryTimeout: 2500 * time.Millisecond,
		RingSize:         64,
	}
}

// Apply pushes cfg.ReadTimeout onto c's underlying bearer, whose one
// timeout covers every request, writes included; WriteTimeout is not
// applied.
func (cfg Config) Apply(c *Client) {
	if cfg.ReadTimeout > 0 {
		c.bearer.SetTimeout(cfg.ReadTimeout)
	}
}
