package l2cap

import "time"

// Config holds the L2CAP reader-idle timeout and restart-count
// defaults, parsed from the `l2cap` environment namespace.
// The muxer itself has no idle concept (it is
// purely event-driven off hci.Handler's dispatch), but a Channel owner
// that wants to detect a stalled peer uses these to bound Recv waits
// via its own select/timer around Channel.Inbox().
type Config struct {
	ReaderTimeout time.Duration
	RestartCount  int
}

// DefaultConfig returns a 10s reader-idle
// timeout with no automatic restart.
func DefaultConfig() Config {
	return Config{
		ReaderTimeout: 10 * time.Second,
		RestartCount:  0,
	}
}
