package link

import "time"

// Config holds the IEC 60870-5-104 parameters controlling flow control
// and the connection's supervisory timers. Defaults match the standard's
// companion values (IECParam in the reference implementation).
type Config struct {
	// K is the maximum number of unacknowledged I-frames the sender may
	// have outstanding before it must stop sending and wait.
	K int
	// W is the number of received I-frames after which an S-frame
	// acknowledgement must be sent, even before T2 elapses.
	W int

	T0 time.Duration // time to establish a connection
	T1 time.Duration // time to wait for an acknowledgement of a sent I-frame
	T2 time.Duration // time to wait before acknowledging received I-frames
	T3 time.Duration // idle time before a test frame is sent
}

// DefaultConfig returns the standard's recommended parameter values.
func DefaultConfig() Config {
	return Config{
		K:  12,
		W:  8,
		T0: 30 * time.Second,
		T1: 15 * time.Second,
		T2: 10 * time.Second,
		T3: 20 * time.Second,
	}
}
