package link

import "errors"

// ErrNotStarted is returned when SendASDU is called before the data
// transfer has been activated (before STARTDT is confirmed).
var ErrNotStarted = errors.New("link: data transfer not started")

// ErrClosed is returned from operations attempted after the link has
// been closed, either by the caller or by a timer-driven failure.
var ErrClosed = errors.New("link: closed")

// ErrSendWindowFull is returned when K unacknowledged I-frames are
// already outstanding and the caller must wait for an acknowledgement.
var ErrSendWindowFull = errors.New("link: send window full")

// ErrT1Timeout means a sent I-frame (or STARTDT/STOPDT/TESTFR) went
// unacknowledged for longer than T1; the standard requires the
// connection to be closed when this happens.
var ErrT1Timeout = errors.New("link: T1 acknowledgement timeout")

// ErrT0Timeout means the STARTDT activation was not confirmed before T0
// elapsed.
var ErrT0Timeout = errors.New("link: T0 connection timeout")
