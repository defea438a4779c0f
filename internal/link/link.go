package link

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yobol/iec104collector/internal/asdu104"
)

// State is the link's position in the STARTDT/STOPDT handshake.
type State int32

const (
	StateDisconnected State = iota
	StateStarting           // STARTDT sent, awaiting confirmation
	StateActive             // data transfer confirmed and running
	StateStopping           // STOPDT sent, awaiting confirmation
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Link drives one TCP connection to an IEC 104 device: framing, the
// send/receive sequence numbers, the K/W flow-control windows and the
// T0-T3 timers. It hands decoded ASDUs to its caller over Incoming and
// accepts outgoing ASDUs through SendASDU; callers never touch the
// net.Conn directly once a Link owns it.
type Link struct {
	conn net.Conn
	cfg  Config
	log  *logrus.Entry

	mu          sync.Mutex
	state       State
	ssn         uint16 // next sequence number this side will send
	rsn         uint16 // next sequence number expected from the peer
	oldestUnack uint16 // oldest of our own sent sequence numbers not yet acked
	unackedSent int
	unackedRecv int

	writeMu sync.Mutex
	writeCh chan []byte
	inCh    chan asdu104.ASDU
	errCh   chan error

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error

	t1 *time.Timer
	t2 *time.Timer
	t3 *time.Timer

	startResult chan error
	stopResult  chan error
}

// New wraps conn in a Link using cfg's timers and flow-control window.
func New(conn net.Conn, cfg Config, log *logrus.Logger) *Link {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Link{
		conn:        conn,
		cfg:         cfg,
		log:         log.WithField("component", "link").WithField("peer", conn.RemoteAddr()),
		writeCh:     make(chan []byte, cfg.K+4),
		inCh:        make(chan asdu104.ASDU, cfg.K+4),
		errCh:       make(chan error, 1),
		closed:      make(chan struct{}),
		startResult: make(chan error, 1),
		stopResult:  make(chan error, 1),
	}
}

// Start performs the STARTDT handshake and launches the read and write
// loops. It blocks until STARTDT is confirmed, T0 elapses, or ctx is
// cancelled.
func (l *Link) Start(ctx context.Context) error {
	go l.writeLoop()
	go l.readLoop()

	l.mu.Lock()
	l.state = StateStarting
	l.mu.Unlock()
	l.sendU(asdu104.UStartDTAct)
	l.resetT1()

	select {
	case err := <-l.startResult:
		return err
	case <-ctx.Done():
		l.Close()
		return ctx.Err()
	case <-l.closed:
		return l.closeErr
	}
}

// Stop performs the STOPDT handshake, leaving the underlying connection
// open so the caller may close it, or Close the Link to tear both down.
func (l *Link) Stop(ctx context.Context) error {
	l.mu.Lock()
	l.state = StateStopping
	l.mu.Unlock()
	l.sendU(asdu104.UStopDTAct)
	l.resetT1()

	select {
	case err := <-l.stopResult:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.closed:
		return l.closeErr
	}
}

// Incoming returns the channel of ASDUs decoded from the peer. It is
// never closed; use Done to learn that the link has closed.
func (l *Link) Incoming() <-chan asdu104.ASDU { return l.inCh }

// Done returns a channel closed when the link has stopped, whether by
// Close or by a timer-driven failure; inspect Err afterward.
func (l *Link) Done() <-chan struct{} { return l.closed }

// Err returns the reason the link closed, nil if Close was called
// cleanly.
func (l *Link) Err() error { return l.closeErr }

// State reports the link's current handshake state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// SendASDU encodes asdu and queues it as an I-frame, returning
// ErrSendWindowFull if K unacknowledged frames are already outstanding
// and ErrNotStarted if data transfer hasn't been confirmed yet.
func (l *Link) SendASDU(asdu asdu104.ASDU) error {
	payload, err := asdu104.EncodeASDU(asdu)
	if err != nil {
		return err
	}

	l.mu.Lock()
	if l.state != StateActive {
		l.mu.Unlock()
		return ErrNotStarted
	}
	if l.unackedSent >= l.cfg.K {
		l.mu.Unlock()
		return ErrSendWindowFull
	}
	frame := asdu104.IFrame{SendSN: l.ssn, RecvSN: l.rsn, ASDU: payload}
	if l.unackedSent == 0 {
		l.oldestUnack = l.ssn
	}
	l.ssn = seqAdd(l.ssn, 1)
	l.unackedSent++
	l.unackedRecv = 0
	l.resetT3()
	l.resetT1()
	l.mu.Unlock()

	wire, err := asdu104.EncodeFrame(frame)
	if err != nil {
		return err
	}
	return l.enqueueWrite(wire)
}

func (l *Link) enqueueWrite(wire []byte) error {
	select {
	case l.writeCh <- wire:
		return nil
	case <-l.closed:
		return ErrClosed
	}
}

func (l *Link) sendU(fn asdu104.UFunction) {
	wire, err := asdu104.EncodeFrame(asdu104.UFrame{Function: fn})
	if err != nil {
		l.log.WithError(err).Error("encode u-frame")
		return
	}
	_ = l.enqueueWrite(wire)
}

func (l *Link) sendS() {
	l.mu.Lock()
	rsn := l.rsn
	l.unackedRecv = 0
	l.mu.Unlock()
	wire, err := asdu104.EncodeFrame(asdu104.SFrame{RecvSN: rsn})
	if err != nil {
		l.log.WithError(err).Error("encode s-frame")
		return
	}
	_ = l.enqueueWrite(wire)
}

func (l *Link) writeLoop() {
	for {
		select {
		case wire := <-l.writeCh:
			l.writeMu.Lock()
			_, err := l.conn.Write(wire)
			l.writeMu.Unlock()
			if err != nil {
				l.fail(fmt.Errorf("link: write: %w", err))
				return
			}
		case <-l.closed:
			return
		}
	}
}

// sendUDirect writes a U-frame straight to the connection instead of
// through writeCh, serialized against writeLoop by writeMu. Used only
// when a response must be guaranteed on the wire before the connection
// is torn down (the STOPDT con a peer-issued STOPDT act gets before we
// close), since an enqueued write racing the close signal in writeLoop's
// select could otherwise be dropped.
func (l *Link) sendUDirect(fn asdu104.UFunction) error {
	wire, err := asdu104.EncodeFrame(asdu104.UFrame{Function: fn})
	if err != nil {
		return err
	}
	l.writeMu.Lock()
	_, err = l.conn.Write(wire)
	l.writeMu.Unlock()
	return err
}

func (l *Link) readLoop() {
	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 2048)
	for {
		n, err := l.conn.Read(tmp)
		if err != nil {
			l.fail(fmt.Errorf("link: read: %w", err))
			return
		}
		buf = append(buf, tmp[:n]...)

		for {
			total, known := asdu104.APDULength(buf)
			if !known || len(buf) < total {
				break
			}
			frame, consumed, err := asdu104.DecodeFrame(buf[:total])
			if err != nil {
				l.fail(fmt.Errorf("link: decode: %w", err))
				return
			}
			buf = buf[consumed:]
			l.handleFrame(frame)
			select {
			case <-l.closed:
				return
			default:
			}
		}
	}
}

func (l *Link) handleFrame(frame asdu104.Frame) {
	switch f := frame.(type) {
	case asdu104.UFrame:
		l.handleU(f)
	case asdu104.SFrame:
		l.handleAck(f.RecvSN)
	case asdu104.IFrame:
		l.handleI(f)
	}
}

func (l *Link) handleU(f asdu104.UFrame) {
	switch f.Function {
	case asdu104.UStartDTCon:
		l.mu.Lock()
		l.state = StateActive
		l.unackedSent = 0
		l.mu.Unlock()
		l.stopT1()
		l.resetT3()
		select {
		case l.startResult <- nil:
		default:
		}
	case asdu104.UStopDTCon:
		l.stopT1()
		select {
		case l.stopResult <- nil:
		default:
		}
	case asdu104.UTestFRAct:
		l.sendU(asdu104.UTestFRCon)
	case asdu104.UTestFRCon:
		l.stopT1()
		l.resetT3()
	case asdu104.UStartDTAct:
		// Peer-issued STARTDT act: mirror it with our own con. If we had
		// our own STARTDT act pending (simultaneous open), this also
		// resolves it instead of waiting for a separate con.
		l.sendU(asdu104.UStartDTCon)
		l.mu.Lock()
		wasStarting := l.state == StateStarting
		l.state = StateActive
		l.unackedSent = 0
		l.mu.Unlock()
		l.stopT1()
		l.resetT3()
		if wasStarting {
			select {
			case l.startResult <- nil:
			default:
			}
		}
	case asdu104.UStopDTAct:
		// Peer-driven halt: confirm and disconnect, same as a local
		// Close, not a failure.
		if err := l.sendUDirect(asdu104.UStopDTCon); err != nil {
			l.log.WithError(err).Warn("send stopdt con")
		}
		l.closeWith(nil)
	}
}

func (l *Link) handleAck(rsn uint16) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.unackedSent == 0 {
		return
	}
	if !seqIsValidAck(l.oldestUnack, l.ssn, rsn) {
		l.log.Warnf("received out-of-range ack %d", rsn)
		return
	}
	acked := seqDistance(l.oldestUnack, rsn)
	l.unackedSent -= acked
	if l.unackedSent < 0 {
		l.unackedSent = 0
	}
	l.oldestUnack = rsn
	if l.unackedSent == 0 {
		l.stopT1()
	} else {
		l.resetT1Locked()
	}
}

func (l *Link) handleI(f asdu104.IFrame) {
	l.handleAck(f.RecvSN)

	asdu, err := asdu104.DecodeASDU(f.ASDU)
	if err != nil {
		l.log.WithError(err).Error("decode asdu")
		return
	}

	l.mu.Lock()
	l.rsn = seqAdd(f.SendSN, 1)
	l.unackedRecv++
	needAck := l.unackedRecv >= l.cfg.W
	l.mu.Unlock()

	if needAck {
		l.sendS()
	} else {
		l.resetT2()
	}

	select {
	case l.inCh <- asdu:
	case <-l.closed:
		return
	}
}

func (l *Link) resetT1() {
	l.mu.Lock()
	l.resetT1Locked()
	l.mu.Unlock()
}

func (l *Link) resetT1Locked() {
	if l.t1 != nil {
		l.t1.Stop()
	}
	l.t1 = time.AfterFunc(l.cfg.T1, func() { l.fail(ErrT1Timeout) })
}

func (l *Link) stopT1() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.t1 != nil {
		l.t1.Stop()
	}
}

func (l *Link) resetT2() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.t2 != nil {
		l.t2.Stop()
	}
	l.t2 = time.AfterFunc(l.cfg.T2, l.sendS)
}

func (l *Link) resetT3() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.t3 != nil {
		l.t3.Stop()
	}
	l.t3 = time.AfterFunc(l.cfg.T3, func() {
		l.sendU(asdu104.UTestFRAct)
		l.resetT1()
	})
}

// Close tears down the link: stops all timers, closes the underlying
// connection, and signals Done. Safe to call more than once.
func (l *Link) Close() error {
	return l.closeWith(nil)
}

func (l *Link) fail(err error) {
	l.closeWith(err)
}

func (l *Link) closeWith(err error) error {
	l.closeOnce.Do(func() {
		l.closeErr = err
		l.mu.Lock()
		if l.t1 != nil {
			l.t1.Stop()
		}
		if l.t2 != nil {
			l.t2.Stop()
		}
		if l.t3 != nil {
			l.t3.Stop()
		}
		l.state = StateDisconnected
		l.mu.Unlock()
		close(l.closed)
		_ = l.conn.Close()
		if err != nil {
			select {
			case l.startResult <- err:
			default:
			}
			select {
			case l.stopResult <- err:
			default:
			}
		}
	})
	return nil
}
