package link

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yobol/iec104collector/internal/asdu104"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.T0 = 2 * time.Second
	cfg.T1 = 2 * time.Second
	cfg.T2 = 500 * time.Millisecond
	cfg.T3 = 5 * time.Second
	return cfg
}

func readFrame(t *testing.T, conn net.Conn) asdu104.Frame {
	t.Helper()
	hdr := make([]byte, 2)
	if _, err := readFull(conn, hdr); err != nil {
		t.Fatalf("read header: %v", err)
	}
	total := 2 + int(hdr[1])
	buf := make([]byte, total)
	copy(buf, hdr)
	if _, err := readFull(conn, buf[2:]); err != nil {
		t.Fatalf("read body: %v", err)
	}
	frame, _, err := asdu104.DecodeFrame(buf)
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return frame
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func writeFrame(t *testing.T, conn net.Conn, frame asdu104.Frame) {
	t.Helper()
	wire, err := asdu104.EncodeFrame(frame)
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	if _, err := conn.Write(wire); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func TestLinkStartHandshake(t *testing.T) {
	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	l := New(clientConn, testConfig(), logrus.New())
	defer l.Close()

	done := make(chan error, 1)
	go func() {
		done <- l.Start(context.Background())
	}()

	frame := readFrame(t, peerConn)
	u, ok := frame.(asdu104.UFrame)
	if !ok || u.Function != asdu104.UStartDTAct {
		t.Fatalf("got %+v, want StartDT activation", frame)
	}
	writeFrame(t, peerConn, asdu104.UFrame{Function: asdu104.UStartDTCon})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after StartDTCon")
	}
	if got := l.State(); got != StateActive {
		t.Errorf("State() = %v, want active", got)
	}
}

func TestLinkStartDTActFromPeerResolvesSimultaneousOpen(t *testing.T) {
	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	l := New(clientConn, testConfig(), logrus.New())
	defer l.Close()

	done := make(chan error, 1)
	go func() {
		done <- l.Start(context.Background())
	}()

	_ = readFrame(t, peerConn) // our own STARTDT act

	// Peer opened simultaneously instead of answering with a con.
	writeFrame(t, peerConn, asdu104.UFrame{Function: asdu104.UStartDTAct})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not resolve after peer-issued STARTDT act")
	}
	if got := l.State(); got != StateActive {
		t.Errorf("State() = %v, want active", got)
	}

	reply := readFrame(t, peerConn)
	u, ok := reply.(asdu104.UFrame)
	if !ok || u.Function != asdu104.UStartDTCon {
		t.Fatalf("got %+v, want our own StartDT confirmation", reply)
	}
}

func TestLinkStopDTActFromPeerDisconnects(t *testing.T) {
	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	l := New(clientConn, testConfig(), logrus.New())
	defer l.Close()

	go func() { _ = l.Start(context.Background()) }()
	_ = readFrame(t, peerConn) // StartDT act
	writeFrame(t, peerConn, asdu104.UFrame{Function: asdu104.UStartDTCon})
	time.Sleep(50 * time.Millisecond)

	writeFrame(t, peerConn, asdu104.UFrame{Function: asdu104.UStopDTAct})

	reply := readFrame(t, peerConn)
	u, ok := reply.(asdu104.UFrame)
	if !ok || u.Function != asdu104.UStopDTCon {
		t.Fatalf("got %+v, want StopDT confirmation", reply)
	}

	select {
	case <-l.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("link did not disconnect after peer-issued STOPDT act")
	}
	if err := l.Err(); err != nil {
		t.Errorf("Err() = %v, want nil (peer-driven halt is not a failure)", err)
	}
	if got := l.State(); got != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", got)
	}
}

func TestLinkSendASDUThenAck(t *testing.T) {
	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	l := New(clientConn, testConfig(), logrus.New())
	defer l.Close()

	go func() { _ = l.Start(context.Background()) }()
	_ = readFrame(t, peerConn) // StartDT act
	writeFrame(t, peerConn, asdu104.UFrame{Function: asdu104.UStartDTCon})

	// give Start() time to flip to active before sending
	time.Sleep(50 * time.Millisecond)

	asdu := asdu104.ASDU{
		Type: asdu104.MSpNA1, Cause: asdu104.CauseSpont, CommonAddr: 1,
		Objects: []asdu104.InformationObject{asdu104.SinglePoint{IOA: 1, Value: true}},
	}
	if err := l.SendASDU(asdu); err != nil {
		t.Fatalf("SendASDU() error = %v", err)
	}

	frame := readFrame(t, peerConn)
	iframe, ok := frame.(asdu104.IFrame)
	if !ok {
		t.Fatalf("got %T, want IFrame", frame)
	}
	if iframe.SendSN != 0 {
		t.Errorf("SendSN = %d, want 0", iframe.SendSN)
	}

	writeFrame(t, peerConn, asdu104.SFrame{RecvSN: 1})
	time.Sleep(50 * time.Millisecond)

	l.mu.Lock()
	unacked := l.unackedSent
	l.mu.Unlock()
	if unacked != 0 {
		t.Errorf("unackedSent = %d, want 0 after peer ack", unacked)
	}
}

func TestLinkReceivesIFrameAndAcksAtW(t *testing.T) {
	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	cfg := testConfig()
	cfg.W = 1
	l := New(clientConn, cfg, logrus.New())
	defer l.Close()

	go func() { _ = l.Start(context.Background()) }()
	_ = readFrame(t, peerConn)
	writeFrame(t, peerConn, asdu104.UFrame{Function: asdu104.UStartDTCon})
	time.Sleep(50 * time.Millisecond)

	payload, err := asdu104.EncodeASDU(asdu104.ASDU{
		Type: asdu104.MSpNA1, Cause: asdu104.CauseSpont, CommonAddr: 1,
		Objects: []asdu104.InformationObject{asdu104.SinglePoint{IOA: 1, Value: true}},
	})
	if err != nil {
		t.Fatalf("EncodeASDU() error = %v", err)
	}
	writeFrame(t, peerConn, asdu104.IFrame{SendSN: 0, RecvSN: 0, ASDU: payload})

	select {
	case got := <-l.Incoming():
		if got.Type != asdu104.MSpNA1 {
			t.Errorf("Type = %v, want M_SP_NA_1", got.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive decoded ASDU")
	}

	// W=1 means the single received I-frame must trigger an immediate ack.
	ack := readFrame(t, peerConn)
	s, ok := ack.(asdu104.SFrame)
	if !ok || s.RecvSN != 1 {
		t.Fatalf("got %+v, want SFrame{RecvSN: 1}", ack)
	}
}

func TestSeqIsValidAck(t *testing.T) {
	if !seqIsValidAck(5, 10, 7) {
		t.Error("ack within outstanding range should be valid")
	}
	if seqIsValidAck(5, 10, 20) {
		t.Error("ack beyond the sent range should be invalid")
	}
}

func TestSeqAddWraparound(t *testing.T) {
	if got := seqAdd(32767, 1); got != 0 {
		t.Errorf("seqAdd(32767,1) = %d, want 0", got)
	}
}
