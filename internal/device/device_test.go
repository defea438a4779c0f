package device

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yobol/iec104collector/internal/asdu104"
)

func pipeDialer(conn net.Conn) Dialer {
	return func(ctx context.Context, addr string) (net.Conn, error) {
		return conn, nil
	}
}

func TestCommandTypeID(t *testing.T) {
	tests := []struct {
		name string
		obj  asdu104.InformationObject
		want asdu104.TypeID
	}{
		{"single command", asdu104.SingleCommand{IOA: 1}, asdu104.CScNA1},
		{"double command", asdu104.DoubleCommand{IOA: 1}, asdu104.CDcNA1},
		{"step command", asdu104.StepCommand{IOA: 1}, asdu104.CRcNA1},
		{"setpoint normalized", asdu104.SetpointNormalized{IOA: 1}, asdu104.CSeNA1},
		{"bitstring command", asdu104.BitstringCommand{IOA: 1}, asdu104.CBoNA1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := commandTypeID(tt.obj)
			if err != nil {
				t.Fatalf("commandTypeID() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("commandTypeID() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCommandTypeIDRejectsMeasurement(t *testing.T) {
	if _, err := commandTypeID(asdu104.SinglePoint{IOA: 1}); err == nil {
		t.Error("expected error for a non-command object")
	}
}

func TestDeviceRunConnectsAndPolls(t *testing.T) {
	clientConn, outstation := net.Pipe()
	defer outstation.Close()

	samples := make(chan InformationSample, 16)
	cfg := DefaultConfig(1)
	cfg.Link.T0 = 2 * time.Second
	cfg.Link.T1 = 2 * time.Second
	cfg.PollInterval = time.Hour // only the initial GI matters for this test
	cfg.DialTimeout = 2 * time.Second

	dev := New(1, "ignored:2404", cfg, samples, logrus.NewEntry(logrus.New()))
	dev.Dial = pipeDialer(clientConn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dev.Run(ctx)

	// outstation side: confirm STARTDT, then expect clock sync and GI.
	mustReadU(t, outstation, asdu104.UStartDTAct)
	writeFrame(t, outstation, asdu104.UFrame{Function: asdu104.UStartDTCon})

	frame := readIFrame(t, outstation)
	asduMsg, err := asdu104.DecodeASDU(frame.ASDU)
	if err != nil {
		t.Fatalf("decode clock sync asdu: %v", err)
	}
	if asduMsg.Type != asdu104.CCsNA1 {
		t.Fatalf("first ASDU type = %v, want C_CS_NA_1", asduMsg.Type)
	}

	frame2 := readIFrame(t, outstation)
	asduMsg2, err := asdu104.DecodeASDU(frame2.ASDU)
	if err != nil {
		t.Fatalf("decode GI asdu: %v", err)
	}
	if asduMsg2.Type != asdu104.CIcNA1 {
		t.Fatalf("second ASDU type = %v, want C_IC_NA_1", asduMsg2.Type)
	}

	if !waitOnline(dev, time.Second) {
		t.Fatal("device never reported online")
	}
}

// TestDeviceCtrlSelectsThenExecutes exercises the select-and-execute
// handshake end to end: a select-phase actcon (select bit still set)
// must trigger a resend of the same command with the select bit
// cleared, and only the execute-phase actcon completes the call.
func TestDeviceCtrlSelectsThenExecutes(t *testing.T) {
	clientConn, outstation := net.Pipe()
	defer outstation.Close()

	samples := make(chan InformationSample, 16)
	cfg := DefaultConfig(1)
	cfg.Link.T0 = 2 * time.Second
	cfg.Link.T1 = 2 * time.Second
	cfg.PollInterval = time.Hour
	cfg.DialTimeout = 2 * time.Second

	dev := New(1, "ignored:2404", cfg, samples, logrus.NewEntry(logrus.New()))
	dev.Dial = pipeDialer(clientConn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dev.Run(ctx)

	mustReadU(t, outstation, asdu104.UStartDTAct)
	writeFrame(t, outstation, asdu104.UFrame{Function: asdu104.UStartDTCon})
	readIFrame(t, outstation) // clock sync
	readIFrame(t, outstation) // general interrogation
	if !waitOnline(dev, time.Second) {
		t.Fatal("device never reported online")
	}

	result := make(chan error, 1)
	go func() {
		result <- dev.Ctrl(ctx, asdu104.SingleCommand{IOA: 100, Value: true})
	}()

	selectFrame := readIFrame(t, outstation)
	selectASDU, err := asdu104.DecodeASDU(selectFrame.ASDU)
	if err != nil {
		t.Fatalf("decode select asdu: %v", err)
	}
	sc, ok := selectASDU.Objects[0].(asdu104.SingleCommand)
	if !ok || !sc.Select {
		t.Fatalf("select-phase frame = %+v, want SingleCommand with Select=true", selectASDU.Objects[0])
	}
	writeFrame(t, outstation, asdu104.IFrame{
		SendSN: 0, RecvSN: 1,
		ASDU: mustEncodeASDU(t, asdu104.ASDU{
			Type: asdu104.CScNA1, Cause: asdu104.CauseActCon, CommonAddr: 1,
			Objects: []asdu104.InformationObject{sc},
		}),
	})

	executeFrame := readIFrame(t, outstation)
	executeASDU, err := asdu104.DecodeASDU(executeFrame.ASDU)
	if err != nil {
		t.Fatalf("decode execute asdu: %v", err)
	}
	ec, ok := executeASDU.Objects[0].(asdu104.SingleCommand)
	if !ok || ec.Select {
		t.Fatalf("execute-phase frame = %+v, want SingleCommand with Select=false", executeASDU.Objects[0])
	}

	select {
	case <-result:
		t.Fatal("Ctrl() completed before the execute-phase actcon arrived")
	case <-time.After(100 * time.Millisecond):
	}

	writeFrame(t, outstation, asdu104.IFrame{
		SendSN: 1, RecvSN: 2,
		ASDU: mustEncodeASDU(t, asdu104.ASDU{
			Type: asdu104.CScNA1, Cause: asdu104.CauseActCon, CommonAddr: 1,
			Objects: []asdu104.InformationObject{ec},
		}),
	})

	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("Ctrl() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Ctrl() never completed after the execute-phase actcon")
	}
}

func mustEncodeASDU(t *testing.T, a asdu104.ASDU) []byte {
	t.Helper()
	payload, err := asdu104.EncodeASDU(a)
	if err != nil {
		t.Fatalf("EncodeASDU() error = %v", err)
	}
	return payload
}

func waitOnline(dev *Device, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if dev.Online() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func mustReadU(t *testing.T, conn net.Conn, want asdu104.UFunction) {
	t.Helper()
	frame := readFrame(t, conn)
	u, ok := frame.(asdu104.UFrame)
	if !ok || u.Function != want {
		t.Fatalf("got %+v, want UFunction %v", frame, want)
	}
}

func readIFrame(t *testing.T, conn net.Conn) asdu104.IFrame {
	t.Helper()
	frame := readFrame(t, conn)
	i, ok := frame.(asdu104.IFrame)
	if !ok {
		t.Fatalf("got %T, want IFrame", frame)
	}
	return i
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
