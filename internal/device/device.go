// Package device implements the per-device actor: one goroutine pair
// owns a Link to a single IEC 104 outstation and drives its polling
// lifecycle (clock sync, general interrogation, counter interrogation),
// answers on-demand reads and controls, and republishes everything it
// receives to the measurement pipeline.
package device

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yobol/iec104collector/internal/asdu104"
	"github.com/yobol/iec104collector/internal/link"
)

// Config configures polling cadence and reconnect behavior for one
// device. PollInterval governs both general and counter interrogation;
// ReconnectBackoff is the delay between failed dial attempts.
type Config struct {
	Link             link.Config
	PollInterval     time.Duration
	ReconnectBackoff time.Duration
	DialTimeout      time.Duration
	CommonAddr       uint16
}

// DefaultConfig returns sensible defaults for a device polled once a
// minute over an otherwise-standard IEC 104 connection.
func DefaultConfig(commonAddr uint16) Config {
	return Config{
		Link:             link.DefaultConfig(),
		PollInterval:     time.Minute,
		ReconnectBackoff: 5 * time.Second,
		DialTimeout:      10 * time.Second,
		CommonAddr:       commonAddr,
	}
}

// CallRequest asks for an on-demand read of a single information object
// address (the "招测" / device_call operation).
type CallRequest struct {
	IOA   asdu104.IOA
	Reply chan<- CallResult
}

// CallResult is the outcome of a CallRequest, delivered on its Reply
// channel exactly once.
type CallResult struct {
	Object InformationSample
	Err    error
}

// CtrlRequest asks for a select-and-execute command against a single
// information object address (the "控制" / device_ctrl operation).
type CtrlRequest struct {
	Command asdu104.InformationObject
	Reply   chan<- CtrlResult
}

// CtrlResult is the outcome of a CtrlRequest.
type CtrlResult struct {
	Err error
}

// InformationSample pairs a decoded information object with the device
// and ASDU context it arrived in, the shape the measurement pipeline
// consumes.
type InformationSample struct {
	CommonAddr uint16
	Type       asdu104.TypeID
	Cause      asdu104.Cause
	Object     asdu104.InformationObject
	RecvTime   time.Time
}

// Dialer creates the TCP connection to the device; a field rather than a
// hardcoded net.Dial call so tests can substitute net.Pipe or an
// in-memory listener.
type Dialer func(ctx context.Context, addr string) (net.Conn, error)

// DefaultDialer dials plain TCP.
func DefaultDialer(ctx context.Context, addr string) (net.Conn, error) {
	d := net.Dialer{}
	return d.DialContext(ctx, "tcp", addr)
}

// Device is the actor owning one outstation connection. Run drives its
// entire lifecycle: dialing, polling, reconnecting on failure, and
// serving Call/Ctrl requests, until its context is cancelled.
type Device struct {
	ID      int64
	Addr    string
	Cfg     Config
	Dial    Dialer
	Log     *logrus.Entry
	Samples chan<- InformationSample

	callCh chan CallRequest
	ctrlCh chan CtrlRequest

	mu      sync.Mutex
	online  bool
	lk      *link.Link
	pending map[asdu104.IOA]chan CallResult
	ctrlOut map[asdu104.IOA]*ctrlPending
}

// ctrlPending tracks one in-flight select-and-execute command: command
// holds whichever frame (select or execute) is currently awaiting its
// actcon, so resolveCtrl knows what to resend.
type ctrlPending struct {
	reply   chan<- CtrlResult
	command asdu104.InformationObject
}

// New builds a Device actor. samples receives every information object
// the device reports, whether spontaneous, polled, or on-demand; an
// object is dropped, with a warning logged, when samples is full.
func New(id int64, addr string, cfg Config, samples chan<- InformationSample, log *logrus.Entry) *Device {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Device{
		ID:      id,
		Addr:    addr,
		Cfg:     cfg,
		Dial:    DefaultDialer,
		Log:     log.WithField("device_id", id),
		Samples: samples,
		callCh:  make(chan CallRequest, 8),
		ctrlCh:  make(chan CtrlRequest, 8),
		pending: make(map[asdu104.IOA]chan CallResult),
		ctrlOut: make(map[asdu104.IOA]*ctrlPending),
	}
}

// Online reports whether the device currently has an active link.
func (d *Device) Online() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.online
}

// Call submits an on-demand read and blocks until answered or ctx ends.
func (d *Device) Call(ctx context.Context, ioa asdu104.IOA) (InformationSample, error) {
	reply := make(chan CallResult, 1)
	select {
	case d.callCh <- CallRequest{IOA: ioa, Reply: reply}:
	case <-ctx.Done():
		return InformationSample{}, ctx.Err()
	}
	select {
	case res := <-reply:
		return res.Object, res.Err
	case <-ctx.Done():
		return InformationSample{}, ctx.Err()
	}
}

// Ctrl submits a select-and-execute command and blocks until answered or
// ctx ends.
func (d *Device) Ctrl(ctx context.Context, cmd asdu104.InformationObject) error {
	reply := make(chan CtrlResult, 1)
	select {
	case d.ctrlCh <- CtrlRequest{Command: cmd, Reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case res := <-reply:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run owns the device's entire life: connect, poll, serve requests,
// reconnect on failure, until ctx is cancelled.
func (d *Device) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := d.runOnce(ctx); err != nil {
			d.Log.WithError(err).Warn("device session ended")
		}
		d.setOnline(false)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.Cfg.ReconnectBackoff):
		}
	}
}

func (d *Device) setOnline(v bool) {
	d.mu.Lock()
	d.online = v
	d.mu.Unlock()
}

func (d *Device) runOnce(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, d.Cfg.DialTimeout)
	conn, err := d.Dial(dialCtx, d.Addr)
	cancel()
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	lk := link.New(conn, d.Cfg.Link, d.Log.Logger)
	startCtx, startCancel := context.WithTimeout(ctx, d.Cfg.Link.T0)
	err = lk.Start(startCtx)
	startCancel()
	if err != nil {
		lk.Close()
		return fmt.Errorf("startdt: %w", err)
	}
	defer lk.Close()

	d.mu.Lock()
	d.lk = lk
	d.mu.Unlock()
	d.setOnline(true)
	d.Log.Info("device connected")

	if err := d.syncClock(lk); err != nil {
		d.Log.WithError(err).Warn("clock sync failed")
	}
	if err := d.generalInterrogation(lk); err != nil {
		d.Log.WithError(err).Warn("initial general interrogation failed")
	}

	pollTicker := time.NewTicker(d.Cfg.PollInterval)
	defer pollTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-lk.Done():
			return lk.Err()
		case asdu := <-lk.Incoming():
			d.dispatchIncoming(lk, asdu)
		case <-pollTicker.C:
			if err := d.generalInterrogation(lk); err != nil {
				d.Log.WithError(err).Warn("periodic general interrogation failed")
			}
			if err := d.counterInterrogation(lk); err != nil {
				d.Log.WithError(err).Warn("periodic counter interrogation failed")
			}
		case req := <-d.callCh:
			d.handleCall(lk, req)
		case req := <-d.ctrlCh:
			d.handleCtrl(lk, req)
		}
	}
}

func (d *Device) syncClock(lk *link.Link) error {
	asdu := asdu104.ASDU{
		Type: asdu104.CCsNA1, Cause: asdu104.CauseAct, CommonAddr: d.Cfg.CommonAddr,
		Objects: []asdu104.InformationObject{
			asdu104.ClockSync{IOA: 0, Time56: asdu104.NewCP56Time2a(time.Now())},
		},
	}
	return lk.SendASDU(asdu)
}

func (d *Device) generalInterrogation(lk *link.Link) error {
	asdu := asdu104.ASDU{
		Type: asdu104.CIcNA1, Cause: asdu104.CauseAct, CommonAddr: d.Cfg.CommonAddr,
		Objects: []asdu104.InformationObject{asdu104.GeneralInterrogation{IOA: 0, Qualifier: 20}},
	}
	return lk.SendASDU(asdu)
}

func (d *Device) counterInterrogation(lk *link.Link) error {
	asdu := asdu104.ASDU{
		Type: asdu104.CCiNA1, Cause: asdu104.CauseAct, CommonAddr: d.Cfg.CommonAddr,
		Objects: []asdu104.InformationObject{asdu104.CounterInterrogation{IOA: 0, Qualifier: 5}},
	}
	return lk.SendASDU(asdu)
}

func (d *Device) dispatchIncoming(lk *link.Link, a asdu104.ASDU) {
	now := time.Now()
	for _, obj := range a.Objects {
		d.mu.Lock()
		reply, waiting := d.pending[obj.Addr()]
		if waiting {
			delete(d.pending, obj.Addr())
		}
		d.mu.Unlock()
		if waiting {
			reply <- CallResult{Object: InformationSample{
				CommonAddr: a.CommonAddr, Type: a.Type, Cause: a.Cause, Object: obj, RecvTime: now,
			}}
		}
		if d.Samples != nil {
			select {
			case d.Samples <- InformationSample{CommonAddr: a.CommonAddr, Type: a.Type, Cause: a.Cause, Object: obj, RecvTime: now}:
			default:
				d.Log.Warn("sample channel full, dropping measurement")
			}
		}
	}
	if a.Type == asdu104.CScNA1 || a.Type == asdu104.CDcNA1 || a.Type == asdu104.CRcNA1 ||
		a.Type == asdu104.CSeNA1 || a.Type == asdu104.CSeNB1 || a.Type == asdu104.CSeNC1 ||
		a.Type == asdu104.CBoNA1 {
		d.resolveCtrl(lk, a)
	}
}

// resolveCtrl drives the select-and-execute handshake: the first actcon
// with its select bit still set confirms the select phase and triggers a
// resend of the same command with select cleared (the execute phase); an
// actcon with select already clear — whether because the peer answered
// the execute phase or because it has no select stage at all — completes
// the command.
func (d *Device) resolveCtrl(lk *link.Link, a asdu104.ASDU) {
	if a.Cause != asdu104.CauseActCon && a.Cause != asdu104.CauseActTerm {
		return
	}
	for _, obj := range a.Objects {
		d.mu.Lock()
		pend, waiting := d.ctrlOut[obj.Addr()]
		d.mu.Unlock()
		if !waiting {
			continue
		}

		if a.Negative {
			d.mu.Lock()
			delete(d.ctrlOut, obj.Addr())
			d.mu.Unlock()
			pend.reply <- CtrlResult{Err: fmt.Errorf("device: command rejected for IOA %d", obj.Addr())}
			continue
		}

		if isSelect(obj) {
			typ, err := commandTypeID(pend.command)
			if err != nil {
				d.mu.Lock()
				delete(d.ctrlOut, obj.Addr())
				d.mu.Unlock()
				pend.reply <- CtrlResult{Err: err}
				continue
			}
			execCmd := withSelect(pend.command, false)
			d.mu.Lock()
			d.ctrlOut[obj.Addr()] = &ctrlPending{reply: pend.reply, command: execCmd}
			d.mu.Unlock()
			if err := d.sendCtrlFrame(lk, typ, execCmd); err != nil {
				d.mu.Lock()
				delete(d.ctrlOut, obj.Addr())
				d.mu.Unlock()
				pend.reply <- CtrlResult{Err: err}
			}
			continue
		}

		d.mu.Lock()
		delete(d.ctrlOut, obj.Addr())
		d.mu.Unlock()
		pend.reply <- CtrlResult{}
	}
}

func (d *Device) handleCall(lk *link.Link, req CallRequest) {
	d.mu.Lock()
	d.pending[req.IOA] = req.Reply
	d.mu.Unlock()

	asdu := asdu104.ASDU{
		Type: asdu104.CRdNA1, Cause: asdu104.CauseReq, CommonAddr: d.Cfg.CommonAddr,
		Objects: []asdu104.InformationObject{asdu104.ReadCommand{IOA: req.IOA}},
	}
	if err := lk.SendASDU(asdu); err != nil {
		d.mu.Lock()
		delete(d.pending, req.IOA)
		d.mu.Unlock()
		req.Reply <- CallResult{Err: err}
	}
}

func (d *Device) handleCtrl(lk *link.Link, req CtrlRequest) {
	ioa := req.Command.Addr()

	typ, err := commandTypeID(req.Command)
	if err != nil {
		req.Reply <- CtrlResult{Err: err}
		return
	}

	cmd := withSelect(req.Command, true)
	d.mu.Lock()
	d.ctrlOut[ioa] = &ctrlPending{reply: req.Reply, command: cmd}
	d.mu.Unlock()

	if err := d.sendCtrlFrame(lk, typ, cmd); err != nil {
		d.mu.Lock()
		delete(d.ctrlOut, ioa)
		d.mu.Unlock()
		req.Reply <- CtrlResult{Err: err}
	}
}

func (d *Device) sendCtrlFrame(lk *link.Link, typ asdu104.TypeID, cmd asdu104.InformationObject) error {
	asdu := asdu104.ASDU{
		Type: typ, Cause: asdu104.CauseAct, CommonAddr: d.Cfg.CommonAddr,
		Objects: []asdu104.InformationObject{cmd},
	}
	return lk.SendASDU(asdu)
}

// withSelect returns cmd with its select bit set to sel. Command types
// with no select stage (BitstringCommand) are returned unchanged.
func withSelect(cmd asdu104.InformationObject, sel bool) asdu104.InformationObject {
	switch v := cmd.(type) {
	case asdu104.SingleCommand:
		v.Select = sel
		return v
	case asdu104.DoubleCommand:
		v.Select = sel
		return v
	case asdu104.StepCommand:
		v.Select = sel
		return v
	case asdu104.SetpointNormalized:
		v.Select = sel
		return v
	case asdu104.SetpointScaled:
		v.Select = sel
		return v
	case asdu104.SetpointFloat:
		v.Select = sel
		return v
	default:
		return cmd
	}
}

// isSelect reports whether a received command object still carries its
// select bit. Command types with no select stage report false, which
// resolveCtrl treats as an immediate execute-phase completion.
func isSelect(obj asdu104.InformationObject) bool {
	switch v := obj.(type) {
	case asdu104.SingleCommand:
		return v.Select
	case asdu104.DoubleCommand:
		return v.Select
	case asdu104.StepCommand:
		return v.Select
	case asdu104.SetpointNormalized:
		return v.Select
	case asdu104.SetpointScaled:
		return v.Select
	case asdu104.SetpointFloat:
		return v.Select
	default:
		return false
	}
}

// commandTypeID identifies the ASDU type identifier for a command
// information object, since InformationObject carries no type tag of its
// own by design.
func commandTypeID(obj asdu104.InformationObject) (asdu104.TypeID, error) {
	switch obj.(type) {
	case asdu104.SingleCommand:
		return asdu104.CScNA1, nil
	case asdu104.DoubleCommand:
		return asdu104.CDcNA1, nil
	case asdu104.StepCommand:
		return asdu104.CRcNA1, nil
	case asdu104.SetpointNormalized:
		return asdu104.CSeNA1, nil
	case asdu104.SetpointScaled:
		return asdu104.CSeNB1, nil
	case asdu104.SetpointFloat:
		return asdu104.CSeNC1, nil
	case asdu104.BitstringCommand:
		return asdu104.CBoNA1, nil
	default:
		return 0, fmt.Errorf("device: %T is not a command object", obj)
	}
}
