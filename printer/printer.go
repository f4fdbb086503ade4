// Package printer drives a single print transaction end to end: invalidate,
// initialize, status probe, job header, raster line stream, cooling
// recovery, and copy-to-copy verification. It also exposes the public
// driver API (discovery, status, current label, print) that callers use.
package printer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/PercyJax/brother-ql-rs/internal/config"
	"github.com/PercyJax/brother-ql-rs/internal/telemetry"
	"github.com/PercyJax/brother-ql-rs/job"
	"github.com/PercyJax/brother-ql-rs/label"
	"github.com/PercyJax/brother-ql-rs/raster"
	"github.com/PercyJax/brother-ql-rs/status"
	"github.com/PercyJax/brother-ql-rs/usb"
)

// State is the print state machine's current position, tracked across the
// whole print call (not reset between copies).
type State int

const (
	StateWaiting State = iota
	StatePrintingStarted
	StatePrintingFinished
	StateCooling
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "Waiting"
	case StatePrintingStarted:
		return "PrintingStarted"
	case StatePrintingFinished:
		return "PrintingFinished"
	case StateCooling:
		return "Cooling"
	case StateErrored:
		return "Errored"
	default:
		return "Unknown"
	}
}

// ProtocolError reports a protocol-layer violation at run time: bad magic
// bytes already surface from package status, so this is reserved for
// violations only the state machine can see — unexpected phase, unexpected
// state, exhausted retry budgets.
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string { return "printer: " + e.Msg }

// ThermalPrinter is the exclusive owner of a claimed device's transport for
// its lifetime. It is not safe for concurrent use: the protocol is strictly
// synchronous, one outstanding write or read at a time.
type ThermalPrinter struct {
	transport usb.Transport
	opts      config.Options
	telemetry *telemetry.Ring

	Manufacturer string
	Model        string

	// OnTransition, if set, is invoked with every state the read loop
	// passes through, including intermediate ones that don't yield. The
	// demonstration CLI uses it to drive a spinner across cooling pauses.
	OnTransition func(from, to State)

	state State
}

// Printers enumerates attached, supported devices. It never fails outright;
// see usb.Printers.
func Printers(opts config.Options) ([]usb.RawDevice, error) {
	return usb.Printers(opts)
}

// New opens raw, runs its reset sequence, and probes status once to
// confirm the device answers before returning a ready-to-use printer.
func New(ctx context.Context, raw usb.RawDevice, opts config.Options) (*ThermalPrinter, error) {
	handle, err := usb.Open(ctx, raw, opts)
	if err != nil {
		return nil, err
	}

	p := &ThermalPrinter{
		transport:    handle,
		opts:         opts,
		telemetry:    telemetry.New(64),
		Manufacturer: handle.Manufacturer,
		Model:        handle.Model,
		state:        StateWaiting,
	}

	if _, err := probeStatus(ctx, p.transport, opts); err != nil {
		handle.Close()
		return nil, fmt.Errorf("printer: initial status probe: %w", err)
	}
	return p, nil
}

// Close releases the underlying transport.
func (p *ThermalPrinter) Close() error {
	return p.transport.Close()
}

// Options returns the effective runtime configuration.
func (p *ThermalPrinter) Options() config.Options {
	return p.opts
}

// RecentPhases returns the most recent state machine transitions recorded
// for diagnostics; it is purely observational.
func (p *ThermalPrinter) RecentPhases() []telemetry.PhaseSample {
	return p.telemetry.Recent()
}

// GetStatus issues a single status request/reply.
func (p *ThermalPrinter) GetStatus(ctx context.Context) (status.Response, error) {
	return probeStatus(ctx, p.transport, p.opts)
}

// CurrentLabel resolves the device's currently reported media against the
// label catalogue.
func (p *ThermalPrinter) CurrentLabel(ctx context.Context) (label.Label, error) {
	st, err := p.GetStatus(ctx)
	if err != nil {
		return label.Label{}, err
	}
	l, err := label.Of(st.Media)
	if err != nil {
		return label.Label{}, fmt.Errorf("printer: %w", err)
	}
	return l, nil
}

// PrintImage encodes img and streams it to the device copies times,
// resolving the label geometry from the device's current status.
func (p *ThermalPrinter) PrintImage(ctx context.Context, img image.Image, orientation raster.Orientation, dither bool, copies int) (status.Response, error) {
	if copies < 1 {
		return status.Response{}, &ProtocolError{Msg: "copies must be at least 1"}
	}

	if err := p.invalidate(ctx); err != nil {
		return status.Response{}, err
	}
	if err := p.initialize(ctx); err != nil {
		return status.Response{}, err
	}

	st, err := probeStatus(ctx, p.transport, p.opts)
	if err != nil {
		return status.Response{}, err
	}
	if st.Phase != status.PhaseWaitingToReceive {
		return status.Response{}, &ProtocolError{Msg: "invalid phase at start of print"}
	}

	lbl, err := label.Of(st.Media)
	if err != nil {
		return status.Response{}, fmt.Errorf("printer: %w", err)
	}

	lines, err := raster.Encode(img, lbl.DotsPrintable, orientation, dither)
	if err != nil {
		return status.Response{}, fmt.Errorf("printer: encoding raster: %w", err)
	}

	p.state = StateWaiting

	for copy := 0; copy < copies; copy++ {
		page := job.PageOther
		if copy == 0 {
			page = job.PageStarting
		}
		info := job.NewInfo(st.Media, uint32(len(lines)))
		info.Page = page

		header, err := job.Build(info)
		if err != nil {
			return status.Response{}, fmt.Errorf("printer: building job header: %w", err)
		}
		if err := p.transport.Write(ctx, header, p.opts.GeneralTimeout); err != nil {
			return status.Response{}, fmt.Errorf("printer: writing job header: %w", err)
		}

		for i, line := range lines {
			if err := p.writeLine(ctx, line); err != nil {
				return status.Response{}, fmt.Errorf("printer: line %d: %w", i, err)
			}
		}

		terminator := byte(0x0c)
		if copy == copies-1 {
			terminator = 0x1a
		}
		if err := p.transport.Write(ctx, []byte{terminator}, p.opts.LinePrintTimeout); err != nil {
			return status.Response{}, fmt.Errorf("printer: writing terminator: %w", err)
		}

		next, err := p.runReadLoop(ctx, p.state)
		if err != nil {
			p.state = StateErrored
			return status.Response{}, err
		}
		if next != StateWaiting {
			p.state = StateErrored
			return status.Response{}, &ProtocolError{Msg: "unexpected state during verification"}
		}
		p.state = next
	}

	return probeStatus(ctx, p.transport, p.opts)
}

// writeLine sends one raster line, absorbing at most opts.CoolingMaxCycles
// cooling pauses before giving up on the line.
func (p *ThermalPrinter) writeLine(ctx context.Context, line raster.Line) error {
	cmd := make([]byte, 0, 3+len(line))
	cmd = append(cmd, 0x67, 0x00, 0x5a)
	cmd = append(cmd, line[:]...)

	for cycles := 0; ; cycles++ {
		if p.state != StateWaiting && p.state != StatePrintingStarted {
			return &ProtocolError{Msg: fmt.Sprintf("unexpected state at start of line print: %s", p.state)}
		}

		err := p.transport.Write(ctx, cmd, p.opts.LinePrintTimeout)
		if err == nil {
			return nil
		}

		var uerr *usb.Error
		if !errors.As(err, &uerr) || uerr.Kind != usb.KindTimeout {
			return err
		}
		if cycles >= p.opts.CoolingMaxCycles {
			return &ProtocolError{Msg: "cooling recovery exhausted"}
		}

		next, err := p.runReadLoop(ctx, p.state)
		if err != nil {
			return err
		}
		if next != StatePrintingStarted {
			return &ProtocolError{Msg: fmt.Sprintf("unexpected state after cooling recovery: %s", next)}
		}
		p.state = next
		// loop: retry the same line
	}
}

// invalidate writes 400 zero bytes, retrying any write error (Busy
// silently, others after logging them) with a bounded exponential backoff. The original unbounded busy-loop is a documented
// open design note; this caps it at InvalidateMaxAttempts general-timeout
// intervals and surfaces a definite error instead of looping forever.
func (p *ThermalPrinter) invalidate(ctx context.Context) error {
	zero := make([]byte, 400)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxElapsedTime = time.Duration(p.opts.InvalidateMaxAttempts) * p.opts.GeneralTimeout

	op := func() error {
		err := p.transport.Write(ctx, zero, p.opts.GeneralTimeout)
		var uerr *usb.Error
		if err != nil && errors.As(err, &uerr) && uerr.Kind == usb.KindBusy {
			return err // retried by backoff
		}
		if err != nil {
			log.Printf("printer: invalidate: non-busy error, retrying: %v", err)
			return err
		}
		return nil
	}

	if err := backoff.Retry(op, bo); err != nil {
		return &ProtocolError{Msg: fmt.Sprintf("invalidate: retry budget exhausted: %v", err)}
	}
	return nil
}

// initialize writes the 400 zero byte reset a second time, without retry;
// any error aborts the print.
func (p *ThermalPrinter) initialize(ctx context.Context) error {
	zero := make([]byte, 400)
	if err := p.transport.Write(ctx, zero, p.opts.GeneralTimeout); err != nil {
		return fmt.Errorf("printer: initialize: %w", err)
	}
	return nil
}

// probeStatus issues a status request and polls for the reply, bounded by
// opts.GeneralTimeout overall.
func probeStatus(ctx context.Context, t usb.Transport, opts config.Options) (status.Response, error) {
	if err := t.Write(ctx, []byte{0x1b, 0x69, 0x53}, opts.GeneralTimeout); err != nil {
		return status.Response{}, fmt.Errorf("printer: status request: %w", err)
	}

	deadline := time.Now().Add(opts.GeneralTimeout)
	for {
		resp, ok, err := readOneFrame(ctx, t, opts.GeneralTimeout)
		if err != nil {
			return status.Response{}, err
		}
		if ok {
			return resp, nil
		}
		if time.Now().After(deadline) {
			return status.Response{}, &usb.Error{Kind: usb.KindTimeout, Err: usb.ErrTimeout}
		}
		select {
		case <-ctx.Done():
			return status.Response{}, ctx.Err()
		case <-time.After(opts.CooldownInterval):
		}
	}
}

// readOneFrame reads a single status frame, returning ok=false for an empty
// or malformed read (both of which the caller should retry) rather than an
// error.
func readOneFrame(ctx context.Context, t usb.Transport, timeout time.Duration) (status.Response, bool, error) {
	var buf [status.Size]byte
	n, err := t.Read(ctx, buf[:], timeout)
	if err != nil {
		return status.Response{}, false, err
	}
	if n == 0 {
		return status.Response{}, false, nil
	}
	if n != status.Size || buf[0] != 0x80 {
		log.Printf("printer: malformed status frame (n=%d, byte0=0x%02x), retrying", n, buf[0])
		return status.Response{}, false, nil
	}
	resp, err := status.Parse(buf)
	if err != nil {
		return status.Response{}, false, err
	}
	return resp, true, nil
}

// transitionResult is the outcome of one step() call: the new state, and
// whether the read loop must yield control back to its caller.
type transitionResult struct {
	next  State
	yield bool
}

// step is the pure transition function the read loop drives: given the
// current state and the next frame observed, what state follows and
// whether the loop must return now.
func step(state State, frame status.Response) transitionResult {
	switch state {
	case StateWaiting:
		if frame.Type == status.TypePhaseChange && frame.Phase == status.PhasePrintingState {
			return transitionResult{StatePrintingStarted, false}
		}
	case StatePrintingStarted:
		if frame.Type == status.TypePrintingCompleted {
			return transitionResult{StatePrintingFinished, false}
		}
		if frame.Type == status.TypeNotification && frame.Notification == status.NotificationCoolingStarted {
			return transitionResult{StateCooling, false}
		}
	case StatePrintingFinished:
		if frame.Type == status.TypePhaseChange {
			return transitionResult{StateWaiting, true}
		}
	case StateCooling:
		if frame.Type == status.TypeNotification && frame.Notification == status.NotificationCoolingFinished {
			return transitionResult{StatePrintingStarted, true}
		}
	}
	return transitionResult{StateErrored, true}
}

// runReadLoop reads frames and advances state via step until a transition
// yields control back, a read fails, or an unlisted frame is observed.
func (p *ThermalPrinter) runReadLoop(ctx context.Context, state State) (State, error) {
	for {
		resp, ok, err := readOneFrame(ctx, p.transport, p.opts.GeneralTimeout)
		if err != nil {
			return StateErrored, fmt.Errorf("printer: read loop: %w", err)
		}
		if !ok {
			select {
			case <-ctx.Done():
				return state, ctx.Err()
			case <-time.After(p.opts.CooldownInterval):
			}
			continue
		}

		from := state
		start := time.Now()
		result := step(state, resp)
		p.telemetry.Record(fmt.Sprintf("%s->%s", from, result.next), time.Since(start), time.Now())
		state = result.next
		if p.OnTransition != nil {
			p.OnTransition(from, state)
		}

		if !result.yield {
			continue
		}
		if state == StateErrored {
			msg := fmt.Sprintf("unexpected frame from state %s (type=%v phase=%v notification=%v)",
				from, resp.Type, resp.Phase, resp.Notification)
			if len(resp.Errors) > 0 {
				msg += ": " + strings.Join(resp.Errors, ", ")
			}
			return state, &ProtocolError{Msg: msg}
		}
		return state, nil
	}
}
