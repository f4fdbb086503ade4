// Package usb claims a Brother-protocol thermal printer's USB interface and
// exposes its bulk endpoints as a timed, synchronous transport.
//
// Only the shapes needed by the raster protocol are modeled: one claimed
// interface, one bulk-IN and one bulk-OUT endpoint, timed reads and writes.
// Everything else about the device (its descriptors, alternate settings,
// string tables) is discarded once Open succeeds.
package usb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"

	"github.com/PercyJax/brother-ql-rs/internal/config"
)

// Kind classifies a transport-level failure the way the protocol layer
// needs to distinguish them: a timed-out transfer can be retried or treated
// as an implicit cooling pause, a busy endpoint is retried silently during
// invalidate, anything else aborts the call.
type Kind int

const (
	// KindOther is any transport failure that isn't a timeout or busy signal.
	KindOther Kind = iota
	KindTimeout
	KindBusy
)

// ErrTimeout and ErrBusy are the sentinels Transport implementations wrap.
// Callers recover them with errors.Is regardless of how deep the error has
// been wrapped by fmt.Errorf("...: %w", err).
var (
	ErrTimeout = errors.New("usb: timeout")
	ErrBusy    = errors.New("usb: endpoint busy")
)

// Error is a transport-level failure carried verbatim from the bulk
// endpoint, tagged with a Kind so callers can branch without string
// matching.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("usb: %s", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func timeoutError(err error) error {
	return &Error{Kind: KindTimeout, Err: fmt.Errorf("%w: %v", ErrTimeout, err)}
}

func busyError(err error) error {
	return &Error{Kind: KindBusy, Err: fmt.Errorf("%w: %v", ErrBusy, err)}
}

// StructuralError reports a device that does not match the fixed shape this
// package assumes: exactly one interface, one alternate setting, and
// exactly one bulk-IN and one bulk-OUT endpoint.
type StructuralError struct {
	Msg string
}

func (e *StructuralError) Error() string { return "usb: " + e.Msg }

// Endpoints holds the addresses of the claimed bulk pair.
type Endpoints struct {
	In, Out gousb.EndpointAddress
}

// Transport is the abstract bulk endpoint pair the print state machine
// drives. The production implementation is *DeviceHandle; tests substitute
// *FakeTransport to script solicited replies and unsolicited notifications
// without real hardware.
type Transport interface {
	// Write sends b and returns once the whole buffer is queued or timeout
	// elapses. A deadline exceeded surfaces as an *Error with Kind ==
	// KindTimeout; an endpoint reporting itself busy surfaces KindBusy.
	Write(ctx context.Context, b []byte, timeout time.Duration) error

	// Read fills buf from the bulk-IN endpoint, returning the number of
	// bytes actually read. Zero bytes with a nil error means "no frame
	// arrived yet" per the device's idle-read behavior; it is not an error.
	Read(ctx context.Context, buf []byte, timeout time.Duration) (int, error)

	// Close releases the claimed interface.
	Close() error
}

// DeviceHandle is a claimed USB interface with its bulk endpoint pair. It is
// the exclusive owner of the interface for its lifetime and must be closed
// to release it.
type DeviceHandle struct {
	dev    *gousb.Device
	iface  *gousb.Interface
	closer func()

	in  *gousb.InEndpoint
	out *gousb.OutEndpoint

	Endpoints    Endpoints
	Manufacturer string
	Model        string
}

// Open claims the sole interface of raw, verifies it exposes exactly one
// bulk-IN and one bulk-OUT endpoint, detaches any kernel driver holding it
// (absence of one is not an error), and runs the device's reset sequence:
// 200 zero bytes followed by the two-byte initialize command.
func Open(ctx context.Context, raw RawDevice, opts config.Options) (*DeviceHandle, error) {
	dev := raw.dev

	if err := dev.SetAutoDetach(true); err != nil {
		return nil, &StructuralError{Msg: fmt.Sprintf("detaching kernel driver: %v", err)}
	}

	iface, closer, err := dev.DefaultInterface()
	if err != nil {
		return nil, &StructuralError{Msg: fmt.Sprintf("claiming default interface: %v", err)}
	}

	var inAddr, outAddr gousb.EndpointAddress
	var haveIn, haveOut bool
	for addr, ep := range iface.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			closer()
			return nil, &StructuralError{Msg: "endpoint is not bulk"}
		}
		if ep.Direction == gousb.EndpointDirectionIn {
			if haveIn {
				closer()
				return nil, &StructuralError{Msg: "more than one bulk-IN endpoint"}
			}
			inAddr, haveIn = addr, true
		} else {
			if haveOut {
				closer()
				return nil, &StructuralError{Msg: "more than one bulk-OUT endpoint"}
			}
			outAddr, haveOut = addr, true
		}
	}
	if !haveIn || !haveOut {
		closer()
		return nil, &StructuralError{Msg: "missing bulk-IN or bulk-OUT endpoint"}
	}

	in, err := iface.InEndpoint(int(inAddr))
	if err != nil {
		closer()
		return nil, &StructuralError{Msg: fmt.Sprintf("opening bulk-IN endpoint: %v", err)}
	}
	out, err := iface.OutEndpoint(int(outAddr))
	if err != nil {
		closer()
		return nil, &StructuralError{Msg: fmt.Sprintf("opening bulk-OUT endpoint: %v", err)}
	}

	h := &DeviceHandle{
		dev:          dev,
		iface:        iface,
		closer:       closer,
		in:           in,
		out:          out,
		Endpoints:    Endpoints{In: inAddr, Out: outAddr},
		Manufacturer: raw.Manufacturer,
		Model:        raw.Model,
	}

	reset := make([]byte, 200)
	if err := h.Write(ctx, reset, opts.GeneralTimeout); err != nil {
		h.Close()
		return nil, fmt.Errorf("usb: reset sequence: %w", err)
	}
	if err := h.Write(ctx, []byte{0x1b, 0x40}, opts.GeneralTimeout); err != nil {
		h.Close()
		return nil, fmt.Errorf("usb: initialize sequence: %w", err)
	}
	return h, nil
}

// withDeadline runs fn in a goroutine and races it against timeout and ctx.
// A transfer that times out is abandoned rather than cancelled: gousb bulk
// transfers have no portable cancellation short of closing the endpoint,
// and the protocol already resynchronises on the next invalidate sequence.
func withDeadline(ctx context.Context, timeout time.Duration, fn func() (int, error)) (int, error) {
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := fn()
		done <- result{n, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-done:
		return r.n, r.err
	case <-timer.C:
		return 0, timeoutError(fmt.Errorf("no response within %s", timeout))
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Write implements Transport.
func (h *DeviceHandle) Write(ctx context.Context, b []byte, timeout time.Duration) error {
	_, err := withDeadline(ctx, timeout, func() (int, error) {
		return h.out.Write(b)
	})
	return classify(err)
}

// Read implements Transport.
func (h *DeviceHandle) Read(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	n, err := withDeadline(ctx, timeout, func() (int, error) {
		return h.in.Read(buf)
	})
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

// classify folds a raw gousb error (or our own synthetic timeout) into the
// tagged *Error the rest of the driver branches on.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*Error); ok {
		return err
	}
	var ge gousb.Error
	if errors.As(err, &ge) {
		switch ge {
		case gousb.ErrorTimeout:
			return timeoutError(ge)
		case gousb.ErrorBusy:
			return busyError(ge)
		}
	}
	return &Error{Kind: KindOther, Err: err}
}

// Close releases the claimed interface.
func (h *DeviceHandle) Close() error {
	h.closer()
	return nil
}
