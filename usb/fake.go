package usb

import (
	"context"
	"errors"
	"sync"
	"time"
)

// errFakeExhausted is returned when a test reads past its scripted frames;
// it indicates a test bug, not a simulated device condition.
var errFakeExhausted = errors.New("usb: fake transport has no more scripted frames")

// FakeTransport is a scriptable Transport used by package printer's tests.
// It mirrors the style of the corpus's tcpEchoServer test fakes: a small
// in-memory stand-in that lets a test assert on what was written and queue
// up what should be read back, including injected Busy/Timeout failures.
type FakeTransport struct {
	mu sync.Mutex

	// Written records every buffer passed to Write, in order.
	Written [][]byte

	// frames are consumed in order by Read. An entry with empty set means
	// "no frame yet" (Read returns 0, nil, as the real device does on an
	// empty bulk-IN poll).
	frames []frameOrErr

	// writeErrs are consumed in order by Write, ahead of a successful
	// write; a nil entry means the write succeeds normally.
	writeErrs []error

	closed bool
}

type frameOrErr struct {
	frame [32]byte
	empty bool
	err   error
}

// NewFakeTransport returns an empty fake with nothing scripted yet.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{}
}

// QueueFrame schedules a 32-byte status frame to be returned by the next
// Read call.
func (f *FakeTransport) QueueFrame(frame [32]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frameOrErr{frame: frame})
}

// QueueEmptyRead schedules a zero-length read, modeling "no frame yet".
func (f *FakeTransport) QueueEmptyRead() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frameOrErr{empty: true})
}

// QueueReadError schedules Read to fail with err.
func (f *FakeTransport) QueueReadError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frameOrErr{err: err})
}

// QueueWriteError appends err to the outcomes consumed in order by
// successive Write calls: a non-nil err makes that Write fail without
// recording the buffer, a nil err lets it succeed normally.
func (f *FakeTransport) QueueWriteError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErrs = append(f.writeErrs, err)
}

// Write implements Transport.
func (f *FakeTransport) Write(ctx context.Context, b []byte, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writeErrs) > 0 {
		err := f.writeErrs[0]
		f.writeErrs = f.writeErrs[1:]
		if err != nil {
			return err
		}
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	f.Written = append(f.Written, cp)
	return nil
}

// Read implements Transport.
func (f *FakeTransport) Read(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) == 0 {
		return 0, timeoutError(errFakeExhausted)
	}
	next := f.frames[0]
	f.frames = f.frames[1:]
	if next.err != nil {
		return 0, next.err
	}
	if next.empty {
		return 0, nil
	}
	n := copy(buf, next.frame[:])
	return n, nil
}

// Close implements Transport.
func (f *FakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
