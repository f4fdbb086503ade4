package printer

import (
	"context"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/PercyJax/brother-ql-rs/internal/config"
	"github.com/PercyJax/brother-ql-rs/internal/telemetry"
	"github.com/PercyJax/brother-ql-rs/raster"
	"github.com/PercyJax/brother-ql-rs/status"
	"github.com/PercyJax/brother-ql-rs/usb"
)

func testOpts() config.Options {
	o := config.Default()
	o.CoolingMaxCycles = 3
	return o
}

func newTestPrinter(fake *usb.FakeTransport, opts config.Options) *ThermalPrinter {
	return &ThermalPrinter{
		transport: fake,
		opts:      opts,
		telemetry: telemetry.New(64),
		state:     StateWaiting,
	}
}

func continuousTapeStatus() status.Response {
	return status.Response{
		ModelCode: 0x38,
		ModelName: "QL-800",
		Type:      status.TypeReply,
		Phase:     status.PhaseWaitingToReceive,
		Media:     status.Media{Type: status.MediaContinuousTape, WidthMM: 62, LengthMM: 0},
	}
}

// stripImage returns a width x height image suitable for a minimal raster
// job: a single black pixel with the rest white.
func stripImage(width, height int) image.Image {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray(x, y, color.Gray{Y: 0xff})
		}
	}
	img.SetGray(0, 0, color.Gray{Y: 0x00})
	return img
}

func TestPrintImageHappyPathOneCopy(t *testing.T) {
	fake := usb.NewFakeTransport()
	fake.QueueFrame(continuousTapeStatus().Serialize())       // initial probe
	fake.QueueFrame(statusFrame(status.TypePhaseChange, status.PhasePrintingState, status.NotificationNotAvailable))
	fake.QueueFrame(statusFrame(status.TypePrintingCompleted, status.PhaseWaitingToReceive, status.NotificationNotAvailable))
	fake.QueueFrame(statusFrame(status.TypePhaseChange, status.PhaseWaitingToReceive, status.NotificationNotAvailable))
	fake.QueueFrame(continuousTapeStatus().Serialize()) // final probe

	p := newTestPrinter(fake, testOpts())
	img := stripImage(696, 1) // 696 wide matches the 62mm label's dots_printable, 1 tall => one raster line

	final, err := p.PrintImage(context.Background(), img, raster.Normal, false, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.Phase != status.PhaseWaitingToReceive {
		t.Errorf("final phase = %v, want WaitingToReceive", final.Phase)
	}

	wantWrites := 7 // invalidate, initialize, status req, header, 1 line, terminator, final status req
	if len(fake.Written) != wantWrites {
		t.Fatalf("writes = %d, want %d: %v", len(fake.Written), wantWrites, lengths(fake.Written))
	}
	if len(fake.Written[4]) != 3+90 {
		t.Errorf("raster line command length = %d, want 93", len(fake.Written[4]))
	}
	if fake.Written[5][0] != 0x1a {
		t.Errorf("terminator = %#x, want 0x1a (print with feed, last copy)", fake.Written[5][0])
	}
}

func TestPrintImageTwoCopies(t *testing.T) {
	fake := usb.NewFakeTransport()
	fake.QueueFrame(continuousTapeStatus().Serialize()) // initial probe
	for i := 0; i < 2; i++ {
		fake.QueueFrame(statusFrame(status.TypePhaseChange, status.PhasePrintingState, status.NotificationNotAvailable))
		fake.QueueFrame(statusFrame(status.TypePrintingCompleted, status.PhaseWaitingToReceive, status.NotificationNotAvailable))
		fake.QueueFrame(statusFrame(status.TypePhaseChange, status.PhaseWaitingToReceive, status.NotificationNotAvailable))
	}
	fake.QueueFrame(continuousTapeStatus().Serialize()) // final probe

	p := newTestPrinter(fake, testOpts())
	img := stripImage(696, 1)

	if _, err := p.PrintImage(context.Background(), img, raster.Normal, false, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// invalidate, initialize, status req, (header, line, terminator) x2, final status req
	wantWrites := 3 + 3*2 + 1
	if len(fake.Written) != wantWrites {
		t.Fatalf("writes = %d, want %d", len(fake.Written), wantWrites)
	}
	firstTerminator := fake.Written[5][0]
	secondTerminator := fake.Written[8][0]
	if firstTerminator != 0x0c {
		t.Errorf("first terminator = %#x, want 0x0c (more copies follow)", firstTerminator)
	}
	if secondTerminator != 0x1a {
		t.Errorf("second terminator = %#x, want 0x1a (final copy)", secondTerminator)
	}
}

func TestPrintImageCoolingPauseRetriesLine(t *testing.T) {
	fake := usb.NewFakeTransport()
	fake.QueueFrame(continuousTapeStatus().Serialize()) // initial probe

	// Frames absorbed mid-line1 while recovering from cooling.
	fake.QueueFrame(statusFrame(status.TypePhaseChange, status.PhasePrintingState, status.NotificationNotAvailable))
	fake.QueueFrame(statusFrame(status.TypeNotification, status.PhaseWaitingToReceive, status.NotificationCoolingStarted))
	fake.QueueFrame(statusFrame(status.TypeNotification, status.PhaseWaitingToReceive, status.NotificationCoolingFinished))

	// Frames for the post-terminator verification loop.
	fake.QueueFrame(statusFrame(status.TypePrintingCompleted, status.PhaseWaitingToReceive, status.NotificationNotAvailable))
	fake.QueueFrame(statusFrame(status.TypePhaseChange, status.PhaseWaitingToReceive, status.NotificationNotAvailable))

	fake.QueueFrame(continuousTapeStatus().Serialize()) // final probe

	// Write order: invalidate, initialize, status req, header, line0, line1(fail),
	// line1(retry), line2, terminator, final status req.
	fake.QueueWriteError(nil)
	fake.QueueWriteError(nil)
	fake.QueueWriteError(nil)
	fake.QueueWriteError(nil)
	fake.QueueWriteError(nil)
	fake.QueueWriteError(&usb.Error{Kind: usb.KindTimeout, Err: usb.ErrTimeout})
	fake.QueueWriteError(nil)
	fake.QueueWriteError(nil)
	fake.QueueWriteError(nil)
	fake.QueueWriteError(nil)

	p := newTestPrinter(fake, testOpts())
	img := stripImage(696, 3) // three raster lines

	if _, err := p.PrintImage(context.Background(), img, raster.Normal, false, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The failed attempt at line1 is not recorded in Written (Write returns
	// the error before appending); only the successful retry is.
	wantWrites := 9
	if len(fake.Written) != wantWrites {
		t.Fatalf("writes = %d, want %d: %v", len(fake.Written), wantWrites, lengths(fake.Written))
	}
}

func TestPrintImageUnknownMediaFailsBeforeHeader(t *testing.T) {
	fake := usb.NewFakeTransport()
	bad := continuousTapeStatus().Serialize()
	bad[11] = 0x77 // unknown media type
	fake.QueueFrame(bad)

	p := newTestPrinter(fake, testOpts())
	img := stripImage(696, 1)

	_, err := p.PrintImage(context.Background(), img, raster.Normal, false, 1)
	if err == nil {
		t.Fatal("expected error for unknown media type")
	}
	if len(fake.Written) != 3 {
		t.Errorf("writes = %d, want 3 (invalidate, initialize, status request only)", len(fake.Written))
	}
}

func TestPrintImageCoverOpenDuringPrint(t *testing.T) {
	fake := usb.NewFakeTransport()
	fake.QueueFrame(continuousTapeStatus().Serialize()) // initial probe

	coverOpen := continuousTapeStatus().Serialize()
	coverOpen[18] = 0x02 // ErrorOccurred
	coverOpen[9] = 0x10  // Cover open
	fake.QueueFrame(coverOpen)

	p := newTestPrinter(fake, testOpts())
	img := stripImage(696, 1)

	_, err := p.PrintImage(context.Background(), img, raster.Normal, false, 1)
	if err == nil {
		t.Fatal("expected error from unexpected frame during verification")
	}
	if !strings.Contains(err.Error(), "Cover open") {
		t.Errorf("error = %q, want it to mention Cover open", err.Error())
	}
}

// statusFrame builds a minimal serialized status frame with the given
// type/phase/notification, reusing the continuous-tape media fixture for
// the bytes Parse validates unconditionally.
func statusFrame(typ status.Type, phase status.Phase, notification status.Notification) [status.Size]byte {
	r := continuousTapeStatus()
	r.Type = typ
	r.Phase = phase
	r.Notification = notification
	return r.Serialize()
}

func lengths(bufs [][]byte) []int {
	out := make([]int, len(bufs))
	for i, b := range bufs {
		out[i] = len(b)
	}
	return out
}
