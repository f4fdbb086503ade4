// Package status decodes and encodes the 32-byte status frame the printer
// sends in reply to a status request and, unsolicited, on phase changes,
// completion, and cooling notifications.
package status

import "fmt"

// Size is the fixed length of a status frame.
const Size = 32

// MediaType is the kind of media currently loaded.
type MediaType byte

const (
	MediaNone MediaType = iota
	MediaContinuousTape
	MediaDieCutLabels
)

// Type is the status frame's top-level classification (byte 18).
type Type byte

const (
	TypeReply Type = iota
	TypePrintingCompleted
	TypeErrorOccurred
	_ // 3 is unused by the protocol
	TypeTurnedOff
	TypeNotification
	TypePhaseChange
)

// Phase is the device's high-level mode (byte 19).
type Phase byte

const (
	PhaseWaitingToReceive Phase = iota
	PhasePrintingState
)

// Notification is an asynchronous condition orthogonal to Type/Phase
// (byte 22); currently only the cooling pair is defined.
type Notification byte

const (
	NotificationNotAvailable Notification = iota
	_
	_
	NotificationCoolingStarted
	NotificationCoolingFinished
)

// Media is the device-reported tape or label currently loaded.
type Media struct {
	Type     MediaType
	WidthMM  byte
	LengthMM byte // 0 means endless continuous tape
}

// Response is a single decoded status frame. It carries no shared state and
// is safe to copy.
type Response struct {
	ModelCode    byte
	ModelName    string
	Type         Type
	Phase        Phase
	Notification Notification
	Errors       []string
	Media        Media
}

// modelNames maps the status frame's model byte (byte 4) to a display
// name. Unknown codes are a parse error, per the closed-table invariant.
var modelNames = map[byte]string{
	0x31: "QL-560",
	0x32: "QL-570",
	0x33: "QL-580N",
	0x35: "QL-700",
	0x38: "QL-800",
	0x39: "QL-810W",
	0x41: "QL-820NWB",
	0x43: "QL-1100",
	0x44: "QL-1110NWB",
	0x45: "QL-1115NWB",
	0x4f: "QL-500/550",
	0x51: "QL-650TD",
}

// errorBits1 and errorBits2 decode bytes 8 and 9 of the frame, one message
// per set bit, low bit first.
var errorBits1 = [8]string{
	"No media",
	"End of media",
	"Tape cutter jam",
	"",
	"Main unit in use",
	"Printer turned off",
	"High-voltage adapter",
	"Fan",
}

var errorBits2 = [8]string{
	"Replace media",
	"Expansion buffer full",
	"Communication error",
	"Communication buffer full",
	"Cover open",
	"Cancel key",
	"Cannot feed",
	"System error",
}

func decodeBitfield(b byte, messages [8]string) []string {
	var out []string
	for i := uint(0); i < 8; i++ {
		if b&(1<<i) != 0 && messages[i] != "" {
			out = append(out, messages[i])
		}
	}
	return out
}

// ParseError reports a violation of the status frame's positional
// contract: a fixed byte that doesn't match, or a code this driver does
// not recognize. It is a Printer-class error per the driver's taxonomy.
type ParseError struct {
	Msg string
}

func (e *ParseError) Error() string { return "status: " + e.Msg }

// Parse decodes a 32-byte status frame. Only the bytes documented as fixed
// or meaningful are validated; reserved bytes observed to vary in practice
// (notably byte 25) are left unexamined, per the spec's validation
// strictness note.
func Parse(frame [Size]byte) (Response, error) {
	if frame[0] != 0x80 {
		return Response{}, &ParseError{Msg: fmt.Sprintf("print-head mark: got 0x%02x, want 0x80", frame[0])}
	}
	if frame[1] != 0x20 {
		return Response{}, &ParseError{Msg: fmt.Sprintf("size byte: got 0x%02x, want 0x20", frame[1])}
	}
	if frame[2] != 0x42 {
		return Response{}, &ParseError{Msg: fmt.Sprintf("reserved byte 2: got 0x%02x, want 0x42 ('B')", frame[2])}
	}
	if frame[3] != 0x34 && frame[3] != 0x30 {
		return Response{}, &ParseError{Msg: fmt.Sprintf("series code: got 0x%02x", frame[3])}
	}

	name, ok := modelNames[frame[4]]
	if !ok {
		return Response{}, &ParseError{Msg: fmt.Sprintf("unknown model code 0x%02x", frame[4])}
	}

	if frame[5] != 0x30 {
		return Response{}, &ParseError{Msg: fmt.Sprintf("reserved byte 5: got 0x%02x, want 0x30", frame[5])}
	}
	if frame[6] != 0x30 && frame[6] != 0x00 {
		return Response{}, &ParseError{Msg: fmt.Sprintf("reserved byte 6: got 0x%02x", frame[6])}
	}
	if frame[7] != 0x00 {
		return Response{}, &ParseError{Msg: fmt.Sprintf("reserved byte 7: got 0x%02x, want 0x00", frame[7])}
	}

	var errs []string
	errs = append(errs, decodeBitfield(frame[8], errorBits1)...)
	errs = append(errs, decodeBitfield(frame[9], errorBits2)...)

	var mediaType MediaType
	switch frame[11] {
	case 0x00:
		mediaType = MediaNone
	case 0x0a, 0x4a:
		mediaType = MediaContinuousTape
	case 0x0b, 0x4b:
		mediaType = MediaDieCutLabels
	default:
		return Response{}, &ParseError{Msg: fmt.Sprintf("unknown media type 0x%02x", frame[11])}
	}

	if frame[12] != 0x00 || frame[13] != 0x00 {
		return Response{}, &ParseError{Msg: "reserved bytes 12-13: want 0x00 0x00"}
	}
	if frame[16] != 0x00 {
		return Response{}, &ParseError{Msg: fmt.Sprintf("reserved byte 16: got 0x%02x, want 0x00", frame[16])}
	}

	var statusType Type
	switch frame[18] {
	case 0x00:
		statusType = TypeReply
	case 0x01:
		statusType = TypePrintingCompleted
	case 0x02:
		statusType = TypeErrorOccurred
	case 0x04:
		statusType = TypeTurnedOff
	case 0x05:
		statusType = TypeNotification
	case 0x06:
		statusType = TypePhaseChange
	default:
		return Response{}, &ParseError{Msg: fmt.Sprintf("unknown status type 0x%02x", frame[18])}
	}

	var phase Phase
	switch frame[19] {
	case 0x00:
		phase = PhaseWaitingToReceive
	case 0x01:
		phase = PhasePrintingState
	default:
		return Response{}, &ParseError{Msg: fmt.Sprintf("unknown phase type 0x%02x", frame[19])}
	}

	var notification Notification
	switch frame[22] {
	case 0x00:
		notification = NotificationNotAvailable
	case 0x03:
		notification = NotificationCoolingStarted
	case 0x04:
		notification = NotificationCoolingFinished
	default:
		return Response{}, &ParseError{Msg: fmt.Sprintf("unknown notification 0x%02x", frame[22])}
	}

	return Response{
		ModelCode: frame[4],
		ModelName: name,
		Type:      statusType,
		Phase:     phase,
		Notification: notification,
		Errors:    errs,
		Media: Media{
			Type:     mediaType,
			WidthMM:  frame[10],
			LengthMM: frame[17],
		},
	}, nil
}

// Serialize re-encodes r into the wire format Parse accepts, so that
// Parse(r.Serialize()) == r for any Response Parse could have produced.
// Reserved bytes this driver never inspects are written as zero.
func (r Response) Serialize() [Size]byte {
	var f [Size]byte
	f[0] = 0x80
	f[1] = 0x20
	f[2] = 0x42
	f[3] = 0x34
	f[4] = r.ModelCode
	f[5] = 0x30
	f[6] = 0x30

	for i, msg := range errorBits1 {
		if msg == "" {
			continue
		}
		for _, e := range r.Errors {
			if e == msg {
				f[8] |= 1 << uint(i)
			}
		}
	}
	for i, msg := range errorBits2 {
		for _, e := range r.Errors {
			if e == msg {
				f[9] |= 1 << uint(i)
			}
		}
	}

	f[10] = r.Media.WidthMM
	switch r.Media.Type {
	case MediaNone:
		f[11] = 0x00
	case MediaContinuousTape:
		f[11] = 0x0a
	case MediaDieCutLabels:
		f[11] = 0x0b
	}
	f[17] = r.Media.LengthMM

	switch r.Type {
	case TypeReply:
		f[18] = 0x00
	case TypePrintingCompleted:
		f[18] = 0x01
	case TypeErrorOccurred:
		f[18] = 0x02
	case TypeTurnedOff:
		f[18] = 0x04
	case TypeNotification:
		f[18] = 0x05
	case TypePhaseChange:
		f[18] = 0x06
	}

	switch r.Phase {
	case PhaseWaitingToReceive:
		f[19] = 0x00
	case PhasePrintingState:
		f[19] = 0x01
	}

	switch r.Notification {
	case NotificationNotAvailable:
		f[22] = 0x00
	case NotificationCoolingStarted:
		f[22] = 0x03
	case NotificationCoolingFinished:
		f[22] = 0x04
	}

	return f
}
