package usb

import (
	"fmt"

	"github.com/google/gousb"

	"github.com/PercyJax/brother-ql-rs/internal/config"
)

// VendorID is the USB vendor id shared by every supported printer model.
const VendorID = 0x04F9

// incompatibleProductID is reported by devices sitting in a mode ("Editor
// Lite" and similar) that cannot accept the raster protocol. The device is
// still returned by Printers, carrying an advisory message, rather than
// being silently dropped.
const incompatibleProductID = 0x2049

// models maps USB product ids to the printer model name reported over the
// raster protocol's status frame. It is intentionally small: the set of
// models this driver has been validated against.
var models = map[uint16]string{
	0x2016: "QL-500",
	0x2027: "QL-550",
	0x2028: "QL-560",
	0x2029: "QL-570",
	0x202a: "QL-580N",
	0x2042: "QL-650TD",
	0x2049: "QL-700",
	0x2015: "QL-710W",
	0x2043: "QL-720NW",
	0x20de: "QL-800",
	0x20df: "QL-810W",
	0x2041: "QL-820NWB",
	0x20e0: "QL-1100",
	0x20e1: "QL-1110NWB",
	0x20e4: "QL-1115NWB",
}

// RawDevice is an enumerated, unopened printer: a candidate for Open.
type RawDevice struct {
	dev *gousb.Device

	// Manufacturer is always "Brother"; Model is the name the product id
	// resolves to in the built-in table or opts.VendorOverrides.
	Manufacturer string
	Model        string

	// Advisory is non-empty when the device is known to be reachable only
	// in a mode incompatible with raster printing (e.g. Editor Lite).
	Advisory string
}

// candidate is the minimal shape Printers needs from an enumerated USB
// device, abstracted away from *gousb.Device so discovery can be scripted
// in tests without real hardware, mirroring how Transport lets printer's
// tests substitute FakeTransport for a real DeviceHandle.
type candidate struct {
	vendor, product uint16
	dev             *gousb.Device
	close           func()
}

// lister enumerates candidate USB devices. gousbLister is the production
// implementation; tests substitute a scripted one.
type lister interface {
	List() ([]candidate, error)
}

type gousbLister struct{}

func (gousbLister) List() ([]candidate, error) {
	ctx := gousb.NewContext()
	// OpenDevices returns every device it did open alongside the last
	// error it hit; devices it could not open are simply left out.
	devs, _ := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return uint16(desc.Vendor) == VendorID
	})
	out := make([]candidate, len(devs))
	for i, d := range devs {
		d := d
		out[i] = candidate{
			vendor:  uint16(d.Desc.Vendor),
			product: uint16(d.Desc.Product),
			dev:     d,
			close:   d.Close,
		}
	}
	return out, nil
}

// Printers enumerates attached USB devices and returns those whose vendor
// id matches VendorID and whose product id resolves to a known model,
// through the built-in table extended by opts.VendorOverrides. It never
// fails outright: devices that cannot be opened are silently skipped,
// mirroring the "discovery never fails" contract of the
// public driver API.
func Printers(opts config.Options) ([]RawDevice, error) {
	return discover(gousbLister{}, opts)
}

func discover(l lister, opts config.Options) ([]RawDevice, error) {
	candidates, err := l.List()
	if err != nil {
		return nil, fmt.Errorf("usb: enumerating devices: %w", err)
	}

	var found []RawDevice
	for _, c := range candidates {
		name, known := models[c.product]
		if !known {
			name, known = opts.VendorOverrides[c.product]
		}

		var advisory string
		if c.product == incompatibleProductID {
			advisory = "device is in a mode incompatible with raster printing " +
				"(disable Editor Lite or equivalent before printing)"
		}
		if !known {
			if c.close != nil {
				c.close()
			}
			continue
		}

		found = append(found, RawDevice{
			dev:          c.dev,
			Manufacturer: "Brother",
			Model:        name,
			Advisory:     advisory,
		})
	}
	return found, nil
}
