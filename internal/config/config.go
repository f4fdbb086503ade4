// Package config loads the ambient runtime options for the thermal printer
// driver: transport timeouts, retry caps, and vendor/product table
// extensions. It never touches label content or job descriptors — those
// are per-print values, not persisted configuration.
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
)

// Options is the effective runtime configuration of a ThermalPrinter.
type Options struct {
	// GeneralTimeout bounds status requests and job-header I/O.
	GeneralTimeout time.Duration `koanf:"general_timeout"`

	// LinePrintTimeout bounds a single raster line write.
	LinePrintTimeout time.Duration `koanf:"line_print_timeout"`

	// CooldownInterval is the sleep between empty status polls.
	CooldownInterval time.Duration `koanf:"cooldown_interval"`

	// InvalidateMaxAttempts caps the otherwise-unbounded busy retry loop
	// on the invalidate step, expressed as a multiple of GeneralTimeout.
	InvalidateMaxAttempts int `koanf:"invalidate_max_attempts"`

	// CoolingMaxCycles caps how many cooling pauses a single raster line
	// may absorb before the print fails outright.
	CoolingMaxCycles int `koanf:"cooling_max_cycles"`

	// VendorOverrides extends the product-id to model-name table used by
	// discovery; it does not replace entries, only adds to them.
	VendorOverrides map[uint16]string `koanf:"vendor_overrides"`
}

// Default returns the built-in configuration used when no file is loaded.
func Default() Options {
	return Options{
		GeneralTimeout:        5 * time.Second,
		LinePrintTimeout:      2 * time.Second,
		CooldownInterval:      10 * time.Millisecond,
		InvalidateMaxAttempts: 50,
		CoolingMaxCycles:      3,
		VendorOverrides:       map[uint16]string{},
	}
}

// Load merges Default() with an optional YAML file at path. A missing file
// is not an error; any other read or parse failure is returned.
func Load(path string) (Options, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Options{}, err
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !strings.Contains(err.Error(), "no such file") {
			return Options{}, err
		}
	}
	var opts Options
	if err := k.Unmarshal("", &opts); err != nil {
		return Options{}, err
	}
	if opts.VendorOverrides == nil {
		opts.VendorOverrides = map[uint16]string{}
	}
	return opts, nil
}
