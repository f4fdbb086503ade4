// Command thermalprint is a small demonstration of the driver: discover
// printers, report their status, and print an image to one of them.
package main

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/theckman/yacspin"

	"github.com/PercyJax/brother-ql-rs/internal/config"
	"github.com/PercyJax/brother-ql-rs/printer"
	"github.com/PercyJax/brother-ql-rs/raster"
)

var configFileName = "thermalprint.yaml"

func root() {
	str := `thermalprint discovers and prints to Brother-protocol thermal label printers over USB

Usage:
	thermalprint <command>

Commands:
	list                        list attached printers
	status <index>               show status of printer <index>
	print <index> <image> [n]    print <image> to printer <index>, n copies (default 1)
	version`
	fmt.Println(str)
}

func listPrinters(opts config.Options) {
	devices, err := printer.Printers(opts)
	if err != nil {
		log.Fatal(err)
	}
	if len(devices) == 0 {
		fmt.Println("no printers found")
		return
	}
	for i, d := range devices {
		line := fmt.Sprintf("[%d] %s %s", i, d.Manufacturer, d.Model)
		if d.Advisory != "" {
			line += color.YellowString(" (%s)", d.Advisory)
		}
		fmt.Println(line)
	}
}

func openByIndex(ctx context.Context, opts config.Options, index int) *printer.ThermalPrinter {
	devices, err := printer.Printers(opts)
	if err != nil {
		log.Fatal(err)
	}
	if index < 0 || index >= len(devices) {
		log.Fatalf("no printer at index %d (found %d)", index, len(devices))
	}
	p, err := printer.New(ctx, devices[index], opts)
	if err != nil {
		log.Fatal(color.RedString("opening printer: %v", err))
	}
	return p
}

func showStatus(ctx context.Context, opts config.Options, index int) {
	p := openByIndex(ctx, opts, index)
	defer p.Close()

	st, err := p.GetStatus(ctx)
	if err != nil {
		log.Fatal(color.RedString("status request failed: %v", err))
	}
	fmt.Printf("%s %s: phase=%v media=%+v\n", color.GreenString("OK"), st.ModelName, st.Phase, st.Media)
	for _, e := range st.Errors {
		fmt.Println(color.RedString("  - %s", e))
	}
}

func printImage(ctx context.Context, opts config.Options, index int, path string, copies int) {
	f, err := os.Open(path)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		log.Fatal(color.RedString("decoding image: %v", err))
	}

	p := openByIndex(ctx, opts, index)
	defer p.Close()

	spinner, err := yacspin.New(yacspin.Config{
		Frequency:       100 * time.Millisecond,
		CharSet:         yacspin.CharSets[9],
		Suffix:          " cooling down",
		SuffixAutoColon: true,
		Colors:          []string{"fgYellow"},
	})
	if err != nil {
		log.Fatal(err)
	}

	p.OnTransition = func(from, to printer.State) {
		if to == printer.StateCooling {
			_ = spinner.Start()
		} else if from == printer.StateCooling {
			_ = spinner.Stop()
		}
	}

	st, err := p.PrintImage(ctx, img, raster.Normal, false, copies)
	if err != nil {
		log.Fatal(color.RedString("print failed: %v", err))
	}
	fmt.Println(color.GreenString("print complete, final status phase=%v", st.Phase))
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}

	opts, err := config.Load(configFileName)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	cmd := strings.ToLower(args[1])
	switch cmd {
	case "list":
		listPrinters(opts)
	case "status":
		if len(args) < 3 {
			log.Fatal("usage: thermalprint status <index>")
		}
		idx, err := strconv.Atoi(args[2])
		if err != nil {
			log.Fatal(err)
		}
		showStatus(ctx, opts, idx)
	case "print":
		if len(args) < 4 {
			log.Fatal("usage: thermalprint print <index> <image> [copies]")
		}
		idx, err := strconv.Atoi(args[2])
		if err != nil {
			log.Fatal(err)
		}
		copies := 1
		if len(args) >= 5 {
			copies, err = strconv.Atoi(args[4])
			if err != nil {
				log.Fatal(err)
			}
		}
		printImage(ctx, opts, idx, args[3], copies)
	case "version":
		fmt.Println("thermalprint version dev")
	default:
		root()
	}
}
