/*
 * rvsim - Main process.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	getopt "github.com/pborman/getopt/v2"

	"github.com/rvsim/rvsim/emu/bus"
	"github.com/rvsim/rvsim/emu/decoder"
	"github.com/rvsim/rvsim/emu/elf"
	"github.com/rvsim/rvsim/emu/hart"
	"github.com/rvsim/rvsim/emu/isa"
	"github.com/rvsim/rvsim/emu/machine"
	"github.com/rvsim/rvsim/emu/platform/clint"
	"github.com/rvsim/rvsim/emu/platform/htif"
	"github.com/rvsim/rvsim/emu/platform/plic"
	"github.com/rvsim/rvsim/monitor"
	logger "github.com/rvsim/rvsim/util/logger"
)

var Logger *slog.Logger

const (
	defaultMemSize = uint64(256 * 1024 * 1024)
	ramBase        = uint64(0x80000000)
	clintBase      = uint64(0x02000000)
	plicBase       = uint64(0x0c000000)
	htifWindowBase = uint64(0x40008000)
	plicNumSources = 64
)

func main() {
	optCores := getopt.StringLong("cores", 'p', "1", "Number of harts")
	optMemSize := getopt.StringLong("mem", 'm', "0x10000000", "Memory size (hex)")
	optXLen := getopt.StringLong("xlen", 'l', "64", "XLEN (32 or 64)")
	optExt := getopt.StringLong("ext", 'e', "imafdcsu", "Extensions (subset of imafdcsu)")
	optBootArgs := getopt.StringLong("boot_args", 0, "", "Kernel command line")
	optImage := getopt.StringLong("image", 0, "", "Disk image for virtio-blk")
	optImageMode := getopt.StringLong("image_mode", 0, "ro", "Disk image access mode: ro, rw, snapshot")
	optNet := getopt.StringLong("net", 0, "", "Network interface for virtio-net")
	optConsole := getopt.StringLong("console_input", 0, "htif", "Console transport: htif or virtio")
	optLogFile := getopt.StringLong("log", 0, "", "Log file")
	optMonitor := getopt.BoolLong("monitor", 0, "Drop into the debug console instead of free-running")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.SetParameters("<elf-file>")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}
	args := getopt.Args()
	if len(args) != 1 {
		getopt.Usage()
		os.Exit(1)
	}
	elfPath := args[0]

	var logFile *os.File
	if *optLogFile != "" {
		logFile, _ = os.Create(*optLogFile)
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelInfo)
	debug := false
	Logger = slog.New(logger.NewHandler(logFile, &slog.HandlerOptions{Level: programLevel, AddSource: false}, &debug))
	slog.SetDefault(Logger)

	Logger.Info("rvsim started", "elf", elfPath)

	cores, err := strconv.Atoi(*optCores)
	if err != nil || cores < 1 {
		Logger.Error("invalid -p value", "value", *optCores)
		os.Exit(1)
	}
	xlen, err := strconv.Atoi(*optXLen)
	if err != nil || (xlen != 32 && xlen != 64) {
		Logger.Error("xlen must be 32 or 64", "value", *optXLen)
		os.Exit(1)
	}
	memSize, err := parseHex(*optMemSize)
	if err != nil {
		Logger.Error("invalid -m value", "value", *optMemSize, "err", err)
		os.Exit(1)
	}
	if memSize == 0 {
		memSize = defaultMemSize
	}
	switch *optImageMode {
	case "ro", "rw", "snapshot":
	default:
		Logger.Error("invalid --image_mode", "value", *optImageMode)
		os.Exit(1)
	}
	switch *optConsole {
	case "htif", "virtio":
	default:
		Logger.Error("invalid --console_input", "value", *optConsole)
		os.Exit(1)
	}

	sysBus := bus.New()
	if err := sysBus.AddRegion(bus.NewMemRegion("ram", ramBase, memSize)); err != nil {
		Logger.Error("failed to map ram", "err", err)
		os.Exit(1)
	}

	dec := buildDecoder(xlen, *optExt)

	irqLines := make([]*hart.IRQLines, cores)
	for i := range irqLines {
		irqLines[i] = &hart.IRQLines{}
	}

	plicDev := plic.New(irqLines, plicNumSources)
	if err := sysBus.AddRegion(bus.NewDeviceRegion("plic", plicBase, plicDev)); err != nil {
		Logger.Error("failed to map plic", "err", err)
		os.Exit(1)
	}

	clintDev := clint.New(irqLines, 1)
	if err := sysBus.AddRegion(bus.NewDeviceRegion("clint", clintBase, clintDev)); err != nil {
		Logger.Error("failed to map clint", "err", err)
		os.Exit(1)
	}

	var htifDev *htif.HTIF
	if *optConsole == "htif" {
		htifDev = htif.New(os.Stdout, os.Stdin)
		if err := sysBus.AddRegion(bus.NewDeviceRegion("htif", htifWindowBase, htifDev)); err != nil {
			Logger.Error("failed to map htif", "err", err)
			os.Exit(1)
		}
	}

	img, err := elf.Load(sysBus, elfPath)
	if err != nil {
		Logger.Error("failed to load elf", "err", err)
		os.Exit(1)
	}
	Logger.Info("loaded kernel", "entry", fmt.Sprintf("%#x", img.Entry), "boot_args", *optBootArgs)

	harts := make([]*hart.Hart, cores)
	for i := range harts {
		harts[i] = hart.New(hart.Config{
			ID:          i,
			XLen:        xlen,
			Extensions:  buildExtensions(xlen, *optExt),
			Bus:         sysBus,
			Decoder:     dec,
			IRQ:         irqLines[i],
			ResetVector: img.Entry,
			Log:         Logger,
		})
	}

	devices := []machine.Pollable{clintDev}
	if htifDev != nil {
		devices = append(devices, htifDev)
	}

	m := machine.New(machine.Config{
		Harts:   harts,
		Bus:     sysBus,
		Log:     Logger,
		Devices: devices,
	})

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		Logger.Info("shutdown signal received")
		cancel()
	}()

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	if htifDev != nil {
		go func() {
			for {
				if code, exited := htifDev.Exited(); exited {
					Logger.Info("htif shutdown", "code", code)
					cancel()
					return
				}
			}
		}()
	}

	if *optMonitor {
		m.Stop()
		monitor.New(m, Logger).Run()
		cancel()
	}

	if err := <-done; err != nil && err != context.Canceled {
		Logger.Error("machine exited with error", "err", err)
		os.Exit(1)
	}
	Logger.Info("rvsim stopped")

	// --image/--image_mode/--net wire a virtio-blk/virtio-net backend once
	// one exists; neither option is consumed yet (spec.md §1 scopes full
	// block/net device logic out, keeping only the ring mechanics).
	_ = optImage
	_ = optNet
}

func parseHex(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return strconv.ParseUint(s, 16, 64)
}

// buildDecoder registers every extension's instruction set into a single
// shared, locked decoder every hart on the machine decodes through.
func buildDecoder(xlen int, ext string) *decoder.Decoder {
	dec := decoder.New()
	for _, e := range buildExtensions(xlen, ext) {
		for _, inst := range e.Instructions() {
			dec.Register(inst)
		}
	}
	dec.Lock()
	return dec
}

func buildExtensions(xlen int, ext string) []isa.Extension {
	var exts []isa.Extension
	exts = append(exts, isa.NewIExt(xlen))
	for _, letter := range strings.ToLower(ext) {
		switch letter {
		case 'm':
			exts = append(exts, isa.NewMExt(xlen))
		case 'a':
			exts = append(exts, isa.NewAExt(xlen))
		case 'f':
			exts = append(exts, isa.NewFExt(xlen))
		case 'd':
			exts = append(exts, isa.NewDExt(xlen))
		case 'c':
			exts = append(exts, isa.NewCExt(xlen))
		case 's':
			exts = append(exts, isa.NewSExt())
		case 'u':
			exts = append(exts, isa.NewUExt())
		}
	}
	return exts
}
