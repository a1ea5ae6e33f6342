// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/stlink-tools/goflash/flash"
	"github.com/stlink-tools/goflash/gostlink"
)

var log = logrus.New()

func init() {
	log.Formatter = &prefixed.TextFormatter{
		ForceColors:     true,
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	}
	gostlink.SetLogger(log)
	flash.SetLogger(log)
}

// probeSession drives flash.ActiveSession directly over the debug-port
// memory access commands. It has no flash algorithm loaded on the
// target and no unlock/erase sequence of its own: EraseAll/EraseSector
// are logged no-ops and ProgramPage falls back to a plain WriteBlock8.
// Loading and relocating a real flash algorithm is out of scope for
// this module (see flash/session.go) — this type exists purely to
// exercise the wiring between gostlink and flash end to end.
type probeSession struct {
	probe          *gostlink.StLink
	chipErase      bool
	doubleBuffered bool
}

func (s *probeSession) EraseAll() error {
	log.Warn("probeSession.EraseAll: no flash algorithm loaded, skipping erase")
	return nil
}

func (s *probeSession) EraseSector(address uint32) error {
	log.Warnf("probeSession.EraseSector(0x%08x): no flash algorithm loaded, skipping erase", address)
	return nil
}

func (s *probeSession) ProgramPage(address uint32, data []byte) error {
	log.Debugf("programming page at 0x%08x (%d bytes)", address, len(data))
	return s.probe.WriteBlock8(address, data)
}

func (s *probeSession) ReadBlock8(address uint32, size uint32) ([]byte, error) {
	buffer := make([]byte, size)
	if err := s.probe.ReadBlock8(address, size, buffer); err != nil {
		return nil, err
	}
	return buffer, nil
}

func (s *probeSession) LoadPageBuffer(address uint32, data []byte, bufferIndex int) error {
	log.Debugf("loading page buffer %d at 0x%08x (%d bytes)", bufferIndex, address, len(data))
	return s.probe.WriteBlock8(address, data)
}

func (s *probeSession) StartProgramPageWithBuffer(bufferIndex int, address uint32) error {
	log.Debugf("starting program from buffer %d at 0x%08x", bufferIndex, address)
	return nil
}

func (s *probeSession) WaitForCompletion() (int, error) {
	return 0, nil
}

func (s *probeSession) SupportsChipErase() bool       { return s.chipErase }
func (s *probeSession) SupportsDoubleBuffering() bool { return s.doubleBuffered }

func main() {
	log.Info("Welcome to goflash flashtool...")

	flagDevice := flag.String("device", "", "STM32 device type, e.g. STM32F030C8")
	flagSerial := flag.String("serial", "", "Serial number of the ST-Link to use (required if more than one is attached)")
	flagSpeed := flag.Uint("speed", 4000, "Interface speed to target device, in kHz")
	flagJtag := flag.Bool("jtag", false, "Attach over JTAG instead of SWD")
	flagChipErase := flag.Bool("chip-erase", false, "Request a full chip erase instead of per-sector erase")
	flagDoubleBuffer := flag.Bool("double-buffer", false, "Use double-buffered programming when the target supports it")
	flagRestoreUnwritten := flag.Bool("restore-unwritten", false, "Read back surrounding flash content instead of filling gaps with the erased value")
	flagInputFile := flag.String("file", "", "Raw binary file to program")
	flagAddress := flag.Uint64("address", 0, "Flash address to program the input file at; defaults to the device's flash start")

	flag.Parse()

	cpuInfo := gostlink.GetCpuInformation(*flagDevice)
	if cpuInfo == nil {
		log.Fatalf("unknown device %q, see gostlink/cpus.go for supported parts", *flagDevice)
	}

	if *flagInputFile == "" {
		log.Fatal("-file is required")
	}

	data, err := os.ReadFile(*flagInputFile)
	if err != nil {
		log.Fatal(err)
	}

	address := *flagAddress
	if address == 0 {
		address = cpuInfo.FlashStart
	}

	protocol := gostlink.WireProtocolSwd
	if *flagJtag {
		protocol = gostlink.WireProtocolJtag
	}

	if err := gostlink.InitUSB(); err != nil {
		log.Fatal(err)
	}
	defer gostlink.CloseUSB()

	config := gostlink.NewStLinkConfig(gostlink.AllSupportedVIds, gostlink.AllSupportedPIds,
		protocol, *flagSerial, uint32(*flagSpeed), false)

	probe, err := gostlink.Open(config)
	if err != nil {
		log.Fatal(err)
	}
	defer probe.Close()

	region := flash.NewStaticRegion(uint32(cpuInfo.FlashStart), uint32(cpuInfo.FlashSize),
		uint32(cpuInfo.FlashPageSize*cpuInfo.FlashSectorLen), uint32(cpuInfo.FlashPageSize), 0xFF)

	session := NewFlasherSession(probe)

	builder := flash.NewFlashBuilder(*flagDoubleBuffer)
	if err := builder.AddData(uint32(address), data); err != nil {
		log.Fatal(err)
	}

	err = session.RunProgram(func(active flash.ActiveSession) error {
		return builder.Program(active, region, *flagChipErase, *flagRestoreUnwritten)
	})
	if err != nil {
		log.Fatal(err)
	}

	log.Infof("programmed %d bytes at 0x%08x", len(data), address)
	fmt.Println("done")
}

// NewFlasherSession wires a probeSession's lifecycle into a
// flash.FlasherSession: acquiring is a no-op (the probe is already
// attached by the time main() gets here), releasing calls probe.Detach.
func NewFlasherSession(probe *gostlink.StLink) *flash.FlasherSession {
	active := &probeSession{probe: probe}

	return flash.NewFlasherSession(
		func() (flash.ActiveSession, error) { return active, nil },
		func(flash.ActiveSession) error { return probe.Detach() },
	)
}
