// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stlink-tools/goflash/gostlink"
)

var (
	exitProgram chan bool
	flagLogFile string
	flagChannel *int
	fileHandle  *os.File

	log = logrus.New()
)

func rttDataHandler(channel int, data []byte) error {
	if channel != *flagChannel {
		return nil
	}

	if fileHandle != nil {
		fileHandle.Write(data)
	} else {
		fmt.Print(string(data))
	}

	return nil
}

func setUpSignalHandler() {
	signals := make(chan os.Signal, 1)
	exitProgram = make(chan bool, 1)

	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-signals
		exitProgram <- true
	}()
}

func main() {
	gostlink.SetLogger(log)
	log.Info("Welcome to goflash rtt logger...")

	flagDevice := flag.String("device", "", "STM32 device type, used to look up the RTT search range")
	flagSpeed := flag.Uint("speed", 4000, "Interface speed to target device, in kHz")
	flagJtag := flag.Bool("jtag", false, "Attach over JTAG instead of SWD")
	flagChannel = flag.Int("channel", 0, "RTT channel to interface with")
	flagRTTAddress := flag.Uint64("rtt-address", 0, "RTT control block search address")
	flagRTTSizeKb := flag.Uint("rtt-size-kb", 1, "Size in KiB of the RAM region to search for the RTT control block")

	flag.Parse()

	fileHandle = nil
	if len(flag.Args()) == 1 {
		flagLogFile = flag.Args()[0]

		file, err := os.OpenFile(flagLogFile, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0600)
		if err != nil {
			log.Fatal(err)
		}
		file.Truncate(0)
		file.Seek(0, 0)
		fileHandle = file
		defer fileHandle.Close()
	}

	var ramStart uint32
	var ramSizeKb uint32

	if *flagDevice != "" {
		cpuInfo := gostlink.GetCpuInformation(*flagDevice)
		if cpuInfo == nil {
			log.Fatalf("could not find device information for %s", *flagDevice)
		}
		ramStart = uint32(cpuInfo.RamStart)
		ramSizeKb = uint32(cpuInfo.RamSize) / 1024
		log.Infof("found device information for %s [0x%x, %d KiB]", *flagDevice, ramStart, ramSizeKb)
	} else if *flagRTTAddress != 0 {
		ramStart = uint32(*flagRTTAddress)
		ramSizeKb = uint32(*flagRTTSizeKb)
	} else {
		log.Fatal("either -device or -rtt-address must be given")
	}

	if err := gostlink.InitUSB(); err != nil {
		log.Fatal(err)
	}
	defer gostlink.CloseUSB()

	protocol := gostlink.WireProtocolSwd
	if *flagJtag {
		protocol = gostlink.WireProtocolJtag
	}

	setUpSignalHandler()

	config := gostlink.NewStLinkConfig(gostlink.AllSupportedVIds, gostlink.AllSupportedPIds,
		protocol, "", uint32(*flagSpeed), false)

	probe, err := gostlink.Open(config)
	if err != nil {
		log.Fatal("could not find any st-link on your computer: ", err)
	}
	defer probe.Close()

	if err := probe.InitializeRtt(ramSizeKb, ramStart); err != nil {
		log.Fatal("error during initialization of RTT: ", err)
	}

	for {
		if err := probe.UpdateRttChannels(false); err != nil {
			log.Error(err)
		}

		if err := probe.ReadRttChannels(rttDataHandler); err != nil {
			log.Error(err)
		}

		select {
		case <-exitProgram:
			return
		default:
		}

		time.Sleep(50 * time.Millisecond)
	}
}
