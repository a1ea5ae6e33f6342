// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see
//
// https://sourceforge.net/p/openocd/code

package gostlink

import "time"

// Mode is the debug probe mode reported by GET_CURRENT_MODE.
type Mode byte

const (
	ModeDfu         Mode = 0
	ModeMassStorage Mode = 1
	ModeJtag        Mode = 2
	ModeSwim        Mode = 3
)

func (m Mode) String() string {
	switch m {
	case ModeDfu:
		return "dfu"
	case ModeMassStorage:
		return "mass-storage"
	case ModeJtag:
		return "jtag"
	case ModeSwim:
		return "swim"
	default:
		return "unknown"
	}
}

// WireProtocol selects the wire-level debug protocol used once attached.
type WireProtocol uint8

const (
	WireProtocolSwd WireProtocol = iota
	WireProtocolJtag
)

func (p WireProtocol) String() string {
	if p == WireProtocolJtag {
		return "JTAG"
	}
	return "SWD"
}

// Status is the single status byte nearly every ST-Link response carries
// in its first byte; JtagOk is the only success value.
type Status byte

const (
	StatusJtagOk                Status = 0x80
	statusJtagFault             Status = 0x81
	statusJtagGetIdCodeError    Status = 0x09
	statusJtagWriteError        Status = 0x0c
	statusJtagWriteVerifyError  Status = 0x0d
	statusSwdApWait             Status = 0x10
	statusSwdApFault            Status = 0x11
	statusSwdApError            Status = 0x12
	statusSwdApParityError      Status = 0x13
	statusSwdDpWait             Status = 0x14
	statusSwdDpFault            Status = 0x15
	statusSwdDpError            Status = 0x16
	statusSwdDpParityError      Status = 0x17
	statusSwdApWDataError       Status = 0x18
	statusSwdApStickyError      Status = 0x19
	statusSwdApStickyOrRunError Status = 0x1a
	statusBadApError            Status = 0x1d
)

// PortType selects either the always-addressable DebugPort or a numbered
// AccessPort. The zero value is DebugPort.
type PortType struct {
	apsel uint16
	isAp  bool
}

// wire encoding for the DebugPort in JTAG_READ_DAP_REG/JTAG_WRITE_DAP_REG.
const dpPortEncoding uint16 = 0xFFFF

// DebugPort is the root DAP port, always addressable.
var DebugPort = PortType{}

// AccessPort returns the PortType selecting the AP numbered apsel.
func AccessPort(apsel uint16) PortType {
	return PortType{apsel: apsel, isAp: true}
}

// IsAccessPort reports whether p names an AccessPort rather than the DebugPort.
func (p PortType) IsAccessPort() bool { return p.isAp }

// Number returns the AP selector. Only meaningful when IsAccessPort is true.
func (p PortType) Number() uint16 { return p.apsel }

func (p PortType) encode() uint16 {
	if p.isAp {
		return p.apsel
	}
	return dpPortEncoding
}

func (p PortType) String() string {
	if p.isAp {
		return "AP" + itoa(int(p.apsel))
	}
	return "DP"
}

// apSelectionMaximum is the largest AP selector JTAG_INIT_AP/JTAG_CLOSE_AP_DBG accept.
const apSelectionMaximum = 255

// usb endpoint definitions
const (
	usbEndpointIn  = 0x80
	usbEndpointOut = 0x00

	usbRxEndpointNo    = 1 | usbEndpointIn
	usbTxEndpointNo    = 2 | usbEndpointOut
	usbTraceEndpointNo = 3 | usbEndpointIn

	usbTxEndpointApi2v1    = 1 | usbEndpointOut
	usbTraceEndpointApi2v1 = 2 | usbEndpointIn
)

// Timeout is the fixed per-transaction USB timeout: "every USB read/write
// carries the same TIMEOUT constant" (§5).
const Timeout = 1000 * time.Millisecond

// stlink internal device mode numbers as reported on the wire by
// GET_CURRENT_MODE; distinct from Mode, which is the decoded, validated form.
const (
	deviceModeDFU        = 0x00
	deviceModeMass       = 0x01
	deviceModeDebug      = 0x02
	deviceModeSwim       = 0x03
	deviceModeBootloader = 0x04
)

const (
	cmdGetVersion       = 0xF1
	cmdDebug            = 0xF2
	cmdDfu              = 0xF3
	cmdSwim             = 0xF4
	cmdGetCurrentMode   = 0xF5
	cmdGetTargetVoltage = 0xF7
)

const dfuExit = 0x07

const (
	swimEnter = 0x00
	swimExit  = 0x01
)

// ST-Link debug command opcodes (second byte after cmdDebug).
const (
	debugReadMem32Bit  = 0x07
	debugWriteMem32Bit = 0x08
	debugReadMem8Bit   = 0x0c
	debugWriteMem8Bit  = 0x0d

	debugApiV2Enter       = 0x30
	debugExit             = 0x21
	debugReadCoreId       = 0x22
	debugApiV2ReadIdCodes = 0x31

	debugApiV2GetLastRWStatus  = 0x3B
	debugApiV2DriveNrst        = 0x3C
	debugApiV2GetLastRWStatus2 = 0x3E

	debugApiV2StartTraceRx                 = 0x40
	debugApiV2StopTraceRx                  = 0x41
	debugApiV2GetTraceNB                   = 0x42
	debugApiV2SwdSetFreq                   = 0x43
	debugApiV2JTagSetFreq                  = 0x44
	debugApiV2ReadDebugAccessPortRegister  = 0x45
	debugApiV2WriteDebugAccessPortRegister = 0x46
	debugApiV2InitAccessPort               = 0x4B
	debugApiV2CloseAccessPortDbg           = 0x4C

	jtagEnterSwdNoReset  = 0xa3
	jtagEnterJtagNoReset = 0xa4

	jtagDriveNrstLow   = 0x00
	jtagDriveNrstHigh  = 0x01
	jtagDriveNrstPulse = 0x02

	debugApiV3SetComFreq   = 0x61
	debugApiV3GetComFreq   = 0x62
	debugApiV3GetVersionEx = 0xFB
)

const (
	maximumWaitRetries = 8

	cmdBufferSize  = 16
	dataBufferSize = 4096

	traceSize  = 4096
	traceMaxHz = 2000000

	v3MaxFreqNb = 10

	tpuiAcprMaxSwoScaler = 0x1fff
)

const (
	stLinkV1Pid          = 0x3744
	stLinkV2Pid          = 0x3748
	stLinkV21Pid         = 0x374B
	stLinkV21NoMsdPid    = 0x3752
	stLinkV3UsbLoaderPid = 0x374D
	stLinkV3EPid         = 0x374E
	stLinkV3SPid         = 0x374F
	stLinkV32VcpPid      = 0x3753
)

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
