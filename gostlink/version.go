// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gostlink

import (
	"fmt"

	"github.com/boljen/go-bitmap"
	"github.com/google/gousb"
)

// stlink probe-firmware capability bits, set in stLinkVersion.flags once
// GET_VERSION/GET_VERSION_EXT has been decoded. Bit numbers are plain
// bitmap indexes; the firmware version that sets each bit is decided in
// capabilityFlagsForVersion.
const (
	flagHasTrace            = 0x01
	flagHasTargetVolt       = flagHasTrace
	flagHasSwdSetFreq       = 0x02
	flagHasJtagSetFreq      = 0x03
	flagHasMem16Bit         = 0x04
	flagHasGetLastRwStatus2 = 0x05
	flagHasDapReg           = 0x06
	flagQuirkJtagDpRead     = 0x07
	flagHasApInit           = 0x08
	flagHasDpBankSel        = 0x09
	flagHasRw8Bytes512      = 0x0a
	flagFixCloseAp          = 0x0b
)

// stLinkApiVersion selects which generation of debug commands the probe
// firmware speaks: v1 probes only ever implement JTAG, v2 adds SWD and the
// bulk of the debug command set, v3 adds the COM-frequency negotiation.
type stLinkApiVersion uint8

const (
	jTagApiV1 stLinkApiVersion = 1
	jTagApiV2 stLinkApiVersion = 2
	jTagApiV3 stLinkApiVersion = 3
)

// capabilityFlagsForVersion maps a decoded (stlink, jtag) firmware version
// pair to the jtagApi generation and command-capability bitmap, per the
// thresholds at which each ST-Link firmware line added the corresponding
// command. Kept free of any USB I/O so it can be exercised directly.
func capabilityFlagsForVersion(stlinkVersion, jtagVersion int) (stLinkApiVersion, bitmap.Bitmap) {
	flags := bitmap.New(32)
	api := jTagApiV1

	switch stlinkVersion {
	case 1:
		if jtagVersion >= 11 {
			api = jTagApiV2
		}
	case 2:
		api = jTagApiV2

		if jtagVersion >= 13 {
			flags.Set(flagHasTrace, true)
		}
		if jtagVersion >= 15 {
			flags.Set(flagHasGetLastRwStatus2, true)
		}
		if jtagVersion >= 22 {
			flags.Set(flagHasSwdSetFreq, true)
		}
		if jtagVersion >= 24 {
			flags.Set(flagHasJtagSetFreq, true)
			flags.Set(flagHasDapReg, true)
		}
		if jtagVersion >= 24 && jtagVersion < 32 {
			flags.Set(flagQuirkJtagDpRead, true)
		}
		if jtagVersion >= 26 {
			flags.Set(flagHasMem16Bit, true)
		}
		if jtagVersion >= 28 {
			flags.Set(flagHasApInit, true)
		}
		if jtagVersion >= 29 {
			flags.Set(flagFixCloseAp, true)
		}
		if jtagVersion >= 32 {
			flags.Set(flagHasDpBankSel, true)
		}
	case 3:
		api = jTagApiV3

		flags.Set(flagHasTrace, true)
		flags.Set(flagHasGetLastRwStatus2, true)
		flags.Set(flagHasDapReg, true)
		flags.Set(flagHasMem16Bit, true)
		flags.Set(flagHasApInit, true)
		flags.Set(flagFixCloseAp, true)

		if jtagVersion >= 2 {
			flags.Set(flagHasDpBankSel, true)
		}
		if jtagVersion >= 6 {
			flags.Set(flagHasRw8Bytes512, true)
		}
	}

	return api, flags
}

// parseVersion issues GET_VERSION (and, on V3 hardware, the GET_VERSION_EX
// follow-up) and populates h.version, including the capability bitmap that
// every later command in this package gates itself on.
func (h *StLink) parseVersion() error {
	rx := make([]byte, 6)
	if err := h.write([]byte{cmdGetVersion}, nil, rx); err != nil {
		return err
	}

	packed := convertToUint16(rx, bigEndian)

	v := byte((packed >> 12) & 0x0f)
	x := byte((packed >> 6) & 0x3f)
	y := byte(packed & 0x3f)

	h.vid = gousb.ID(convertToUint16(rx[2:4], littleEndian))
	h.pid = gousb.ID(convertToUint16(rx[4:6], littleEndian))

	var jtag, msd, swim, bridge byte

	switch h.pid {
	case stLinkV21Pid, stLinkV21NoMsdPid:
		if (x <= 22 && y == 7) || (x >= 25 && y >= 7 && y <= 12) {
			msd = x
			swim = y
		} else {
			jtag = x
			msd = y
		}
	default:
		jtag = x
		swim = y
	}

	// ST-Link V3 carries no useful information in the legacy GET_VERSION
	// fields and instead requires GET_VERSION_EX.
	if v == 3 && x == 0 && y == 0 {
		rxV3 := make([]byte, 12)
		if err := h.write([]byte{debugApiV3GetVersionEx}, nil, rxV3); err != nil {
			return err
		}

		v = rxV3[0]
		swim = rxV3[1]
		jtag = rxV3[2]
		msd = rxV3[3]
		bridge = rxV3[4]
		h.vid = gousb.ID(convertToUint16(rxV3[8:10], littleEndian))
		h.pid = gousb.ID(convertToUint16(rxV3[10:12], littleEndian))
	}

	h.version.stlink = int(v)
	h.version.jtag = int(jtag)
	h.version.swim = int(swim)

	h.version.jtagApi, h.version.flags = capabilityFlagsForVersion(h.version.stlink, h.version.jtag)

	if h.version.jtag == 0 {
		return newProbeError(ErrJTAGNotSupportedOnProbe)
	}
	if h.version.stlink < 3 && h.version.jtag < 24 {
		return newProbeError(ErrProbeFirmwareOutdated)
	}

	versionStr := fmt.Sprintf("V%d", v)
	if jtag > 0 || msd != 0 {
		versionStr += fmt.Sprintf("J%d", jtag)
	}
	if msd > 0 {
		versionStr += fmt.Sprintf("M%d", msd)
	}
	if bridge > 0 {
		versionStr += fmt.Sprintf("B%d", bridge)
	}

	serialNo, _ := h.libUsbDevice.SerialNumber()
	logger.Debugf("parsed st-link firmware version [%s] for probe [%s]", versionStr, serialNo)

	return nil
}

// supportsMultipleAP reports whether the probe firmware can track more
// than one open access port at a time (JTAG_INIT_AP/JTAG_CLOSE_AP_DBG).
func (h *StLink) supportsMultipleAP() bool {
	return h.version.flags.Get(flagHasApInit)
}
