// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see

// https://sourceforge.net/p/openocd/code
package gostlink

import (
	"github.com/boljen/go-bitmap"
)

// OpenAP issues JTAG_INIT_AP for apsel, tracking the opened set in a
// bitmap so repeated opens of the same AP are free. Firmware below the
// multi-AP threshold has no such command at all, so the failure is
// surfaced to the caller rather than treated as a no-op.
func (h *StLink) OpenAP(apsel uint16) error {
	if !h.supportsMultipleAP() {
		return newProbeError(ErrJTagDoesNotSupportMultipleAP)
	}

	if apsel > apSelectionMaximum {
		return newTransportError("open ap", errAPOutOfRange(apsel))
	}

	if h.openedAP == nil {
		h.openedAP = bitmap.New(apSelectionMaximum + 1)
	}

	if h.openedAP.Get(int(apsel)) {
		return nil
	}

	rx := make([]byte, 2)
	if err := h.writeChecked([]byte{cmdDebug, debugApiV2InitAccessPort, byte(apsel)}, nil, rx); err != nil {
		return err
	}

	h.openedAP.Set(int(apsel), true)
	h.currentAP = AccessPort(apsel)

	logger.Debugf("AP %d opened", apsel)
	return nil
}

// CloseAP issues JTAG_CLOSE_AP_DBG for apsel and clears it from the
// opened-AP bitmap. Firmware that predates multi-AP support has no such
// command, so the failure is surfaced to the caller rather than ignored.
func (h *StLink) CloseAP(apsel uint16) error {
	if !h.supportsMultipleAP() {
		return newProbeError(ErrJTagDoesNotSupportMultipleAP)
	}

	if apsel > apSelectionMaximum {
		return newTransportError("close ap", errAPOutOfRange(apsel))
	}

	rx := make([]byte, 2)
	err := h.writeChecked([]byte{cmdDebug, debugApiV2CloseAccessPortDbg, byte(apsel)}, nil, rx)

	if h.version.flags.Get(flagFixCloseAp) && err != nil {
		return err
	}

	if h.openedAP != nil {
		h.openedAP.Set(int(apsel), false)
	}

	logger.Debugf("AP %d closed", apsel)
	return nil
}

// CurrentAP returns the PortType most recently opened via OpenAP.
func (h *StLink) CurrentAP() PortType {
	return h.currentAP
}

type apRangeError struct{ apsel uint16 }

func (e *apRangeError) Error() string { return "apsel " + itoa(int(e.apsel)) + " exceeds apSelectionMaximum" }

func errAPOutOfRange(apsel uint16) error { return &apRangeError{apsel: apsel} }
