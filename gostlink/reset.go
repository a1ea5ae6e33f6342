// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see

// https://sourceforge.net/p/openocd/code

package gostlink

// DriveNReset drives the target's nRESET pin via JTAG_DRIVE_NRST. When
// pulse is true the probe issues a momentary low-then-high pulse;
// otherwise it asserts nRESET low and leaves it there (callers release it
// with a follow-up ReleaseNReset after configuring the target).
func (h *StLink) DriveNReset(pulse bool) error {
	mode := byte(jtagDriveNrstLow)
	if pulse {
		mode = jtagDriveNrstPulse
	}

	rx := make([]byte, 2)
	return h.writeChecked([]byte{cmdDebug, debugApiV2DriveNrst, mode}, nil, rx)
}

// ReleaseNReset drives the target's nRESET pin high, ending a hold
// started by DriveNReset(false).
func (h *StLink) ReleaseNReset() error {
	rx := make([]byte, 2)
	return h.writeChecked([]byte{cmdDebug, debugApiV2DriveNrst, jtagDriveNrstHigh}, nil, rx)
}

// ResetDevice issues a USB bus reset on the underlying libusb device,
// used by Open's single-retry fallback when the initial probe init fails.
func (h *StLink) ResetDevice() error {
	if err := h.libUsbDevice.Reset(); err != nil {
		return newTransportError("usb reset", err)
	}
	return nil
}
