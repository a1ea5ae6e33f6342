// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see
//
// https://sourceforge.net/p/openocd/code

package gostlink

import "fmt"

// write implements the USB framed transport operation (§4.A): it sends a
// 16-byte-padded command packet on the OUT endpoint, optionally streams
// txData immediately afterwards, then reads exactly len(rx) bytes on the
// IN endpoint. It never inspects rx's contents; callers that expect a
// status byte call checkStatus themselves.
func (h *StLink) write(cmd []byte, txData []byte, rx []byte) error {
	if len(cmd) > cmdBufferSize {
		return newTransportError("write", fmt.Errorf("command of %d bytes exceeds the %d byte command buffer", len(cmd), cmdBufferSize))
	}

	var padded [cmdBufferSize]byte
	copy(padded[:], cmd)

	if _, err := usbWrite(h.txEndpoint, padded[:]); err != nil {
		return err
	}

	if len(txData) > 0 {
		if _, err := usbWrite(h.txEndpoint, txData); err != nil {
			return err
		}
	}

	if len(rx) > 0 {
		if _, err := usbRead(h.rxEndpoint, rx); err != nil {
			return err
		}
	}

	return nil
}

// writeChecked is write followed by checkStatus against rx: the common
// case for every command whose response begins with a status byte.
func (h *StLink) writeChecked(cmd []byte, txData []byte, rx []byte) error {
	if err := h.write(cmd, txData, rx); err != nil {
		return err
	}
	return checkStatus(rx)
}

// usbGetReadWriteStatus queries the status of the last memory read/write
// operation, issued by ReadMem32/WriteMem32 after each transfer and by
// ReadBlock8/WriteBlock8 after each chunk. Firmware with
// flagHasGetLastRwStatus2 gets the 12-byte GET_LAST_RW_STATUS2 form,
// older firmware the 2-byte GET_LAST_RW_STATUS form.
func (h *StLink) usbGetReadWriteStatus() error {
	var rx []byte
	var cmd []byte

	if h.version.flags.Get(flagHasGetLastRwStatus2) {
		rx = make([]byte, 12)
		cmd = []byte{cmdDebug, debugApiV2GetLastRWStatus2}
	} else {
		rx = make([]byte, 2)
		cmd = []byte{cmdDebug, debugApiV2GetLastRWStatus}
	}

	return h.writeChecked(cmd, nil, rx)
}
