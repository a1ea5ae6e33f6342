// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see
//
// https://sourceforge.net/p/openocd/code

package gostlink

// ReadDAPRegister reads a single 32-bit register on the given port
// (DebugPort or a numbered AccessPort) via JTAG_READ_DAP_REG. Reading an
// AP register switches current_ap if necessary, closing whichever AP was
// previously open: only one AP may be open at a time (§3).
func (h *StLink) ReadDAPRegister(port PortType, addr uint16) (uint32, error) {
	if !dapAddressAllowed(port, addr) {
		return 0, newProbeError(ErrBlanksNotAllowedOnDPRegister)
	}

	if err := h.switchToAP(port); err != nil {
		return 0, err
	}

	encoded := port.encode()
	cmd := []byte{
		cmdDebug, debugApiV2ReadDebugAccessPortRegister,
		byte(encoded), byte(encoded >> 8),
		byte(addr), byte(addr >> 8),
	}

	rx := make([]byte, 8)
	if err := h.writeChecked(cmd, nil, rx); err != nil {
		return 0, err
	}

	return convertToUint32(rx[4:8], littleEndian), nil
}

// WriteDAPRegister writes value to a single 32-bit register on the given
// port via JTAG_WRITE_DAP_REG, with the same AP-switching behavior as
// ReadDAPRegister.
func (h *StLink) WriteDAPRegister(port PortType, addr uint16, value uint32) error {
	if !dapAddressAllowed(port, addr) {
		return newProbeError(ErrBlanksNotAllowedOnDPRegister)
	}

	if err := h.switchToAP(port); err != nil {
		return err
	}

	encoded := port.encode()
	cmd := []byte{
		cmdDebug, debugApiV2WriteDebugAccessPortRegister,
		byte(encoded), byte(encoded >> 8),
		byte(addr), byte(addr >> 8),
		byte(value), byte(value >> 8), byte(value >> 16), byte(value >> 24),
	}

	rx := make([]byte, 2)
	return h.writeChecked(cmd, nil, rx)
}

// dapAddressAllowed rejects the bank-zero DebugPort address form that the
// ST-Link firmware refuses ("blanks not allowed on a DP register"): an
// upper nibble of zero on the DebugPort requires bank selection.
func dapAddressAllowed(port PortType, addr uint16) bool {
	return (addr&0xf0) != 0 || port.IsAccessPort()
}

// switchToAP opens port's AP if it differs from the currently open one,
// closing the previous AP first: current_ap is a single-owner resource.
func (h *StLink) switchToAP(port PortType) error {
	if !port.IsAccessPort() {
		return nil
	}

	if h.currentAP.IsAccessPort() && h.currentAP.Number() != port.Number() {
		if err := h.CloseAP(h.currentAP.Number()); err != nil {
			return err
		}
	}

	return h.OpenAP(port.Number())
}
