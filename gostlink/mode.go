// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see

// https://sourceforge.net/p/openocd/code

package gostlink

// CurrentMode issues GET_CURRENT_MODE and decodes the reported mode byte
// against the closed Mode enumeration.
func (h *StLink) CurrentMode() (Mode, error) {
	rx := make([]byte, 2)
	if err := h.write([]byte{cmdGetCurrentMode}, nil, rx); err != nil {
		return 0, err
	}

	switch rx[0] {
	case deviceModeDFU:
		return ModeDfu, nil
	case deviceModeMass:
		return ModeMassStorage, nil
	case deviceModeDebug:
		return ModeJtag, nil
	case deviceModeSwim:
		return ModeSwim, nil
	default:
		return 0, newProbeError(ErrUnknownMode)
	}
}

// enterIdle leaves whatever mode the probe currently reports (DFU or
// SWIM) so it can be re-entered cleanly; a no-op when already idle
// (mass-storage or debug mode). Internal helper used by Open and Close.
func (h *StLink) enterIdle() error {
	mode, err := h.CurrentMode()
	if err != nil {
		return err
	}

	h.mode = mode

	switch mode {
	case ModeDfu:
		return h.write([]byte{cmdDfu, dfuExit}, nil, nil)
	case ModeSwim:
		return h.write([]byte{cmdSwim, swimExit}, nil, nil)
	default:
		return nil
	}
}

// attach enters debug mode over the given wire protocol via JTAG_ENTER2,
// first returning the probe to idle. This is the probe transport's
// "attach" operation from §4.C.
func (h *StLink) attach(protocol WireProtocol) error {
	if err := h.enterIdle(); err != nil {
		return err
	}

	param := byte(jtagEnterSwdNoReset)
	if protocol == WireProtocolJtag {
		param = jtagEnterJtagNoReset
	}

	rx := make([]byte, 2)
	if err := h.writeChecked([]byte{cmdDebug, debugApiV2Enter, param, 0}, nil, rx); err != nil {
		return err
	}

	h.protocol = protocol
	h.mode = ModeJtag
	logger.Debugf("attached in %s mode", protocol)
	return nil
}

// Detach returns the probe to idle via enterIdle. Only DFU and SWIM mode
// are exited; a probe attached in debug mode is left in it, since
// enterIdle counts debug mode as idle.
func (h *StLink) Detach() error {
	return h.enterIdle()
}
