// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gostlink

import "fmt"

// TransportError reports a failure of the USB framed transport itself:
// endpoint lookup, short reads, or the underlying libusb I/O call.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stlink transport: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("stlink transport: %s", e.Op)
}

func (e *TransportError) Unwrap() error { return e.Err }

func newTransportError(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

// ErrEndpointNotFound is returned when the expected IN/OUT/trace endpoint
// cannot be claimed on the opened USB interface.
var ErrEndpointNotFound = &TransportError{Op: "endpoint not found"}

// ErrNotEnoughBytesRead is returned when a bulk read completed with fewer
// bytes than the caller requested.
var ErrNotEnoughBytesRead = &TransportError{Op: "not enough bytes read"}

// ProbeErrorKind enumerates the probe-firmware and probe-command failure
// kinds from §7 of the design: capability gating failures that are fatal
// before any programming attempt, and per-command status failures.
type ProbeErrorKind int

const (
	// ErrJTAGNotSupportedOnProbe: GET_VERSION decoded jtag == 0.
	ErrJTAGNotSupportedOnProbe ProbeErrorKind = iota
	// ErrProbeFirmwareOutdated: hw < 3 && jtag < 24.
	ErrProbeFirmwareOutdated
	// ErrJTagDoesNotSupportMultipleAP: AP open/close attempted on firmware
	// below the multi-AP threshold (hw >= 3 || jtag >= 28).
	ErrJTagDoesNotSupportMultipleAP
	// ErrVoltageDivisionByZero: GET_TARGET_VOLTAGE's a0 sample was zero.
	ErrVoltageDivisionByZero
	// ErrUnknownMode: GET_CURRENT_MODE returned a byte outside the closed Mode enum.
	ErrUnknownMode
	// ErrBlanksNotAllowedOnDPRegister: DebugPort register access with a
	// zero upper nibble address and no bank selection.
	ErrBlanksNotAllowedOnDPRegister
	// ErrCommandFailed: a non-OK status byte was returned; see CommandStatus.
	ErrCommandFailed
)

// ProbeError is the error kind returned for probe-firmware capability
// gating failures and per-command status failures.
type ProbeError struct {
	Kind   ProbeErrorKind
	Status Status // only meaningful when Kind == ErrCommandFailed
}

func (e *ProbeError) Error() string {
	switch e.Kind {
	case ErrJTAGNotSupportedOnProbe:
		return "jtag not supported on this probe"
	case ErrProbeFirmwareOutdated:
		return "probe firmware is outdated"
	case ErrJTagDoesNotSupportMultipleAP:
		return "jtag does not support multiple access ports"
	case ErrVoltageDivisionByZero:
		return "invalid voltage values returned by probe"
	case ErrUnknownMode:
		return "probe reported an unknown mode"
	case ErrBlanksNotAllowedOnDPRegister:
		return "blank values are not allowed on debug-port register addresses"
	case ErrCommandFailed:
		return fmt.Sprintf("command failed with status 0x%02x", byte(e.Status))
	default:
		return "unknown probe error"
	}
}

func newProbeError(kind ProbeErrorKind) error {
	return &ProbeError{Kind: kind}
}

func newCommandFailedError(status Status) error {
	return &ProbeError{Kind: ErrCommandFailed, Status: status}
}

// checkStatus validates a response whose first byte carries a Status
// code, per §4.B "Status checking": the first byte must equal
// StatusJtagOk, otherwise the response fails with CommandFailed(byte).
func checkStatus(response []byte) error {
	if len(response) == 0 {
		return newTransportError("check status", ErrNotEnoughBytesRead)
	}
	status := Status(response[0])
	if status != StatusJtagOk {
		logger.Debugf("checkStatus failed: 0x%02x", byte(status))
		return newCommandFailedError(status)
	}
	return nil
}
