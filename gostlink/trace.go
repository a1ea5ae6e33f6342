// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see

// https://sourceforge.net/p/openocd/code

package gostlink

import "errors"

// TraceConfigType selects where SWO trace output is captured.
type TraceConfigType int

const (
	TraceConfigTypeDisabled TraceConfigType = 0
	TraceConfigTypeExternal TraceConfigType = 1
	TraceConfigTypeInternal TraceConfigType = 2
)

// TpuiPinProtocolType selects the TPIU pin protocol for SWO output.
type TpuiPinProtocolType int

const (
	TpuiPinProtocolSync           TpuiPinProtocolType = 0
	TpuiPinProtocolAsynManchester TpuiPinProtocolType = 1
	TpuiPinProtocolAsyncUart      TpuiPinProtocolType = 2
)

// ItmTsPrescaler selects the ITM timestamp counter's refclock divisor.
type ItmTsPrescaler int

const (
	ItmTsPrescale1  ItmTsPrescaler = 0
	ItmTsPrescale4  ItmTsPrescaler = 1
	ItmTsPrescale16 ItmTsPrescaler = 2
	ItmTsPrescale64 ItmTsPrescaler = 3
)

// ConfigureTrace enables or disables SWO trace capture. enabled requests
// async-UART trace at traceFreq Hz (derived from traceClkInFreq via the
// prescaler written back through preScaler); only TpuiPinProtocolAsyncUart
// is supported by this probe family.
func (h *StLink) ConfigureTrace(enabled bool, tpiuProtocol TpuiPinProtocolType, traceFreq *uint32,
	traceClkInFreq uint32, preScaler *uint16) error {

	if enabled && (!h.version.flags.Get(flagHasTrace) || tpiuProtocol != TpuiPinProtocolAsyncUart) {
		return errors.New("this probe does not support the requested trace mode")
	}

	if !enabled {
		return h.usbTraceDisable()
	}

	if *traceFreq > traceMaxHz {
		return errors.New("requested SWO frequency exceeds this probe's maximum")
	}

	if err := h.usbTraceDisable(); err != nil {
		logger.Debug(err)
	}

	if *traceFreq == 0 {
		*traceFreq = traceMaxHz
	}

	presc := uint16(traceClkInFreq / *traceFreq)
	if traceClkInFreq%*traceFreq > 0 {
		presc++
	}
	if presc > tpuiAcprMaxSwoScaler {
		return errors.New("SWO frequency is not achievable with the given trace clock")
	}

	*preScaler = presc
	h.trace.sourceHz = *traceFreq

	return h.usbTraceEnable()
}

func (h *StLink) usbTraceDisable() error {
	if !h.version.flags.Get(flagHasTrace) {
		return errors.New("this probe does not support trace")
	}

	logger.Debug("tracing: disable")

	rx := make([]byte, 2)
	if err := h.writeChecked([]byte{cmdDebug, debugApiV2StopTraceRx}, nil, rx); err != nil {
		return errors.New("could not disable trace")
	}

	h.trace.enabled = false
	return nil
}

func (h *StLink) usbTraceEnable() error {
	if !h.version.flags.Get(flagHasTrace) {
		return errors.New("tracing not supported by this firmware")
	}

	cmd := []byte{cmdDebug, debugApiV2StartTraceRx,
		byte(traceSize), byte(traceSize >> 8),
		byte(h.trace.sourceHz), byte(h.trace.sourceHz >> 8), byte(h.trace.sourceHz >> 16), byte(h.trace.sourceHz >> 24)}

	rx := make([]byte, 2)
	if err := h.writeChecked(cmd, nil, rx); err != nil {
		return errors.New("could not enable trace")
	}

	h.trace.enabled = true
	logger.Debugf("tracing: recording at %d Hz", h.trace.sourceHz)
	return nil
}

// PollTrace drains the probe's trace FIFO into buffer, reporting via size
// how many bytes are actually available (never more than len(buffer)).
func (h *StLink) PollTrace(buffer []byte, size *uint32) error {
	if !h.trace.enabled || !h.version.flags.Get(flagHasTrace) {
		*size = 0
		return nil
	}

	rx := make([]byte, 2)
	if err := h.write([]byte{cmdDebug, debugApiV2GetTraceNB}, nil, rx); err != nil {
		return err
	}

	available := uint32(convertToUint16(rx, littleEndian))
	if available < *size {
		*size = available
	}

	if *size == 0 {
		return nil
	}

	return h.readTrace(buffer, *size)
}

func (h *StLink) readTrace(buffer []byte, size uint32) error {
	if h.traceEndpoint == nil {
		return ErrEndpointNotFound
	}

	bytesRead, err := usbRead(h.traceEndpoint, buffer[:size])
	if err != nil {
		return err
	}

	logger.Debugf("read %d of %d trace bytes", bytesRead, size)
	return nil
}
