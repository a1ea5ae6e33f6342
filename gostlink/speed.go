// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see

// https://sourceforge.net/p/openocd/code

package gostlink

import (
	"errors"
	"fmt"
)

// speedMap pairs a kHz clock speed with the divisor/index the firmware
// expects to select it; the closed enumeration the probe firmware allows.
type speedMap struct {
	speed        uint32
	speedDivisor uint32
}

var swdKHzToSpeedMap = [...]speedMap{
	{4000, 0},
	{1800, 1}, /* default */
	{1200, 2},
	{950, 3},
	{480, 7},
	{240, 15},
	{125, 31},
	{100, 40},
	{50, 79},
	{25, 158},
	{15, 265},
	{5, 798},
}

var jtagKHzToSpeedMap = [...]speedMap{
	{9000, 4},
	{4500, 8},
	{2250, 16},
	{1125, 32}, /* default */
	{562, 64},
	{281, 128},
	{140, 256},
}

// SetSpeed negotiates the wire clock speed for the active protocol,
// dispatching to the V3 COM-frequency command when available and falling
// back to the fixed SWD/JTAG divisor tables otherwise.
func (h *StLink) SetSpeed(khz uint32, query bool) (uint32, error) {
	if h.version.jtagApi == jTagApiV3 {
		return h.setSpeedV3(h.protocol == WireProtocolJtag, khz, query)
	}

	if h.protocol == WireProtocolJtag {
		return h.setSpeedJtag(khz, query)
	}
	return h.setSpeedSwd(khz, query)
}

func (h *StLink) setSpeedV3(isJtag bool, kHz uint32, querySpeed bool) (uint32, error) {
	smap := make([]speedMap, v3MaxFreqNb)

	if err := h.usbGetComFreq(isJtag, smap); err != nil {
		return kHz, err
	}

	speedIndex, err := matchSpeedMap(smap, kHz, querySpeed)
	if err != nil {
		return kHz, err
	}

	if !querySpeed {
		if err := h.usbSetComFreq(isJtag, smap[speedIndex].speed); err != nil {
			return kHz, err
		}
	}

	return smap[speedIndex].speed, nil
}

func (h *StLink) setSpeedSwd(kHz uint32, querySpeed bool) (uint32, error) {
	if !h.version.flags.Get(flagHasSwdSetFreq) {
		return kHz, errors.New("target st-link does not support swd speed change")
	}

	speedIndex, err := matchSpeedMap(swdKHzToSpeedMap[:], kHz, querySpeed)
	if err != nil {
		return kHz, err
	}

	if !querySpeed {
		if err := h.usbSetSwdClk(uint16(swdKHzToSpeedMap[speedIndex].speedDivisor)); err != nil {
			return kHz, errors.New("could not set swd clock speed")
		}
	}

	return swdKHzToSpeedMap[speedIndex].speed, nil
}

func (h *StLink) setSpeedJtag(kHz uint32, querySpeed bool) (uint32, error) {
	if !h.version.flags.Get(flagHasJtagSetFreq) {
		return kHz, errors.New("target st-link does not support jtag speed change")
	}

	speedIndex, err := matchSpeedMap(jtagKHzToSpeedMap[:], kHz, querySpeed)
	if err != nil {
		return kHz, err
	}

	if !querySpeed {
		if err := h.usbSetJtagClk(uint16(jtagKHzToSpeedMap[speedIndex].speedDivisor)); err != nil {
			return kHz, errors.New("could not set jtag clock speed")
		}
	}

	return jtagKHzToSpeedMap[speedIndex].speed, nil
}

func matchSpeedMap(smap []speedMap, kHz uint32, query bool) (int, error) {
	lastValidSpeed := -1
	speedIndex := -1
	var speedDiff uint32 = ^uint32(0)
	match := true

	for i, s := range smap {
		if s.speed == 0 {
			continue
		}
		lastValidSpeed = i

		if kHz == s.speed {
			speedIndex = i
			break
		}

		var currentDiff uint32
		if kHz > s.speed {
			currentDiff = kHz - s.speed
		} else {
			currentDiff = s.speed - kHz
		}

		if currentDiff < speedDiff && kHz >= s.speed {
			speedDiff = currentDiff
			speedIndex = i
		}
	}

	if speedIndex == -1 {
		speedIndex = lastValidSpeed
		match = false
	}

	if !match && query {
		return speedIndex, fmt.Errorf("unable to match requested speed %d kHz, using %d kHz", kHz, smap[speedIndex].speed)
	}

	return speedIndex, nil
}

func dumpSpeedMap(smap []speedMap) {
	for i := range smap {
		if smap[i].speed > 0 {
			logger.Debugf("%d kHz", smap[i].speed)
		}
	}
}

func (h *StLink) usbSetSwdClk(clkDivisor uint16) error {
	if !h.version.flags.Get(flagHasSwdSetFreq) {
		return errors.New("cannot change swd speed on this firmware")
	}

	rx := make([]byte, 2)
	cmd := []byte{cmdDebug, debugApiV2SwdSetFreq, byte(clkDivisor), byte(clkDivisor >> 8)}
	return h.writeChecked(cmd, nil, rx)
}

func (h *StLink) usbSetJtagClk(clkDivisor uint16) error {
	if !h.version.flags.Get(flagHasJtagSetFreq) {
		return errors.New("cannot change jtag speed on this firmware")
	}

	rx := make([]byte, 2)
	cmd := []byte{cmdDebug, debugApiV2JTagSetFreq, byte(clkDivisor), byte(clkDivisor >> 8)}
	return h.writeChecked(cmd, nil, rx)
}

func (h *StLink) usbGetComFreq(isJtag bool, smap []speedMap) error {
	if h.version.jtagApi != jTagApiV3 {
		return errors.New("com frequency query requires jtag api v3")
	}

	jtagByte := byte(0)
	if isJtag {
		jtagByte = 1
	}

	rx := make([]byte, 52)
	cmd := []byte{cmdDebug, debugApiV3GetComFreq, jtagByte}
	if err := h.writeChecked(cmd, nil, rx); err != nil {
		return err
	}

	size := uint32(rx[8])
	if size > v3MaxFreqNb {
		size = v3MaxFreqNb
	}

	for i := uint32(0); i < size; i++ {
		smap[i].speed = convertToUint32(rx[12+4*i:], littleEndian)
		smap[i].speedDivisor = i
	}
	for i := size; i < v3MaxFreqNb; i++ {
		smap[i].speed = 0
	}

	return nil
}

func (h *StLink) usbSetComFreq(isJtag bool, frequency uint32) error {
	if h.version.jtagApi != jTagApiV3 {
		return errors.New("com frequency selection requires jtag api v3")
	}

	jtagByte := byte(0)
	if isJtag {
		jtagByte = 1
	}

	cmd := []byte{cmdDebug, debugApiV3SetComFreq, jtagByte, 0,
		byte(frequency), byte(frequency >> 8), byte(frequency >> 16), byte(frequency >> 24)}

	rx := make([]byte, 8)
	return h.writeChecked(cmd, nil, rx)
}
