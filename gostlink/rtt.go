// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// based on https://github.com/phryniszak/strtt

package gostlink

import (
	"bytes"
	"errors"
	"sort"
)

// RttDataCb receives the data read from one up-channel: its index and payload.
type RttDataCb func(int, []byte) error

const DefaultRamStart = 0x20000000

type seggerRttMode int

const (
	SeggerRttModeNoBlockSkip     seggerRttMode = 0
	SeggerRttModeNoBlockTrim     seggerRttMode = 1
	SeggerRttModeBlockIfFifoFull seggerRttMode = 2
)

const (
	seggerRttBufferSize       = 24
	seggerRttControlBlockSize = 24
)

// seggerRttChannel mirrors one SEGGER_RTT_BUFFER_UP/DOWN struct as laid
// out in target RAM.
type seggerRttChannel struct {
	name         uint32
	buffer       uint32
	sizeOfBuffer uint32
	wrOff        uint32
	rdOff        uint32
	flags        uint32
}

type seggerRttControlBlock struct {
	acId              [16]byte
	maxNumUpBuffers   uint32
	maxNumDownBuffers uint32
	channels          []*seggerRttChannel
}

type seggerRttInfo struct {
	offset       uint32
	ramStart     uint32
	controlBlock seggerRttControlBlock
}

// InitializeRtt scans ramSizeKb kilobytes of target RAM starting at
// ramStart for the "SEGGER RTT" control block signature and records its
// location and up/down buffer counts.
func (h *StLink) InitializeRtt(ramSizeKb uint32, ramStart uint32) error {
	h.seggerRtt.ramStart = ramStart

	logger.Debug("initializing SEGGER RTT: reading target RAM")

	ramBuffer := make([]byte, ramSizeKb*1024)
	if err := h.ReadBlock8(ramStart, uint32(len(ramBuffer)), ramBuffer); err != nil {
		return err
	}

	logger.Info("searching for SEGGER RTT control block")
	occ := bytes.Index(ramBuffer, []byte("SEGGER RTT"))
	if occ == -1 {
		return errors.New("could not find SEGGER RTT control block signature")
	}

	h.seggerRtt.offset = uint32(occ)
	logger.Infof("found RTT control block at address 0x%08x", h.seggerRtt.ramStart+h.seggerRtt.offset)

	parseRttControlBlock(ramBuffer[h.seggerRtt.offset:], &h.seggerRtt.controlBlock)

	if h.seggerRtt.controlBlock.maxNumDownBuffers == 0 && h.seggerRtt.controlBlock.maxNumUpBuffers == 0 {
		return errors.New("RTT control block reports no up or down channels")
	}

	logger.Debugf("RTT control block: %d up channels, %d down channels",
		h.seggerRtt.controlBlock.maxNumUpBuffers, h.seggerRtt.controlBlock.maxNumDownBuffers)

	total := h.seggerRtt.controlBlock.maxNumUpBuffers + h.seggerRtt.controlBlock.maxNumDownBuffers
	h.seggerRtt.controlBlock.channels = make([]*seggerRttChannel, total)
	return nil
}

// UpdateRttChannels re-reads every channel descriptor from target RAM,
// refreshing write/read offsets and (optionally) channel names.
func (h *StLink) UpdateRttChannels(readChannelNames bool) error {
	bufferAmount := h.seggerRtt.controlBlock.maxNumUpBuffers + h.seggerRtt.controlBlock.maxNumDownBuffers
	size := bufferAmount * seggerRttBufferSize

	ramBuffer := make([]byte, size)
	if err := h.ReadBlock8(h.seggerRtt.ramStart+h.seggerRtt.offset+seggerRttControlBlockSize, size, ramBuffer); err != nil {
		return err
	}

	offset := uint32(0)
	for i := uint32(0); i < bufferAmount; i++ {
		ch := &seggerRttChannel{
			name:         convertToUint32(ramBuffer[offset:], littleEndian),
			buffer:       convertToUint32(ramBuffer[offset+4:], littleEndian),
			sizeOfBuffer: convertToUint32(ramBuffer[offset+8:], littleEndian),
			wrOff:        convertToUint32(ramBuffer[offset+12:], littleEndian),
			rdOff:        convertToUint32(ramBuffer[offset+16:], littleEndian),
			flags:        convertToUint32(ramBuffer[offset+20:], littleEndian),
		}
		offset += seggerRttBufferSize

		if ch.name != 0 && readChannelNames {
			nameBuf := make([]byte, 64)
			if err := h.ReadBlock8(ch.name, 64, nameBuf); err == nil {
				end := bytes.IndexByte(nameBuf, 0)
				if end == -1 {
					end = len(nameBuf)
				}
				logger.Debugf("%d. channel %q size=%d flags=%d buffer=0x%08x rdOff=%d wrOff=%d",
					i, string(nameBuf[:end]), ch.sizeOfBuffer, ch.flags, ch.buffer, ch.rdOff, ch.wrOff)
			}
		}

		h.seggerRtt.controlBlock.channels[i] = ch
	}

	return nil
}

// ReadRttChannels reads every up-channel that has pending data and
// invokes callback once per channel with its payload.
func (h *StLink) ReadRttChannels(callback RttDataCb) error {
	if h.seggerRtt.controlBlock.maxNumUpBuffers == 0 {
		return errors.New("no up channels configured on target")
	}

	type span struct{ start, size uint32 }
	var spans []span

	for _, channel := range h.seggerRtt.controlBlock.channels {
		if channel.sizeOfBuffer > 0 && channel.rdOff != channel.wrOff {
			spans = append(spans, span{start: channel.buffer - h.seggerRtt.ramStart, size: channel.sizeOfBuffer})
		}
	}

	if len(spans) == 0 {
		return nil
	}

	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].size < spans[j].size
	})

	start := spans[0].start
	size := spans[len(spans)-1].start + spans[len(spans)-1].size - start

	ramBuffer := make([]byte, size)
	if err := h.ReadBlock8(h.seggerRtt.ramStart+start, size, ramBuffer); err != nil {
		return err
	}

	for i, channel := range h.seggerRtt.controlBlock.channels {
		if uint32(i) >= h.seggerRtt.controlBlock.maxNumUpBuffers {
			break
		}

		if channel.sizeOfBuffer > 0 && channel.rdOff != channel.wrOff {
			data, err := h.readDataFromRttChannelBuffer(uint32(i), ramBuffer[channel.buffer-h.seggerRtt.ramStart-start:])
			if err != nil {
				return err
			}
			if err := callback(i, data); err != nil {
				return err
			}
		}
	}

	return nil
}

// readDataFromRttChannelBuffer drains one up-channel; ramBuffer starts at
// that channel's own buffer in the host copy of target RAM.
func (h *StLink) readDataFromRttChannelBuffer(channelIdx uint32, ramBuffer []byte) ([]byte, error) {
	channel := h.seggerRtt.controlBlock.channels[channelIdx]
	wrOff := channel.wrOff
	rdOff := channel.rdOff

	var data []byte
	for rdOff != wrOff {
		data = append(data, ramBuffer[rdOff])
		rdOff++
		if rdOff > channel.sizeOfBuffer-1 {
			rdOff = 0
		}
	}

	if len(data) > 0 {
		rdOffAddr := h.seggerRtt.ramStart + h.seggerRtt.offset + seggerRttControlBlockSize + channelIdx*seggerRttBufferSize + 16
		wrBuf := []byte{byte(rdOff), byte(rdOff >> 8), byte(rdOff >> 16), byte(rdOff >> 24)}
		if err := h.WriteMem32(rdOffAddr, wrBuf); err != nil {
			return nil, err
		}
	}

	return data, nil
}

func parseRttControlBlock(ramBuffer []byte, controlBlock *seggerRttControlBlock) {
	copy(controlBlock.acId[:], ramBuffer)
	controlBlock.maxNumUpBuffers = convertToUint32(ramBuffer[len(controlBlock.acId):], littleEndian)
	controlBlock.maxNumDownBuffers = convertToUint32(ramBuffer[len(controlBlock.acId)+4:], littleEndian)
}
