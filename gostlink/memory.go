// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see

// https://sourceforge.net/p/openocd/code

package gostlink

import "errors"

// maxReadWrite8 bounds a single 8-bit memory transfer; larger firmware
// generations (flagHasRw8Bytes512) raise the ceiling.
const maxReadWrite8 = 64
const maxReadWrite8V3 = 512

func (h *StLink) readWriteMax8() uint32 {
	if h.version.flags.Get(flagHasRw8Bytes512) {
		return maxReadWrite8V3
	}
	return maxReadWrite8
}

// ReadMem32 reads a word-aligned memory block via DEBUG_READMEM_32BIT.
// addr and length must both be 4-byte aligned.
func (h *StLink) ReadMem32(addr uint32, length uint16, buffer []byte) error {
	if length%4 != 0 || addr%4 != 0 {
		return errors.New("unaligned 32-bit memory access")
	}

	cmd := []byte{cmdDebug, debugReadMem32Bit,
		byte(addr), byte(addr >> 8), byte(addr >> 16), byte(addr >> 24),
		byte(length), byte(length >> 8)}

	rx := make([]byte, length)
	if err := h.write(cmd, nil, rx); err != nil {
		return err
	}

	copy(buffer, rx)
	return h.usbGetReadWriteStatus()
}

// WriteMem32 writes a word-aligned memory block via DEBUG_WRITEMEM_32BIT.
func (h *StLink) WriteMem32(addr uint32, data []byte) error {
	if len(data)%4 != 0 || addr%4 != 0 {
		return errors.New("unaligned 32-bit memory access")
	}

	cmd := []byte{cmdDebug, debugWriteMem32Bit,
		byte(addr), byte(addr >> 8), byte(addr >> 16), byte(addr >> 24),
		byte(len(data)), byte(len(data) >> 8)}

	if err := h.write(cmd, data, nil); err != nil {
		return err
	}

	return h.usbGetReadWriteStatus()
}

// ReadBlock8 reads an arbitrary byte range via DEBUG_READMEM_8BIT,
// chunked to the firmware's maximum 8-bit transfer size. This is the
// ActiveSession.ReadBlock8 primitive the flash engine's verify/read-back
// path (and RTT channel polling) are built on.
func (h *StLink) ReadBlock8(addr uint32, size uint32, buffer []byte) error {
	maxChunk := h.readWriteMax8()

	var pos uint32
	for pos < size {
		chunk := size - pos
		if chunk > maxChunk {
			chunk = maxChunk
		}

		cmd := []byte{cmdDebug, debugReadMem8Bit,
			byte(addr), byte(addr >> 8), byte(addr >> 16), byte(addr >> 24),
			byte(chunk), byte(chunk >> 8)}

		rx := make([]byte, chunk)
		if err := h.write(cmd, nil, rx); err != nil {
			return err
		}
		copy(buffer[pos:pos+chunk], rx)

		if err := h.usbGetReadWriteStatus(); err != nil {
			return err
		}

		addr += chunk
		pos += chunk
	}

	return nil
}

// WriteBlock8 writes an arbitrary byte range via DEBUG_WRITEMEM_8BIT,
// chunked the same way as ReadBlock8.
func (h *StLink) WriteBlock8(addr uint32, data []byte) error {
	maxChunk := h.readWriteMax8()

	var pos uint32
	size := uint32(len(data))

	for pos < size {
		chunk := size - pos
		if chunk > maxChunk {
			chunk = maxChunk
		}

		cmd := []byte{cmdDebug, debugWriteMem8Bit,
			byte(addr), byte(addr >> 8), byte(addr >> 16), byte(addr >> 24),
			byte(chunk), byte(chunk >> 8)}

		if err := h.write(cmd, data[pos:pos+chunk], nil); err != nil {
			return err
		}
		if err := h.usbGetReadWriteStatus(); err != nil {
			return err
		}

		addr += chunk
		pos += chunk
	}

	return nil
}
