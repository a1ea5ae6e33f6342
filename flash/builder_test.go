// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package flash

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddData_RejectsDuplicateAddress(t *testing.T) {
	b := NewFlashBuilder(false)

	require.NoError(t, b.AddData(0x100, []byte{1, 2, 3}))

	err := b.AddData(0x100, []byte{4, 5, 6})
	require.Error(t, err)

	var berr *BuilderError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, ErrDuplicateAddress, berr.Kind)

	assert.Len(t, b.writes, 1)
	assert.Equal(t, 3, b.BufferedSize())
}

func TestAddData_RejectsOverlap(t *testing.T) {
	b := NewFlashBuilder(false)

	require.NoError(t, b.AddData(0x100, make([]byte, 16)))

	err := b.AddData(0x108, make([]byte, 4))
	require.Error(t, err)

	var berr *BuilderError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, ErrOverlap, berr.Kind)

	assert.Len(t, b.writes, 1)
}

func TestAddData_AllowsAdjacency(t *testing.T) {
	b := NewFlashBuilder(false)

	require.NoError(t, b.AddData(0x100, make([]byte, 16)))
	require.NoError(t, b.AddData(0x110, make([]byte, 16)))

	assert.Len(t, b.writes, 2)
	assert.Equal(t, 32, b.BufferedSize())
}

func TestAddData_KeepsWritesSortedRegardlessOfInsertOrder(t *testing.T) {
	b := NewFlashBuilder(false)

	require.NoError(t, b.AddData(0x200, []byte{1}))
	require.NoError(t, b.AddData(0x100, []byte{2}))
	require.NoError(t, b.AddData(0x150, []byte{3}))

	require.Len(t, b.writes, 3)
	assert.Equal(t, uint32(0x100), b.writes[0].Address)
	assert.Equal(t, uint32(0x150), b.writes[1].Address)
	assert.Equal(t, uint32(0x200), b.writes[2].Address)
}

// S1: single short page, erase-then-program, trailing fill with erased value.
func TestProgram_SingleShortPage(t *testing.T) {
	region := NewStaticRegion(0x08000000, 1024, 1024, 256, 0xFF)
	session := newFakeSession(0x08000000, 1024, 0xFF)

	b := NewFlashBuilder(false)
	require.NoError(t, b.AddData(0x08000000, []byte{0x01, 0x02, 0x03}))

	require.NoError(t, b.Program(session, region, false, false))

	require.Len(t, session.programmedPages, 1)
	page := session.programmedPages[0]
	assert.Equal(t, uint32(0x08000000), page.Address)
	require.Len(t, page.Data, 256)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, page.Data[:3])
	assert.True(t, bytes.Equal(page.Data[3:], bytes.Repeat([]byte{0xFF}, 253)))

	assert.Equal(t, []uint32{0x08000000}, session.erasedSectors)
	assert.Equal(t, 0, session.eraseAllCalls)
}

// S3: restore_unwritten_bytes reads the device for the tail instead of the erased value.
func TestProgram_RestoreUnwrittenReadsDevice(t *testing.T) {
	region := NewStaticRegion(0x08000000, 1024, 1024, 256, 0xFF)
	session := newFakeSession(0x08000000, 1024, 0xFF)
	copy(session.memory[3:], bytes.Repeat([]byte{0x55}, 253))

	b := NewFlashBuilder(false)
	require.NoError(t, b.AddData(0x08000000, []byte{0x01, 0x02, 0x03}))

	require.NoError(t, b.Program(session, region, false, true))

	page := session.programmedPages[0]
	require.Len(t, page.Data, 256)
	assert.True(t, bytes.Equal(page.Data[3:], bytes.Repeat([]byte{0x55}, 253)))
}

// S4: chip-erase request silently downgrades when unsupported.
func TestProgram_ChipEraseDowngradesWhenUnsupported(t *testing.T) {
	region := NewStaticRegion(0x08000000, 2048, 1024, 256, 0xFF)
	session := newFakeSession(0x08000000, 2048, 0xFF)
	session.chipErase = false

	b := NewFlashBuilder(false)
	require.NoError(t, b.AddData(0x08000000, []byte{0xAA}))

	require.NoError(t, b.Program(session, region, true, false))

	assert.Equal(t, 0, session.eraseAllCalls)
	assert.Equal(t, []uint32{0x08000000}, session.erasedSectors)
}

func TestProgram_ChipEraseUsedWhenSupported(t *testing.T) {
	region := NewStaticRegion(0x08000000, 2048, 1024, 256, 0xFF)
	session := newFakeSession(0x08000000, 2048, 0xFF)
	session.chipErase = true

	b := NewFlashBuilder(false)
	require.NoError(t, b.AddData(0x08000000, []byte{0xAA}))

	require.NoError(t, b.Program(session, region, true, false))

	assert.Equal(t, 1, session.eraseAllCalls)
	assert.Empty(t, session.erasedSectors)
}

// S2: a write straddling two sectors produces a page in each, both
// leading and trailing gaps erased-filled.
func TestProgram_CrossSectorWrite(t *testing.T) {
	region := NewStaticRegion(0x08000000, 2048, 1024, 256, 0xFF)
	session := newFakeSession(0x08000000, 2048, 0xFF)

	b := NewFlashBuilder(false)
	require.NoError(t, b.AddData(0x080003F0, bytes.Repeat([]byte{0xAA}, 32)))

	require.NoError(t, b.Program(session, region, false, false))

	require.Len(t, session.programmedPages, 2)

	first := session.programmedPages[0]
	assert.Equal(t, uint32(0x08000300), first.Address)
	assert.True(t, bytes.Equal(first.Data[:0xF0], bytes.Repeat([]byte{0xFF}, 0xF0)))
	assert.True(t, bytes.Equal(first.Data[0xF0:], bytes.Repeat([]byte{0xAA}, 16)))

	second := session.programmedPages[1]
	assert.Equal(t, uint32(0x08000400), second.Address)
	assert.True(t, bytes.Equal(second.Data[:16], bytes.Repeat([]byte{0xAA}, 16)))
	assert.True(t, bytes.Equal(second.Data[16:], bytes.Repeat([]byte{0xFF}, 256-16)))

	assert.ElementsMatch(t, []uint32{0x08000000, 0x08000400}, session.erasedSectors)
}

func TestProgram_DoubleBufferedLoop(t *testing.T) {
	region := NewStaticRegion(0x08000000, 1024, 1024, 256, 0xFF)
	session := newFakeSession(0x08000000, 1024, 0xFF)
	session.doubleBuffered = true

	b := NewFlashBuilder(true)
	require.NoError(t, b.AddData(0x08000000, bytes.Repeat([]byte{1}, 256)))
	require.NoError(t, b.AddData(0x08000100, bytes.Repeat([]byte{2}, 256)))

	require.NoError(t, b.Program(session, region, false, false))

	require.Len(t, session.loadBufferCalls, 2)
	assert.Equal(t, 0, session.loadBufferCalls[0].buffer)
	assert.Equal(t, 1, session.loadBufferCalls[1].buffer)

	require.Len(t, session.startBufferCalls, 2)
	assert.Equal(t, 0, session.startBufferCalls[0].buffer)
	assert.Equal(t, 1, session.startBufferCalls[1].buffer)

	assert.Equal(t, 2, session.waitCalls)
	assert.Empty(t, session.programmedPages)
}

func TestProgram_NoWritesIsANoOp(t *testing.T) {
	region := NewStaticRegion(0x08000000, 1024, 1024, 256, 0xFF)
	session := newFakeSession(0x08000000, 1024, 0xFF)

	b := NewFlashBuilder(false)
	require.NoError(t, b.Program(session, region, true, false))

	assert.Equal(t, 0, session.eraseAllCalls)
	assert.Empty(t, session.erasedSectors)
	assert.Empty(t, session.programmedPages)
}

func TestProgram_AddressOutsideRegionFails(t *testing.T) {
	region := NewStaticRegion(0x08000000, 1024, 1024, 256, 0xFF)
	session := newFakeSession(0x08000000, 1024, 0xFF)

	b := NewFlashBuilder(false)
	require.NoError(t, b.AddData(0x09000000, []byte{1}))

	err := b.Program(session, region, false, false)
	require.Error(t, err)

	var regionErr *AddressNotInRegionError
	require.ErrorAs(t, err, &regionErr)
	assert.Equal(t, uint32(0x09000000), regionErr.Address)
}
