// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package flash

// fakeSession is a minimal in-memory ActiveSession used by both the
// testify unit tests and the ginkgo behavior specs: it records every
// call it receives and serves ReadBlock8 out of a backing byte array
// pre-filled with the erased value, so "restore_unwritten_bytes" tests
// can assert against known device content.
type fakeSession struct {
	memory []byte
	base   uint32

	chipErase      bool
	doubleBuffered bool

	eraseAllCalls    int
	erasedSectors    []uint32
	programmedPages  []FlashPage
	loadBufferCalls  []loadBufferCall
	startBufferCalls []startBufferCall
	waitCalls        int
}

type loadBufferCall struct {
	address uint32
	data    []byte
	buffer  int
}

type startBufferCall struct {
	buffer  int
	address uint32
}

func newFakeSession(base uint32, size uint32, erased byte) *fakeSession {
	mem := make([]byte, size)
	for i := range mem {
		mem[i] = erased
	}
	return &fakeSession{memory: mem, base: base}
}

func (s *fakeSession) EraseAll() error {
	s.eraseAllCalls++
	return nil
}

func (s *fakeSession) EraseSector(address uint32) error {
	s.erasedSectors = append(s.erasedSectors, address)
	return nil
}

func (s *fakeSession) ProgramPage(address uint32, data []byte) error {
	s.programmedPages = append(s.programmedPages, FlashPage{Address: address, Data: append([]byte(nil), data...), Size: uint32(len(data))})
	copy(s.memory[address-s.base:], data)
	return nil
}

func (s *fakeSession) ReadBlock8(address uint32, size uint32) ([]byte, error) {
	offset := address - s.base
	return append([]byte(nil), s.memory[offset:offset+size]...), nil
}

func (s *fakeSession) LoadPageBuffer(address uint32, data []byte, bufferIndex int) error {
	s.loadBufferCalls = append(s.loadBufferCalls, loadBufferCall{address: address, data: append([]byte(nil), data...), buffer: bufferIndex})
	return nil
}

func (s *fakeSession) StartProgramPageWithBuffer(bufferIndex int, address uint32) error {
	s.startBufferCalls = append(s.startBufferCalls, startBufferCall{buffer: bufferIndex, address: address})
	return nil
}

func (s *fakeSession) WaitForCompletion() (int, error) {
	s.waitCalls++
	return 0, nil
}

func (s *fakeSession) SupportsChipErase() bool       { return s.chipErase }
func (s *fakeSession) SupportsDoubleBuffering() bool { return s.doubleBuffered }
