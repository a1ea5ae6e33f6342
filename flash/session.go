// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see
//
// https://sourceforge.net/p/openocd/code

package flash

import "github.com/sirupsen/logrus"

// logger is the package-wide structured logger; defaults to logrus.New()
// like gostlink's, and is reset via SetLogger rather than introducing a
// second logging dependency into the same program.
var logger *logrus.Logger = logrus.New()

// SetLogger overrides the package-wide logger, typically with the same
// *logrus.Logger instance the caller gave to gostlink.SetLogger.
func SetLogger(l *logrus.Logger) {
	logger = l
}

// SectorInfo describes the erasable granule a Region reports for a given address.
type SectorInfo struct {
	Base     uint32
	Size     uint32
	PageSize uint32
}

// PageInfo describes the programmable granule a Region reports for a given address.
type PageInfo struct {
	Base uint32
	Size uint32
}

// Region maps addresses to sector/page geometry. An external collaborator:
// this package never enumerates target memory itself (§1 Non-goals).
type Region interface {
	SectorInfo(addr uint32) (SectorInfo, bool)
	PageInfo(addr uint32) (PageInfo, bool)
	ErasedByteValue() byte
}

// ActiveSession is the capability set the flash engine drives while a
// flash algorithm is loaded and the target core is under its control.
// Loading/relocating that algorithm, starting/stopping the core and
// register save/restore are external collaborators per §1 — this
// package only ever calls through this interface.
type ActiveSession interface {
	EraseAll() error
	EraseSector(address uint32) error
	ProgramPage(address uint32, data []byte) error
	ReadBlock8(address uint32, size uint32) ([]byte, error)

	LoadPageBuffer(address uint32, data []byte, bufferIndex int) error
	StartProgramPageWithBuffer(bufferIndex int, address uint32) error
	WaitForCompletion() (int, error)

	SupportsChipErase() bool
	SupportsDoubleBuffering() bool
}

// FlasherSession wraps an ActiveSession acquisition/teardown lifecycle:
// each RunErase/RunProgram/RunVerify call enters a scoped acquisition of
// the on-target flash algorithm, invokes the callback with the active
// handle, and guarantees teardown via defer on every exit path, matching
// §4.C/§5's "scoped acquisition" requirement.
type FlasherSession struct {
	Acquire func() (ActiveSession, error)
	Release func(ActiveSession) error
}

// NewFlasherSession builds a FlasherSession from its acquire/release pair.
func NewFlasherSession(acquire func() (ActiveSession, error), release func(ActiveSession) error) *FlasherSession {
	return &FlasherSession{Acquire: acquire, Release: release}
}

func (s *FlasherSession) run(fn func(ActiveSession) error) error {
	active, err := s.Acquire()
	if err != nil {
		return err
	}

	defer func() {
		if releaseErr := s.Release(active); releaseErr != nil {
			logger.Debugf("flasher session teardown failed (ignored): %v", releaseErr)
		}
	}()

	return fn(active)
}

// RunErase acquires the active session and invokes fn for an erase pass.
func (s *FlasherSession) RunErase(fn func(ActiveSession) error) error { return s.run(fn) }

// RunProgram acquires the active session and invokes fn for a program pass.
func (s *FlasherSession) RunProgram(fn func(ActiveSession) error) error { return s.run(fn) }

// RunVerify acquires the active session and invokes fn for a read-back/verify pass.
func (s *FlasherSession) RunVerify(fn func(ActiveSession) error) error { return s.run(fn) }
