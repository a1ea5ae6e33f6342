// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see

// https://sourceforge.net/p/openocd/code

package gostlink

// StmCpuInfo describes the RAM and flash geometry of one target part,
// enough for cmd/flashtool's -device flag to build a flash.Region without
// needing a live target query.
type StmCpuInfo struct {
	RamStart uint64
	RamSize  uint64

	FlashStart     uint64
	FlashSize      uint64
	FlashPageSize  uint64
	FlashSectorLen uint64 // pages per sector
}

var supportedStmCpus = map[string]StmCpuInfo{
	"STM32F030F4": {0x20000000, 0x1000, 0x08000000, 0x4000, 0x400, 4},
	"STM32F030K6": {0x20000000, 0x1000, 0x08000000, 0x8000, 0x400, 4},
	"STM32F030C6": {0x20000000, 0x1000, 0x08000000, 0x8000, 0x400, 4},
	"STM32F030C8": {0x20000000, 0x2000, 0x08000000, 0x10000, 0x400, 4},
	"STM32F030R8": {0x20000000, 0x2000, 0x08000000, 0x10000, 0x400, 4},
	"STM32F030CC": {0x20000000, 0x8000, 0x08000000, 0x40000, 0x800, 4},
	"STM32F030RC": {0x20000000, 0x8000, 0x08000000, 0x40000, 0x800, 4},
	"STM32F070F6": {0x20000000, 0x2000, 0x08000000, 0x8000, 0x800, 4},
	"STM32F070C6": {0x20000000, 0x2000, 0x08000000, 0x8000, 0x800, 4},
	"STM32F070CB": {0x20000000, 0x4000, 0x08000000, 0x20000, 0x800, 4},
	"STM32F070RB": {0x20000000, 0x4000, 0x08000000, 0x20000, 0x800, 4},
}

// GetCpuInformation looks up a target part's known RAM/flash geometry by
// its STM32 part number, or returns nil for an unrecognized part.
func GetCpuInformation(cpuID string) *StmCpuInfo {
	if val, ok := supportedStmCpus[cpuID]; ok {
		return &val
	}
	return nil
}
