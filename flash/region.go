// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package flash

import "sort"

// staticSector is one entry in a StaticRegion's sorted sector table.
type staticSector struct {
	base     uint32
	size     uint32
	pageSize uint32
}

// StaticRegion is a reference Region implementation driven by a fixed,
// sorted list of sector descriptors — standing in for the "target memory
// region enumeration" external collaborator (§1 Non-goals) so this
// package's own tests and the cmd/flashtool example have something
// concrete to program against without a live target.
type StaticRegion struct {
	sectors []staticSector
	erased  byte
}

// NewStaticRegion builds a StaticRegion covering [base, base+size) as a
// run of equally-sized sectors, each divided into equally-sized pages.
func NewStaticRegion(base uint32, size uint32, sectorSize uint32, pageSize uint32, erasedByteValue byte) *StaticRegion {
	r := &StaticRegion{erased: erasedByteValue}

	for addr := base; addr < base+size; addr += sectorSize {
		r.sectors = append(r.sectors, staticSector{base: addr, size: sectorSize, pageSize: pageSize})
	}

	return r
}

func (r *StaticRegion) find(addr uint32) (staticSector, bool) {
	i := sort.Search(len(r.sectors), func(i int) bool {
		return r.sectors[i].base+r.sectors[i].size > addr
	})
	if i == len(r.sectors) || addr < r.sectors[i].base {
		return staticSector{}, false
	}
	return r.sectors[i], true
}

func (r *StaticRegion) SectorInfo(addr uint32) (SectorInfo, bool) {
	s, ok := r.find(addr)
	if !ok {
		return SectorInfo{}, false
	}
	return SectorInfo{Base: s.base, Size: s.size, PageSize: s.pageSize}, true
}

func (r *StaticRegion) PageInfo(addr uint32) (PageInfo, bool) {
	s, ok := r.find(addr)
	if !ok {
		return PageInfo{}, false
	}
	pageBase := s.base + ((addr - s.base) / s.pageSize) * s.pageSize
	return PageInfo{Base: pageBase, Size: s.pageSize}, true
}

func (r *StaticRegion) ErasedByteValue() byte {
	return r.erased
}
