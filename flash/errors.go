// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package flash

import "fmt"

// BuilderErrorKind enumerates the ways the flash builder's own invariants
// can be violated, distinct from the AddressNotInRegion / DoubleBuffer
// failures which carry their own richer error types.
type BuilderErrorKind int

const (
	ErrDuplicateAddress BuilderErrorKind = iota
	ErrOverlap
	ErrPageSizeMismatch
	ErrSectorCapacityOverflow
)

// BuilderError reports a violated FlashBuilder invariant: duplicate or
// overlapping write ranges, a page whose size disagrees with its sector,
// or a sector that has run out of page capacity.
type BuilderError struct {
	Kind   BuilderErrorKind
	Detail string
}

func (e *BuilderError) Error() string {
	switch e.Kind {
	case ErrDuplicateAddress:
		return "flash builder: duplicate write address" + detailSuffix(e.Detail)
	case ErrOverlap:
		return "flash builder: overlapping write ranges" + detailSuffix(e.Detail)
	case ErrPageSizeMismatch:
		return "flash builder: page size does not match sector page size" + detailSuffix(e.Detail)
	case ErrSectorCapacityOverflow:
		return "flash builder: sector has no room for another page" + detailSuffix(e.Detail)
	default:
		return "flash builder: invariant violated" + detailSuffix(e.Detail)
	}
}

func detailSuffix(detail string) string {
	if detail == "" {
		return ""
	}
	return ": " + detail
}

func newBuilderError(kind BuilderErrorKind, detail string) error {
	return &BuilderError{Kind: kind, Detail: detail}
}

// AddressNotInRegionError is returned when the layout algorithm asks the
// Region for geometry at an address the region does not cover.
type AddressNotInRegionError struct {
	Address uint32
	Region  Region
}

func (e *AddressNotInRegionError) Error() string {
	return fmt.Sprintf("flash builder: address 0x%08x is not covered by any flash region", e.Address)
}

// DoubleBufferError is returned when a target's double-buffered program
// loop reports a non-zero completion code from wait_for_completion.
type DoubleBufferError struct {
	Code int
}

func (e *DoubleBufferError) Error() string {
	return fmt.Sprintf("flash builder: double-buffer completion failed with code %d", e.Code)
}
