// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package flash

import (
	"bytes"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("FlashBuilder", func() {
	var (
		region  *StaticRegion
		session *fakeSession
	)

	BeforeEach(func() {
		region = NewStaticRegion(0x08000000, 4096, 1024, 256, 0xFF)
		session = newFakeSession(0x08000000, 4096, 0xFF)
	})

	Describe("queuing writes", func() {
		It("rejects an overlapping write and leaves the queue untouched", func() {
			b := NewFlashBuilder(false)
			Expect(b.AddData(0x08000000, bytes.Repeat([]byte{1}, 32))).To(Succeed())

			before := append([]FlashWriteData(nil), b.writes...)

			err := b.AddData(0x08000010, []byte{2})
			Expect(err).To(HaveOccurred())

			var berr *BuilderError
			Expect(err).To(BeAssignableToTypeOf(berr))
			Expect(err.(*BuilderError).Kind).To(Equal(ErrOverlap))

			Expect(b.writes).To(Equal(before))
			Expect(b.BufferedSize()).To(Equal(32))
		})

		It("rejects a duplicate address and leaves the queue untouched", func() {
			b := NewFlashBuilder(false)
			Expect(b.AddData(0x08000000, []byte{1, 2, 3})).To(Succeed())

			before := append([]FlashWriteData(nil), b.writes...)

			err := b.AddData(0x08000000, []byte{9})
			Expect(err).To(HaveOccurred())
			Expect(err.(*BuilderError).Kind).To(Equal(ErrDuplicateAddress))
			Expect(b.writes).To(Equal(before))
		})
	})

	Describe("programming a single short page (S1)", func() {
		It("erases the covering sector and programs one full-size page", func() {
			b := NewFlashBuilder(false)
			Expect(b.AddData(0x08000000, []byte{0xDE, 0xAD, 0xBE, 0xEF})).To(Succeed())

			Expect(b.Program(session, region, false, false)).To(Succeed())

			Expect(session.programmedPages).To(HaveLen(1))
			page := session.programmedPages[0]
			Expect(page.Data).To(HaveLen(256))
			Expect(page.Data[:4]).To(Equal([]byte{0xDE, 0xAD, 0xBE, 0xEF}))
			Expect(page.Data[4:]).To(Equal(bytes.Repeat([]byte{0xFF}, 252)))
			Expect(session.erasedSectors).To(Equal([]uint32{0x08000000}))
		})
	})

	Describe("a write crossing a sector boundary (S2)", func() {
		It("produces one page per sector and erases both sectors", func() {
			b := NewFlashBuilder(false)
			Expect(b.AddData(0x080003F8, bytes.Repeat([]byte{0xAB}, 16))).To(Succeed())

			Expect(b.Program(session, region, false, false)).To(Succeed())

			Expect(session.programmedPages).To(HaveLen(2))
			Expect(session.programmedPages[0].Address).To(Equal(uint32(0x08000300)))
			Expect(session.programmedPages[1].Address).To(Equal(uint32(0x08000400)))
			Expect(session.erasedSectors).To(ConsistOf(uint32(0x08000000), uint32(0x08000400)))
		})

		It("fills the trailing gap of the second page with the erased value", func() {
			b := NewFlashBuilder(false)
			Expect(b.AddData(0x080003F8, bytes.Repeat([]byte{0xAB}, 16))).To(Succeed())
			Expect(b.Program(session, region, false, false)).To(Succeed())

			second := session.programmedPages[1]
			Expect(second.Data[:8]).To(Equal(bytes.Repeat([]byte{0xAB}, 8)))
			Expect(second.Data[8:]).To(Equal(bytes.Repeat([]byte{0xFF}, 256-8)))
		})
	})

	Describe("restore_unwritten_bytes (S3)", func() {
		It("reads surrounding device content instead of the erased value", func() {
			copy(session.memory, bytes.Repeat([]byte{0x77}, len(session.memory)))

			b := NewFlashBuilder(false)
			Expect(b.AddData(0x08000010, []byte{0x01})).To(Succeed())

			Expect(b.Program(session, region, false, true)).To(Succeed())

			page := session.programmedPages[0]
			Expect(page.Data[:0x10]).To(Equal(bytes.Repeat([]byte{0x77}, 0x10)))
			Expect(page.Data[0x10]).To(Equal(byte(0x01)))
			Expect(page.Data[0x11:]).To(Equal(bytes.Repeat([]byte{0x77}, 256-0x11)))
		})
	})

	Describe("chip-erase capability downgrade (S4)", func() {
		It("falls back to per-sector erase without failing the program pass", func() {
			session.chipErase = false

			b := NewFlashBuilder(false)
			Expect(b.AddData(0x08000000, []byte{0x01})).To(Succeed())

			Expect(b.Program(session, region, true, false)).To(Succeed())

			Expect(session.eraseAllCalls).To(Equal(0))
			Expect(session.erasedSectors).To(Equal([]uint32{0x08000000}))
		})

		It("uses chip erase directly when the target supports it", func() {
			session.chipErase = true

			b := NewFlashBuilder(false)
			Expect(b.AddData(0x08000000, []byte{0x01})).To(Succeed())

			Expect(b.Program(session, region, true, false)).To(Succeed())

			Expect(session.eraseAllCalls).To(Equal(1))
			Expect(session.erasedSectors).To(BeEmpty())
		})
	})

	Describe("overlap rejection at AddData (S5)", func() {
		It("never reaches Program when AddData already refused the second write", func() {
			b := NewFlashBuilder(false)
			Expect(b.AddData(0x08000000, bytes.Repeat([]byte{1}, 64))).To(Succeed())
			Expect(b.AddData(0x08000020, []byte{2})).NotTo(Succeed())

			Expect(b.Program(session, region, false, false)).To(Succeed())
			Expect(session.programmedPages).To(HaveLen(1))
			Expect(session.programmedPages[0].Data[:64]).To(Equal(bytes.Repeat([]byte{1}, 64)))
		})
	})

	Describe("sector capacity", func() {
		It("rejects a page whose size does not match the sector's page size", func() {
			sector := newFlashSector(0x08000000, 1024, 256)
			err := sector.addPage(newFlashPage(0x08000000, 128))
			Expect(err).To(HaveOccurred())
			Expect(err.(*BuilderError).Kind).To(Equal(ErrPageSizeMismatch))
		})

		It("rejects a page once the sector's page capacity is exhausted", func() {
			sector := newFlashSector(0x08000000, 512, 256)
			Expect(sector.addPage(newFlashPage(0x08000000, 256))).To(Succeed())
			Expect(sector.addPage(newFlashPage(0x08000100, 256))).To(Succeed())

			err := sector.addPage(newFlashPage(0x08000200, 256))
			Expect(err).To(HaveOccurred())
			Expect(err.(*BuilderError).Kind).To(Equal(ErrSectorCapacityOverflow))
		})
	})
})
