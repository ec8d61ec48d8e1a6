package esfs

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// This file builds synthetic ESFS images byte-by-byte for the tests in
// this package, the same way testdata/mkdisk.go assembles synthetic disk
// images for the teacher's tests — except there's no mkfs.esfs to shell
// out to, so every field is packed by hand.

const testBlockSize = 4096

type imageBuilder struct {
	buf []byte
}

func newImageBuilder(blocks int) *imageBuilder {
	return &imageBuilder{buf: make([]byte, blocks*testBlockSize)}
}

func (b *imageBuilder) putAt(off int64, p []byte) {
	need := int(off) + len(p)
	if len(b.buf) < need {
		grown := make([]byte, need)
		copy(grown, b.buf)
		b.buf = grown
	}
	copy(b.buf[off:], p)
}

func (b *imageBuilder) blockOffset(block uint64) int64 { return int64(block) * testBlockSize }

func le16(v uint16) []byte { p := make([]byte, 2); binary.LittleEndian.PutUint16(p, v); return p }
func le32(v uint32) []byte { p := make([]byte, 4); binary.LittleEndian.PutUint32(p, v); return p }
func le64(v uint64) []byte { p := make([]byte, 8); binary.LittleEndian.PutUint64(p, v); return p }

type sbSpec struct {
	volumeName     string
	readVersion    uint16
	blockSize      uint64
	blockCount     uint64
	identifier     uuid.UUID
	osInstallation uuid.UUID
	kernel         direntryRef
	root           direntryRef
}

func (b *imageBuilder) writeSuperblock(s sbSpec) {
	buf := make([]byte, superblockSize)
	copy(buf[0:16], esfsSignature)
	copy(buf[16:48], s.volumeName)
	copy(buf[48:50], le16(s.readVersion))
	copy(buf[50:52], le16(1)) // requiredWriteVersion, unused by the read path
	copy(buf[64:72], le64(s.blockSize))
	copy(buf[72:80], le64(s.blockCount))
	copy(buf[80:88], le64(0)) // blocksUsed
	copy(buf[88:92], le32(1))
	copy(buf[96:104], le64(1))
	copy(buf[104:112], le64(0))
	copy(buf[112:120], le64(0))
	copy(buf[120:128], le64(0))
	copy(buf[136:152], s.identifier[:])
	copy(buf[152:168], s.osInstallation[:])
	copy(buf[168:184], s.identifier[:]) // nextIdentifier, unused by tests
	copy(buf[184:192], le64(s.kernel.block))
	copy(buf[192:196], le32(s.kernel.offsetIntoBlock))
	copy(buf[200:208], le64(s.root.block))
	copy(buf[208:212], le32(s.root.offsetIntoBlock))
	b.putAt(superblockSector*512, buf)
}

type direntrySpec struct {
	identifier  uuid.UUID
	nodeType    NodeType
	fileSize    uint64
	parent      uuid.UUID
	contentType uuid.UUID
	attributes  []byte // pre-packed TLV list, placed starting at offset 96
	badSig      bool   // corrupt the signature, for skip-on-scan tests
}

func encodeDirentry(s direntrySpec) []byte {
	buf := make([]byte, direntrySize)
	if s.badSig {
		copy(buf[0:8], "XXXXXXXX")
	} else {
		copy(buf[0:8], direntrySignature)
	}
	copy(buf[8:24], s.identifier[:])
	binary.LittleEndian.PutUint16(buf[28:30], attributeOffsetMin)
	buf[30] = byte(s.nodeType)
	buf[31] = 0
	binary.LittleEndian.PutUint64(buf[56:64], s.fileSize)
	copy(buf[64:80], s.parent[:])
	copy(buf[80:96], s.contentType[:])
	copy(buf[96:96+len(s.attributes)], s.attributes)
	return buf
}

// packFilenameAttribute packs a FILENAME attribute, 8-byte aligned.
func packFilenameAttribute(name string) []byte {
	total := align8(filenameHeaderSize + len(name))
	buf := make([]byte, total)
	binary.LittleEndian.PutUint16(buf[0:2], attrTypeFilename)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(total))
	binary.LittleEndian.PutUint16(buf[4:6], uint16(len(name)))
	copy(buf[filenameHeaderSize:], name)
	return buf
}

// packDataAttributeDirect packs a DATA attribute with embedded bytes.
// totalSize becomes the attribute's size field; the tests pass the 8-byte
// aligned minimum for header plus data (spec §9's DIRECT capacity ambiguity
// only bites when size outgrows the embedded byte count).
func packDataAttributeDirect(data []byte, totalSize int) []byte {
	buf := make([]byte, totalSize)
	binary.LittleEndian.PutUint16(buf[0:2], attrTypeData)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(totalSize))
	buf[4] = indirectionDirect
	buf[5] = dataHeaderSize
	binary.LittleEndian.PutUint16(buf[6:8], uint16(len(data)))
	copy(buf[dataHeaderSize:], data)
	return buf
}

type extentSpec struct {
	delta int64 // signed delta from the previous extent's curStart, small & positive in these tests
	count uint8 // blocks, small & positive
}

// packDataAttributeL1 packs a DATA attribute holding an L1 extent list.
// totalSize is padded well beyond the encoded extent bytes: the source's
// bounds check on each record compares an absolute stream position
// against size-dataOffset, so a tightly-sized attribute would truncate
// the very first extent (see extent.go's readL1 doc comment).
func packDataAttributeL1(extents []extentSpec, totalSize int) []byte {
	var stream []byte
	for _, e := range extents {
		// One byte each for start and count: header selects width 1 for both.
		header := byte(0)
		stream = append(stream, header, byte(e.delta), e.count)
	}
	buf := make([]byte, totalSize)
	binary.LittleEndian.PutUint16(buf[0:2], attrTypeData)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(totalSize))
	buf[4] = indirectionL1
	buf[5] = dataHeaderSize
	binary.LittleEndian.PutUint16(buf[6:8], uint16(len(extents)))
	copy(buf[dataHeaderSize:], stream)
	return buf
}

func align8(n int) int { return (n + 7) &^ 7 }

// writeDirentryAt writes a directory entry at the given block/offset.
func (b *imageBuilder) writeDirentryAt(block uint64, offsetIntoBlock uint32, entry []byte) {
	b.putAt(b.blockOffset(block)+int64(offsetIntoBlock), entry)
}
