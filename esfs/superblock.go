package esfs

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	superblockSector = 16 // superblock lives at byte offset 16*512 = 8192
	superblockSize   = 8192

	esfsSignature = "!EssenceFS2-----"

	maxReadVersion = 10

	// blockSizeCeilingMask matches esfs.c's literal bit test:
	// data->sblock.blockSize & ~0xffffe00 must be zero. That accepts any
	// blockSize that is a multiple of 512 and fits in 28 bits, i.e. below
	// (0xffffe00 + 0x200) = 0x10000000 = 256 MiB... but esfs.c further
	// relies on blockSize>>9 fitting comfortably in the sector arithmetic
	// it does in grub_esfs_read_file. The spec (see §9 Open Questions)
	// calls the practical ceiling ~16 MiB; we enforce both: the exact
	// bitmask from the source, plus a documented sanity ceiling.
	blockSizeCeilingMask = ^uint64(0xFFFFE00)
	blockSizeCeiling     = 16 << 20 // 16 MiB, see spec §9
)

// direntryRef mirrors struct grub_esfs_direntry_ref: a pointer to a
// directory entry on disk, expressed in filesystem blocks plus a
// byte offset within that block.
type direntryRef struct {
	block          uint64
	offsetIntoBlock uint32
}

func parseDirentryRef(c cursor, off int) (direntryRef, bool) {
	block, ok := c.u64(off)
	if !ok {
		return direntryRef{}, false
	}
	offsetIntoBlock, ok := c.u32(off + 8)
	if !ok {
		return direntryRef{}, false
	}
	return direntryRef{block: block, offsetIntoBlock: offsetIntoBlock}, true
}

// Superblock holds the validated, decoded fields of an ESFS superblock
// (spec §3). Fields the read path never consults (group-layout
// parameters, blocksUsed, mounted, checksum) are kept only where a
// complete implementation of the format would expose them (spec §10).
type Superblock struct {
	VolumeName string

	RequiredReadVersion  uint16
	RequiredWriteVersion uint16

	BlockSize   uint64
	BlockCount  uint64
	BlocksUsed  uint64

	BlocksPerGroup            uint32
	GroupCount                uint64
	BlocksPerGroupBlockBitmap uint64
	GDTFirstBlock             uint64
	DirectoryEntriesPerBlock  uint64

	Identifier      uuid.UUID
	OSInstallation  uuid.UUID
	NextIdentifier  uuid.UUID

	kernel direntryRef
	root   direntryRef
}

// parseSuperblock validates and decodes an 8192-byte superblock buffer.
// It performs the checks esfs.c's grub_esfs_mount performs before trusting
// blockSize for further I/O (signature, requiredReadVersion, blockSize
// non-zero, a multiple of 512 and within the bitmask, blockCount non-zero),
// plus the 16 MiB blockSizeCeiling, which the source does not have. Any
// failure invalidates the image and fails uniformly with
// BadFS("not an esfs filesystem").
func parseSuperblock(buf []byte) (*Superblock, error) {
	if len(buf) != superblockSize {
		return nil, badFS(errNotESFS)
	}
	c := newCursor(buf)

	sig, ok := c.bytes(0, 16)
	if !ok || string(sig) != esfsSignature {
		return nil, badFS(errNotESFS)
	}

	nameBytes, ok := c.bytes(16, 32)
	if !ok {
		return nil, badFS(errNotESFS)
	}

	readVer, ok := c.u16(48)
	if !ok {
		return nil, badFS(errNotESFS)
	}
	if readVer > maxReadVersion {
		return nil, badFS(errNotESFS)
	}
	writeVer, ok := c.u16(50)
	if !ok {
		return nil, badFS(errNotESFS)
	}

	blockSize, ok := c.u64(64)
	if !ok {
		return nil, badFS(errNotESFS)
	}
	if blockSize == 0 || blockSize%512 != 0 || blockSize&blockSizeCeilingMask != 0 || blockSize > blockSizeCeiling {
		return nil, badFS(errNotESFS)
	}

	blockCount, ok := c.u64(72)
	if !ok || blockCount == 0 {
		return nil, badFS(errNotESFS)
	}
	blocksUsed, ok := c.u64(80)
	if !ok {
		return nil, badFS(errNotESFS)
	}

	blocksPerGroup, ok := c.u32(88)
	if !ok {
		return nil, badFS(errNotESFS)
	}
	groupCount, ok := c.u64(96)
	if !ok {
		return nil, badFS(errNotESFS)
	}
	bitmapBlocks, ok := c.u64(104)
	if !ok {
		return nil, badFS(errNotESFS)
	}
	gdtFirstBlock, ok := c.u64(112)
	if !ok {
		return nil, badFS(errNotESFS)
	}
	dirEntriesPerBlock, ok := c.u64(120)
	if !ok {
		return nil, badFS(errNotESFS)
	}

	identBytes, ok := c.bytes(136, 16)
	if !ok {
		return nil, badFS(errNotESFS)
	}
	osInstBytes, ok := c.bytes(152, 16)
	if !ok {
		return nil, badFS(errNotESFS)
	}
	nextIDBytes, ok := c.bytes(168, 16)
	if !ok {
		return nil, badFS(errNotESFS)
	}

	kernel, ok := parseDirentryRef(c, 184)
	if !ok {
		return nil, badFS(errNotESFS)
	}
	root, ok := parseDirentryRef(c, 200)
	if !ok {
		return nil, badFS(errNotESFS)
	}

	var ident, osInst, nextID uuid.UUID
	copy(ident[:], identBytes)
	copy(osInst[:], osInstBytes)
	copy(nextID[:], nextIDBytes)

	return &Superblock{
		VolumeName:                string(nameBytes),
		RequiredReadVersion:       readVer,
		RequiredWriteVersion:      writeVer,
		BlockSize:                 blockSize,
		BlockCount:                blockCount,
		BlocksUsed:                blocksUsed,
		BlocksPerGroup:            blocksPerGroup,
		GroupCount:                groupCount,
		BlocksPerGroupBlockBitmap: bitmapBlocks,
		GDTFirstBlock:             gdtFirstBlock,
		DirectoryEntriesPerBlock:  dirEntriesPerBlock,
		Identifier:                ident,
		OSInstallation:            osInst,
		NextIdentifier:            nextID,
		kernel:                    kernel,
		root:                      root,
	}, nil
}

// Label returns the volume name, truncated at its fixed 32-byte field
// (spec §4.7). The name ends at the first NUL byte, if any, but the field
// is not required to be NUL-terminated: it is UTF-8 up to the full 32 bytes.
func (s *Superblock) Label() string {
	name := s.VolumeName
	for i, r := range name {
		if r == 0 {
			return name[:i]
		}
	}
	return name
}

// UUID formats the volume identifier as 32 lowercase hex digits with no
// hyphens, exactly as grub_esfs_uuid's %02x loop does — not the canonical
// 8-4-4-4-12 uuid.UUID.String() form.
func (s *Superblock) UUID() string {
	return fmt.Sprintf("%x", [16]byte(s.Identifier))
}
