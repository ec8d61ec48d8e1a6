package esfs

import (
	"time"

	"github.com/google/uuid"
)

const (
	direntrySize       = 1024
	direntrySignature  = "DirEntry"
	attributeOffsetMin = 96
	attributeOffsetMax = direntrySize - 4
)

// NodeType is DirectoryEntry.nodeType (spec §3).
type NodeType uint8

const (
	NodeTypeFile      NodeType = 1
	NodeTypeDirectory NodeType = 2
)

func (t NodeType) String() string {
	switch t {
	case NodeTypeFile:
		return "file"
	case NodeTypeDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// directoryEntry is the fully decoded 1024-byte on-disk record (spec §3).
// It is copied into a Node by value, the way esfs.c copies
// struct grub_esfs_direntry into struct grub_fshelp_node — no lifetime
// question about pointers into the raw buffer survives past parsing.
type directoryEntry struct {
	identifier   uuid.UUID
	attrOffset   uint16
	nodeType     NodeType
	attrCount    uint8
	creationTime uint64
	accessTime   uint64
	modTime      uint64
	fileSize     uint64
	parent       uuid.UUID
	contentType  uuid.UUID

	raw [direntrySize]byte // full entry, attributes are read from here
}

// parseDirentry validates and decodes a 1024-byte raw directory entry
// (spec §4.3 / esfs_check_direntry + the fields esfs.c trusts before
// further validation). Only the signature and attributeOffset are
// checked here; everything else is exposed as-is, validated by whichever
// operation later depends on it (attribute lookup, extent decode).
func parseDirentry(buf []byte) (*directoryEntry, error) {
	if len(buf) != direntrySize {
		return nil, badFS(errBadDirSignature)
	}
	c := newCursor(buf)

	sig, ok := c.bytes(0, 8)
	if !ok || string(sig) != direntrySignature {
		return nil, badFS(errBadDirSignature)
	}

	identBytes, _ := c.bytes(8, 16)
	attrOffset, ok := c.u16(28)
	if !ok {
		return nil, badFS(errBadDirSignature)
	}
	if attrOffset < attributeOffsetMin || int(attrOffset) > attributeOffsetMax || attrOffset%8 != 0 {
		return nil, badFS(errBadDirSignature)
	}

	nodeType, _ := c.u8(30)
	attrCount, _ := c.u8(31)
	creationTime, _ := c.u64(32)
	accessTime, _ := c.u64(40)
	modTime, _ := c.u64(48)
	fileSize, _ := c.u64(56)
	parentBytes, _ := c.bytes(64, 16)
	contentTypeBytes, _ := c.bytes(80, 16)

	e := &directoryEntry{
		attrOffset:   attrOffset,
		nodeType:     NodeType(nodeType),
		attrCount:    attrCount,
		creationTime: creationTime,
		accessTime:   accessTime,
		modTime:      modTime,
		fileSize:     fileSize,
	}
	copy(e.identifier[:], identBytes)
	copy(e.parent[:], parentBytes)
	copy(e.contentType[:], contentTypeBytes)
	copy(e.raw[:], buf)

	return e, nil
}

// esfsTime converts an on-disk timestamp (microseconds since the Unix
// epoch, spec §3) to time.Time. A zero timestamp maps to the zero Time,
// matching how absent/never-set times read as "no time" rather than
// 1970-01-01 in listings.
func esfsTime(us uint64) time.Time {
	if us == 0 {
		return time.Time{}
	}
	return time.UnixMicro(int64(us)).UTC()
}
