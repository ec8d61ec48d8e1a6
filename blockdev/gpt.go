package blockdev

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"github.com/google/uuid"
)

const (
	gptHeaderLBA  = 1
	gptSignature  = "EFI PART"
	minEntrySize  = 128
	gptNameOffset = 56
	gptNameBytes  = 72 // 36 UTF-16LE code units
)

// Partition describes one GPT partition table entry, windowed into a
// Device a caller can mount a filesystem against directly (spec §3:
// "Volumes may be a partition window; offsets in the superblock are
// volume-relative").
type Partition struct {
	Index    int
	Name     string
	TypeGUID uuid.UUID
	UniqueID uuid.UUID
	StartLBA uint64
	SizeLBA  uint64
}

// Window opens a Window over dev spanning exactly this partition.
func (p Partition) Window(dev Device) (*Window, error) {
	return NewWindow(dev, int64(p.StartLBA)*SectorSize, int64(p.SizeLBA)*SectorSize)
}

// ListGPTPartitions reads a GUID Partition Table from dev and returns its
// non-empty entries (spec §10, supplemented: a bootloader locating ESFS
// inside a GPT disk needs this before it ever calls esfs.Mount).
func ListGPTPartitions(dev Device) ([]Partition, error) {
	header := make([]byte, SectorSize)
	if err := ReadAtOffset(dev, gptHeaderLBA*SectorSize, header); err != nil {
		return nil, fmt.Errorf("blockdev: reading GPT header: %w", err)
	}
	if string(header[0:8]) != gptSignature {
		return nil, fmt.Errorf("blockdev: not a GPT disk")
	}

	entryLBA := binary.LittleEndian.Uint64(header[72:80])
	numEntries := binary.LittleEndian.Uint32(header[80:84])
	entrySize := binary.LittleEndian.Uint32(header[84:88])
	if entrySize < minEntrySize {
		return nil, fmt.Errorf("blockdev: implausible GPT partition entry size %d", entrySize)
	}

	var out []Partition
	entryOff := int64(entryLBA) * SectorSize
	for i := uint32(0); i < numEntries; i++ {
		entry := make([]byte, entrySize)
		if err := ReadAtOffset(dev, entryOff+int64(i)*int64(entrySize), entry); err != nil {
			break
		}

		var typeGUID [16]byte
		copy(typeGUID[:], entry[0:16])
		if typeGUID == ([16]byte{}) {
			continue
		}
		var uniqueGUID [16]byte
		copy(uniqueGUID[:], entry[16:32])

		startLBA := binary.LittleEndian.Uint64(entry[32:40])
		endLBA := binary.LittleEndian.Uint64(entry[40:48])

		out = append(out, Partition{
			Index:    len(out),
			Name:     decodeUTF16LE(entry[gptNameOffset : gptNameOffset+gptNameBytes]),
			TypeGUID: mixedEndianGUID(typeGUID),
			UniqueID: mixedEndianGUID(uniqueGUID),
			StartLBA: startLBA,
			SizeLBA:  endLBA - startLBA + 1,
		})
	}
	return out, nil
}

// mixedEndianGUID reinterprets a GPT's mixed-endian on-disk GUID (first
// three fields little-endian, last two big-endian) as a standard RFC 4122
// uuid.UUID so callers get one consistent GUID type across the module.
func mixedEndianGUID(raw [16]byte) uuid.UUID {
	var u uuid.UUID
	u[0], u[1], u[2], u[3] = raw[3], raw[2], raw[1], raw[0]
	u[4], u[5] = raw[5], raw[4]
	u[6], u[7] = raw[7], raw[6]
	copy(u[8:], raw[8:])
	return u
}

func decodeUTF16LE(data []byte) string {
	if len(data)%2 != 0 {
		data = data[:len(data)-1]
	}
	u16s := make([]uint16, len(data)/2)
	for i := range u16s {
		u16s[i] = binary.LittleEndian.Uint16(data[i*2 : i*2+2])
	}
	for i, v := range u16s {
		if v == 0 {
			u16s = u16s[:i]
			break
		}
	}
	return string(utf16.Decode(u16s))
}
