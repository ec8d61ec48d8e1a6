package esfs

import (
	"io"

	"github.com/essencefs/esfsutil/blockdev"
)

const (
	indirectionDirect uint8 = 1
	indirectionL1     uint8 = 2
)

// readFile implements read_file (spec §4.5): translate a byte range of a
// file's DATA attribute into either an embedded-bytes copy (DIRECT) or a
// sequence of block-device reads (L1). dev is the volume's device, already
// windowed to this volume's byte range; bsize is the filesystem's block
// size in bytes. hook, if non-nil (propagated by the caller's File or
// Volume, see fs.go), is installed on dev only around the physical reads
// the L1 path issues and cleared immediately after.
func readFile(e *directoryEntry, bsize uint64, dev blockdev.Device, pos int64, out []byte, hook blockdev.ReadHookFunc) (int, error) {
	d, ok := e.dataAttribute()
	if !ok {
		return 0, badFS(errExtentsMissing)
	}
	if uint16(d.dataOffset) > d.size {
		return 0, badFS(errDataOffsetTooBig)
	}

	fileSize := int64(e.fileSize)
	if pos >= fileSize {
		return 0, io.EOF
	}
	length := int64(len(out))
	if pos+length > fileSize {
		length = fileSize - pos
	}
	out = out[:length]

	dataSize := int(d.size) - int(d.dataOffset)

	switch d.indirection {
	case indirectionDirect:
		return readDirect(d, dataSize, pos, out)
	case indirectionL1:
		return readL1(d, dataSize, bsize, dev, pos, out, hook)
	default:
		return 0, badFS(errUnknownRedirect)
	}
}

// readDirect copies embedded file bytes straight out of the attribute
// (spec §4.5.3). The capacity is deliberately max(count, dataSize), not
// min: the source permits reading past the declared byte count when
// count < dataSize (spec §9's DIRECT size ambiguity, preserved as-is).
func readDirect(d *dataAttribute, dataSize int, pos int64, out []byte) (int, error) {
	capacity := int64(d.count)
	if int64(dataSize) > capacity {
		capacity = int64(dataSize)
	}
	if pos > capacity {
		return 0, io.EOF
	}
	length := int64(len(out))
	if length > capacity-pos {
		length = capacity - pos
	}
	if length <= 0 {
		return 0, nil
	}
	start := int(d.dataOffset) + int(pos)
	end := start + int(length)
	if start < 0 || end > len(d.body) {
		return 0, badFS(errDataOffsetTooBig)
	}
	return copy(out[:length], d.body[start:end]), nil
}

// readL1 walks the variable-width extent stream starting at d.dataOffset,
// issuing one block-device read per extent that overlaps [pos, pos+len)
// (spec §4.5.4 / esfs.c's grub_esfs_read_file L1 branch). The bounds check
// on each record compares the record's absolute offset within the
// attribute against dataSize, the size of the region *after* dataOffset —
// this asymmetry is inherited from the source rather than corrected, so a
// tightly packed extent list truncates earlier than the naive reading of
// "room for the record" would suggest.
func readL1(d *dataAttribute, dataSize int, bsize uint64, dev blockdev.Device, pos int64, out []byte, hook blockdev.ReadHookFunc) (int, error) {
	s := newSlab(d.body, int(d.dataOffset))

	var curStart uint64
	var curPos int64
	var alreadyRead int64
	length := int64(len(out))

	for extnum := 0; alreadyRead < length && extnum < int(d.count); extnum++ {
		headerB, ok := s.take(1)
		if !ok {
			return int(alreadyRead), nil
		}
		header := headerB[0]
		startBytes := int((header>>0)&7) + 1
		countBytes := int((header>>3)&7) + 1

		if s.pos+startBytes+countBytes > dataSize {
			return int(alreadyRead), nil
		}

		startFieldB, ok := s.take(startBytes)
		if !ok {
			return int(alreadyRead), nil
		}
		var start uint64
		if startFieldB[0]&0x80 != 0 {
			start = ^uint64(0)
		}
		for _, b := range startFieldB {
			start = (start << 8) | uint64(b)
		}

		countFieldB, ok := s.take(countBytes)
		if !ok {
			return int(alreadyRead), nil
		}
		var count uint64
		for _, b := range countFieldB {
			count = (count << 8) | uint64(b)
		}

		curStart += start // wraps mod 2^64 by Go's unsigned-overflow rules
		countBytesTotal := int64(count) * int64(bsize)

		if curPos+countBytesTotal <= pos {
			curPos += countBytesTotal
			continue
		}

		addOff := int64(0)
		if curPos < pos {
			addOff = pos - curPos
		}
		toRead := length - alreadyRead
		if toRead > countBytesTotal-addOff {
			toRead = countBytesTotal - addOff
		}
		if toRead > 0 {
			physOff := int64(curStart)*int64(bsize) + addOff
			dev.SetReadHook(hook)
			err := blockdev.ReadAtOffset(dev, physOff, out[alreadyRead:alreadyRead+toRead])
			dev.SetReadHook(nil)
			if err != nil {
				return int(alreadyRead), err
			}
			alreadyRead += toRead
		}
		curPos += countBytesTotal
	}

	return int(alreadyRead), nil
}
