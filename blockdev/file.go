package blockdev

import (
	"fmt"
	"io"
)

// FileDevice exposes an io.ReaderAt (typically an *os.File holding a raw
// disk image) as a 512-byte-sector Device.
type FileDevice struct {
	r    io.ReaderAt
	size int64
	hook ReadHookFunc
}

// NewFileDevice wraps r, which must contain size bytes.
func NewFileDevice(r io.ReaderAt, size int64) *FileDevice {
	return &FileDevice{r: r, size: size}
}

func (d *FileDevice) Size() int64 { return d.size }

func (d *FileDevice) SetReadHook(hook ReadHookFunc) { d.hook = hook }

func (d *FileDevice) ReadAt(sector uint64, offsetInSector uint32, p []byte) error {
	off := int64(sector)*SectorSize + int64(offsetInSector)
	if off < 0 || off > d.size || int64(len(p)) > d.size-off {
		return fmt.Errorf("blockdev: read [%d,%d) out of range (size %d): %w", off, off+int64(len(p)), d.size, ErrOutOfRange)
	}

	n, err := d.r.ReadAt(p, off)
	if err != nil && !(err == io.EOF && n == len(p)) {
		return fmt.Errorf("blockdev: reading at %d: %w", off, err)
	}

	if d.hook != nil {
		d.hook(off, len(p))
	}
	return nil
}
