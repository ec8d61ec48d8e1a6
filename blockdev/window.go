package blockdev

import "fmt"

// Window is a Device that offsets and bounds-checks reads against a larger
// backing Device, the way a partition is a byte-range view onto a whole
// disk (spec §3: "Volumes may be a partition window; offsets in the
// superblock are volume-relative"). startByte must be sector-aligned.
type Window struct {
	base       Device
	startByte  int64
	size       int64
	hook       ReadHookFunc
}

// NewWindow creates a Window over base spanning [startByte, startByte+size).
func NewWindow(base Device, startByte, size int64) (*Window, error) {
	if startByte%SectorSize != 0 {
		return nil, fmt.Errorf("blockdev: window start %d is not sector-aligned", startByte)
	}
	if startByte < 0 || size < 0 || startByte+size > base.Size() {
		return nil, fmt.Errorf("blockdev: window [%d,%d) exceeds base device size %d", startByte, startByte+size, base.Size())
	}
	return &Window{base: base, startByte: startByte, size: size}, nil
}

func (w *Window) Size() int64 { return w.size }

func (w *Window) SetReadHook(hook ReadHookFunc) { w.hook = hook }

func (w *Window) ReadAt(sector uint64, offsetInSector uint32, p []byte) error {
	off := int64(sector)*SectorSize + int64(offsetInSector)
	if off < 0 || off > w.size || int64(len(p)) > w.size-off {
		return fmt.Errorf("blockdev: window read [%d,%d) out of range (size %d): %w", off, off+int64(len(p)), w.size, ErrOutOfRange)
	}

	absolute := w.startByte + off
	if err := ReadAtOffset(w.base, absolute, p); err != nil {
		return err
	}
	if w.hook != nil {
		w.hook(off, len(p))
	}
	return nil
}
