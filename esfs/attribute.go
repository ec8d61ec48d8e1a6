package esfs

const (
	attrTypeData     uint16 = 1
	attrTypeFilename uint16 = 2

	attrHeaderSize     = 4  // type u16 + size u16
	filenameHeaderSize = 8  // + length u16 + reserved u16
	dataHeaderSize     = 32 // fixed header before the DIRECT payload / L1 stream
)

// rawAttribute is a located, size-validated attribute record: a slice into
// its owning directoryEntry's raw bytes, not a copy.
type rawAttribute struct {
	typ  uint16
	size uint16
	off  int
}

func (a rawAttribute) bytes(e *directoryEntry) []byte {
	return e.raw[a.off : a.off+int(a.size)]
}

// findAttribute walks the attribute list starting at e.attrOffset looking
// for the first record of type attrID with size >= minSize (spec §4.4 /
// esfs.c's get_direntry_attribute). Any structural violation — bad
// alignment, an undersized or overrunning size field — ends the search
// with "not found" rather than propagating an error: a missing attribute
// and a corrupt one are indistinguishable to the caller.
func (e *directoryEntry) findAttribute(attrID uint16, minSize uint16) (rawAttribute, bool) {
	c := newCursor(e.raw[:])
	off := int(e.attrOffset)

	for off+attrHeaderSize <= direntrySize {
		if off%8 != 0 {
			return rawAttribute{}, false
		}
		typ, ok := c.u16(off)
		if !ok {
			return rawAttribute{}, false
		}
		size, ok := c.u16(off + 2)
		if !ok {
			return rawAttribute{}, false
		}
		if size < attrHeaderSize || off+int(size) > direntrySize {
			return rawAttribute{}, false
		}
		if typ == attrID && size >= minSize {
			return rawAttribute{typ: typ, size: size, off: off}, true
		}
		off += int(size)
	}
	return rawAttribute{}, false
}

// filename returns the decoded UTF-8 filename attribute of e, if present
// and well-formed (spec §4.6: "if missing or internally malformed, skips").
func (e *directoryEntry) filename() (string, bool) {
	a, ok := e.findAttribute(attrTypeFilename, filenameHeaderSize)
	if !ok {
		return "", false
	}
	body := a.bytes(e)
	c := newCursor(body)
	length, ok := c.u16(4)
	if !ok {
		return "", false
	}
	name, ok := c.bytes(filenameHeaderSize, int(length))
	if !ok {
		return "", false
	}
	return string(name), true
}

// dataAttribute is the decoded fixed header of a DATA attribute (spec §3
// "Attribute"); indirection selects how the payload following the header
// is interpreted (see extent.go).
type dataAttribute struct {
	indirection uint8
	dataOffset  uint8
	count       uint16
	size        uint16
	body        []byte // full attribute record, header at offset 0
}

func (e *directoryEntry) dataAttribute() (*dataAttribute, bool) {
	a, ok := e.findAttribute(attrTypeData, dataHeaderSize)
	if !ok {
		return nil, false
	}
	body := a.bytes(e)
	c := newCursor(body)
	indirection, ok := c.u8(4)
	if !ok {
		return nil, false
	}
	dataOffset, ok := c.u8(5)
	if !ok {
		return nil, false
	}
	count, ok := c.u16(6)
	if !ok {
		return nil, false
	}
	return &dataAttribute{
		indirection: indirection,
		dataOffset:  dataOffset,
		count:       count,
		size:        a.size,
		body:        body,
	}, true
}
