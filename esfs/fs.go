package esfs

import (
	"errors"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/essencefs/esfsutil/blockdev"
	"github.com/essencefs/esfsutil/pathwalk"
)

// Volume is a mounted ESFS filesystem. It holds the decoded superblock and
// the root directory entry; everything else is resolved on demand by
// reading through dev, never cached across calls (spec §5: "operations
// keep no state between calls beyond what the caller holds").
type Volume struct {
	dev      blockdev.Device
	sb       *Superblock
	root     directoryEntry
	readHook blockdev.ReadHookFunc
}

// Mount reads the superblock at its fixed sector and the root directory
// entry it points to (spec §4.2, §4.7). dev is assumed to already be
// windowed to this volume's byte range if the volume lives inside a
// partition.
func Mount(dev blockdev.Device) (*Volume, error) {
	buf := make([]byte, superblockSize)
	if err := blockdev.ReadAtOffset(dev, superblockSector*blockdev.SectorSize, buf); err != nil {
		return nil, rewriteOutOfRange(err)
	}
	sb, err := parseSuperblock(buf)
	if err != nil {
		return nil, err
	}

	root, err := readDirentryRef(dev, sb.BlockSize, sb.root)
	if err != nil {
		return nil, rewriteOutOfRange(err)
	}
	if root.nodeType != NodeTypeDirectory {
		return nil, badFileType(errNotADirectory)
	}

	return &Volume{dev: dev, sb: sb, root: *root}, nil
}

// rewriteOutOfRange mirrors grub_esfs_mount's fail path: an out-of-range
// device read while locating the superblock or root entry looks the same
// to a caller as "not an esfs filesystem" — a truncated image and a wrong
// filesystem are indistinguishable this early.
func rewriteOutOfRange(err error) error {
	if errors.Is(err, blockdev.ErrOutOfRange) {
		return badFS(errNotESFS)
	}
	return err
}

// readDirentryRef reads and validates the 1024-byte directory entry a
// direntryRef points to. Unlike a directory's own children, this is a
// direct block-device read rather than a walk of some parent's DATA
// attribute: the kernel and root references are the two fixed entry
// points into the tree (spec §3, "kernel" and "root" superblock fields).
func readDirentryRef(dev blockdev.Device, bsize uint64, ref direntryRef) (*directoryEntry, error) {
	off := int64(ref.block)*int64(bsize) + int64(ref.offsetIntoBlock)
	buf := make([]byte, direntrySize)
	if err := blockdev.ReadAtOffset(dev, off, buf); err != nil {
		return nil, err
	}
	return parseDirentry(buf)
}

// Label returns the volume name (spec §4.7).
func (v *Volume) Label() string { return v.sb.Label() }

// UUID returns the volume identifier as 32 lowercase hex digits (spec §4.7).
func (v *Volume) UUID() string { return v.sb.UUID() }

// Type reports the filesystem type name, matching the teacher's fsys.FS
// interface (fsys.FS.Type).
func (v *Volume) Type() string { return "ESFS" }

// Close releases resources held by the volume. ESFS mounts hold nothing
// beyond the decoded superblock, so there is nothing to release; the
// method exists to satisfy fsys.FS-shaped callers.
func (v *Volume) Close() error { return nil }

// SetReadHook installs a hook that fires once per physical block read
// issued on behalf of this volume's directory iteration and, for any File
// subsequently returned by Open, its L1 file reads (spec §8 property 9,
// grounded on grub_file's file->read_hook: the hook travels with the
// open handle, not with the underlying grub_disk_t, so installing it here
// doesn't fight with readL1's own transient use of Device.SetReadHook). A
// nil hook clears it.
func (v *Volume) SetReadHook(hook blockdev.ReadHookFunc) { v.readHook = hook }

// Kernel resolves the superblock's kernel reference, if one was recorded
// (spec §10, supplemented: "convenient access by the bootloader"). ok is
// false if the reference is the zero value.
func (v *Volume) Kernel() (Node, bool) {
	if v.sb.kernel == (direntryRef{}) {
		return Node{}, false
	}
	entry, err := readDirentryRef(v.dev, v.sb.BlockSize, v.sb.kernel)
	if err != nil {
		return Node{}, false
	}
	return Node{vol: v, entry: *entry}, true
}

// Root returns the volume's root directory node.
func (v *Volume) Root() Node { return Node{vol: v, entry: v.root} }

// Node is a resolved directory or file: a copy of its 1024-byte
// DirectoryEntry plus a non-owning back-reference to the mounted volume
// (spec §3, "Node"). It is cheap to copy.
type Node struct {
	vol   *Volume
	entry directoryEntry
}

func (n Node) IsDir() bool             { return n.entry.nodeType == NodeTypeDirectory }
func (n Node) Type() NodeType          { return n.entry.nodeType }
func (n Node) Size() int64             { return int64(n.entry.fileSize) }
func (n Node) ModTime() time.Time      { return esfsTime(n.entry.modTime) }
func (n Node) CreationTime() time.Time { return esfsTime(n.entry.creationTime) }
func (n Node) AccessTime() time.Time   { return esfsTime(n.entry.accessTime) }
func (n Node) Identifier() uuid.UUID   { return n.entry.identifier }
func (n Node) Parent() uuid.UUID       { return n.entry.parent }
func (n Node) ContentType() uuid.UUID  { return n.entry.contentType }

// Attributes enumerates the node's raw attribute records for diagnostic
// use (spec §10, supplemented: the driver never needs this for its own
// operations, but a tool inspecting an image does). Malformed entries end
// enumeration early, the same way findAttribute does.
type RawAttribute struct {
	Type uint16
	Size uint16
}

func (n Node) Attributes() []RawAttribute {
	var out []RawAttribute
	c := newCursor(n.entry.raw[:])
	off := int(n.entry.attrOffset)
	for off+attrHeaderSize <= direntrySize {
		if off%8 != 0 {
			break
		}
		typ, ok := c.u16(off)
		if !ok {
			break
		}
		size, ok := c.u16(off + 2)
		if !ok || size < attrHeaderSize || off+int(size) > direntrySize {
			break
		}
		out = append(out, RawAttribute{Type: typ, Size: size})
		off += int(size)
	}
	return out
}

// resolve walks name against the volume's root, using pathwalk.Find over
// the directory iterator (spec §4.6/§6, "external pathname resolver").
func (v *Volume) resolve(name string) (Node, error) {
	trimmed := strings.Trim(name, "/")
	if trimmed == "" || trimmed == "." {
		return Node{vol: v, entry: v.root}, nil
	}

	iterate := func(dir directoryEntry, visit func(string, bool, directoryEntry) bool) error {
		return iterateDir(&dir, v.sb.BlockSize, v.dev, v.readHook, func(e DirEntry) bool {
			return visit(e.Name, e.IsDir(), e.entry)
		})
	}

	found, _, err := pathwalk.Find(trimmed, v.root, iterate)
	if err != nil {
		var notFound *pathwalk.NotFoundError
		var notDir *pathwalk.NotADirectoryError
		switch {
		case errors.As(err, &notFound):
			return Node{}, fs.ErrNotExist
		case errors.As(err, &notDir):
			return Node{}, badFileType(errNotADirectory)
		default:
			return Node{}, err
		}
	}
	return Node{vol: v, entry: found}, nil
}

// Open resolves name and returns a handle to it (spec §6 facade "open").
func (v *Volume) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	node, err := v.resolve(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &File{node: node, name: path.Base(name), readHook: v.readHook}, nil
}

// List enumerates the immediate children of the directory at name (spec
// §6 facade "list"). It is the non-fs.FS entry point; ReadDir below
// adapts it to io/fs.
func (v *Volume) List(name string) ([]DirEntry, error) {
	node, err := v.resolve(name)
	if err != nil {
		return nil, err
	}
	if !node.IsDir() {
		return nil, badFileType(errNotADirectory)
	}
	var entries []DirEntry
	err = iterateDir(&node.entry, v.sb.BlockSize, v.dev, v.readHook, func(e DirEntry) bool {
		entries = append(entries, e)
		return false
	})
	return entries, err
}

// ReadDir implements fs.ReadDirFS.
func (v *Volume) ReadDir(name string) ([]fs.DirEntry, error) {
	entries, err := v.List(name)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}
	out := make([]fs.DirEntry, len(entries))
	for i, e := range entries {
		out[i] = dirEntryAdapter{e}
	}
	return out, nil
}

// Stat implements fs.StatFS.
func (v *Volume) Stat(name string) (fs.FileInfo, error) {
	node, err := v.resolve(name)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	return fileInfo{node: node, name: path.Base(name)}, nil
}

// Extent describes one contiguous run of a file's data mapped to physical
// bytes within the volume (spec §10, grounded on the teacher's fsys.Extent /
// fsys.ExtentMapper).
type Extent struct {
	Logical  int64
	Physical int64
	Length   int64
}

// FileExtents implements the fsys.ExtentMapper pattern for L1-indirected
// files. DIRECT files have no physical mapping of their own — their bytes
// live inside the directory entry, not at a location Read/ReadAt's caller
// can seek to independently — so FileExtents reports them as a single
// extent with Physical -1 rather than pretending otherwise.
func (v *Volume) FileExtents(name string) ([]Extent, error) {
	node, err := v.resolve(name)
	if err != nil {
		return nil, err
	}
	if node.IsDir() {
		return nil, badFileType(errNotADirectory)
	}
	d, ok := node.entry.dataAttribute()
	if !ok {
		return nil, badFS(errExtentsMissing)
	}
	if uint16(d.dataOffset) > d.size {
		return nil, badFS(errDataOffsetTooBig)
	}

	if d.indirection == indirectionDirect {
		return []Extent{{Logical: 0, Physical: -1, Length: int64(node.entry.fileSize)}}, nil
	}
	if d.indirection != indirectionL1 {
		return nil, badFS(errUnknownRedirect)
	}

	dataSize := int(d.size) - int(d.dataOffset)
	bsize := v.sb.BlockSize
	s := newSlab(d.body, int(d.dataOffset))

	var curStart uint64
	var logical int64
	var out []Extent

	for extnum := 0; extnum < int(d.count); extnum++ {
		headerB, ok := s.take(1)
		if !ok {
			break
		}
		header := headerB[0]
		startBytes := int((header>>0)&7) + 1
		countBytes := int((header>>3)&7) + 1
		if s.pos+startBytes+countBytes > dataSize {
			break
		}
		startFieldB, ok := s.take(startBytes)
		if !ok {
			break
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
			break
		}
		var count uint64
		for _, b := range countFieldB {
			count = (count << 8) | uint64(b)
		}

		curStart += start
		length := int64(count) * int64(bsize)
		out = append(out, Extent{
			Logical:  logical,
			Physical: int64(curStart) * int64(bsize),
			Length:   length,
		})
		logical += length
	}
	return out, nil
}

// File is an open handle to a Node, positioned independently of any other
// open handle to the same node (spec §5, "no shared mutable state across
// calls").
type File struct {
	node     Node
	name     string
	pos      int64
	readHook blockdev.ReadHookFunc
}

// SetReadHook installs a hook that fires once per physical block read this
// file's L1 reads issue (spec §8 property 9, grounded on grub_file's
// file->read_hook). It overrides whatever hook Open propagated from the
// owning Volume. A nil hook clears it.
func (f *File) SetReadHook(hook blockdev.ReadHookFunc) { f.readHook = hook }

func (f *File) Stat() (fs.FileInfo, error) { return fileInfo{node: f.node, name: f.name}, nil }

func (f *File) Read(p []byte) (int, error) {
	if f.node.IsDir() {
		return 0, &fs.PathError{Op: "read", Path: f.name, Err: fs.ErrInvalid}
	}
	n, err := readFile(&f.node.entry, f.node.vol.sb.BlockSize, f.node.vol.dev, f.pos, p, f.readHook)
	f.pos += int64(n)
	if err == nil && n == 0 && len(p) > 0 {
		err = io.EOF
	}
	return n, err
}

// ReadAt reads len(p) bytes starting at off, independent of and without
// disturbing Read's cursor (spec §6 facade "read").
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if f.node.IsDir() {
		return 0, &fs.PathError{Op: "read", Path: f.name, Err: fs.ErrInvalid}
	}
	n, err := readFile(&f.node.entry, f.node.vol.sb.BlockSize, f.node.vol.dev, off, p, f.readHook)
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, err
}

func (f *File) Close() error { return nil }

// ReadDir implements fs.ReadDirFile.
func (f *File) ReadDir(n int) ([]fs.DirEntry, error) {
	if !f.node.IsDir() {
		return nil, &fs.PathError{Op: "readdir", Path: f.name, Err: fs.ErrInvalid}
	}
	var entries []DirEntry
	err := iterateDir(&f.node.entry, f.node.vol.sb.BlockSize, f.node.vol.dev, f.readHook, func(e DirEntry) bool {
		if n > 0 && len(entries) >= n {
			return true
		}
		entries = append(entries, e)
		return false
	})
	if err != nil {
		return nil, err
	}
	if n > 0 && len(entries) == 0 {
		return nil, io.EOF
	}
	out := make([]fs.DirEntry, len(entries))
	for i, e := range entries {
		out[i] = dirEntryAdapter{e}
	}
	return out, nil
}

// dirEntryAdapter satisfies fs.DirEntry over a DirEntry.
type dirEntryAdapter struct{ e DirEntry }

func (d dirEntryAdapter) Name() string { return d.e.Name }
func (d dirEntryAdapter) IsDir() bool  { return d.e.IsDir() }
func (d dirEntryAdapter) Type() fs.FileMode {
	if d.e.IsDir() {
		return fs.ModeDir
	}
	return 0
}
func (d dirEntryAdapter) Info() (fs.FileInfo, error) {
	return fileInfo{entry: &d.e.entry, name: d.e.Name}, nil
}

// fileInfo satisfies fs.FileInfo over either a resolved Node or a raw
// directory entry captured mid-iteration (dirEntryAdapter.Info never has
// a Volume back-reference, only the entry it just decoded).
type fileInfo struct {
	node  Node
	entry *directoryEntry
	name  string
}

func (i fileInfo) direntry() *directoryEntry {
	if i.entry != nil {
		return i.entry
	}
	return &i.node.entry
}

func (i fileInfo) Name() string { return i.name }
func (i fileInfo) Size() int64  { return int64(i.direntry().fileSize) }
func (i fileInfo) Mode() fs.FileMode {
	if i.direntry().nodeType == NodeTypeDirectory {
		return fs.ModeDir | 0555
	}
	return 0444
}
func (i fileInfo) ModTime() time.Time { return esfsTime(i.direntry().modTime) }
func (i fileInfo) IsDir() bool        { return i.direntry().nodeType == NodeTypeDirectory }
func (i fileInfo) Sys() any           { return i.direntry() }
