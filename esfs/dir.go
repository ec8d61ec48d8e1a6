package esfs

import (
	"github.com/essencefs/esfsutil/blockdev"
)

const directoryTooLargeSize = 1 << 31

// DirEntry is one entry produced by iterating a directory (spec §4.6):
// a name plus enough of the child's directory entry to open or recurse
// into it without a second lookup.
type DirEntry struct {
	Name string
	Type NodeType

	entry directoryEntry
}

func (d DirEntry) IsDir() bool { return d.Type == NodeTypeDirectory }

// iterateDir walks dir's data stream in fixed 1024-byte strides, yielding
// one DirEntry per valid, named slot (spec §4.6). visit returning true
// stops the walk early; iterateDir returns nil in that case, same as
// running to completion.
func iterateDir(dir *directoryEntry, bsize uint64, dev blockdev.Device, hook blockdev.ReadHookFunc, visit func(DirEntry) bool) error {
	if dir.nodeType != NodeTypeDirectory {
		return badFileType(errNotADirectory)
	}
	if dir.fileSize >= directoryTooLargeSize {
		return badFS(errDirectoryTooLarge)
	}

	buf := make([]byte, direntrySize)
	for pos := int64(0); pos+direntrySize <= int64(dir.fileSize); pos += direntrySize {
		n, err := readFile(dir, bsize, dev, pos, buf, hook)
		if err != nil {
			return err
		}
		if n < direntrySize {
			// A short read this far inside the declared fileSize means
			// the extent list doesn't actually cover the stride; treat
			// the slot as free the same as a bad signature would be.
			continue
		}

		child, err := parseDirentry(buf)
		if err != nil {
			continue // bad signature: free/corrupt slot, skip it
		}

		name, ok := child.filename()
		if !ok {
			continue // missing or malformed FILENAME attribute
		}

		switch child.nodeType {
		case NodeTypeFile, NodeTypeDirectory:
		default:
			continue // unknown classification, skip
		}

		if visit(DirEntry{Name: name, Type: child.nodeType, entry: *child}) {
			return nil
		}
	}
	return nil
}
