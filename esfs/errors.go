package esfs

// BadFS reports a structural violation of the on-disk format, or a version
// the driver can't read. It's not recoverable: the volume isn't mountable,
// or the operation that hit it is aborted.
type BadFS struct {
	Reason string
}

func (e *BadFS) Error() string { return e.Reason }

func badFS(reason string) error { return &BadFS{Reason: reason} }

// BadFileType reports a semantic mismatch, e.g. listing a file or opening
// a directory.
type BadFileType struct {
	Reason string
}

func (e *BadFileType) Error() string { return e.Reason }

func badFileType(reason string) error { return &BadFileType{Reason: reason} }

// Error strings, verbatim from esfs.c's grub_error() call sites, so callers
// probing an unknown image see the same signal the original driver gives.
const (
	errNotESFS           = "not an esfs filesystem"
	errBadDirSignature   = "incorrect directory signature"
	errExtentsMissing    = "extents are missing"
	errDataOffsetTooBig  = "data offset is too large"
	errUnknownRedirect   = "unknown redirection"
	errNotADirectory     = "not a directory"
	errDirectoryTooLarge = "directory too large"
)
