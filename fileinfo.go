package linestream

import (
	pathpkg "path"
	"time"
)

// FileInfo describes a stored file as reported by Backend.Stat.
type FileInfo struct {
	// Path is the backend-relative path of the file.
	Path string

	// Size is the content length in bytes.
	Size int64

	// ModTime is the last modification time. Backends that do not track
	// modification times leave it zero.
	ModTime time.Time

	// IsDir reports whether the path names a directory. Object stores
	// never report directories.
	IsDir bool
}

// Name returns the last element of the path.
func (fi FileInfo) Name() string {
	return pathpkg.Base(fi.Path)
}
