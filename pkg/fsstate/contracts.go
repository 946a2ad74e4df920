package fsstate

// Stamps records the last-known modification time per (file, target). It is
// a shared persistent resource owned by the build cache directory; this
// package only references it. Implementations must make each call durable on
// its own.
type Stamps interface {
	// GetStamp returns the recorded stamp for file under target, and whether
	// one exists.
	GetStamp(file string, target Target) (int64, bool, error)
	// SaveStamp records stamp as the last-known modification time.
	SaveStamp(file string, target Target, stamp int64) error
	// RemoveStamp forgets any recorded stamp for file under target.
	RemoveStamp(file string, target Target) error
}

// CompileScope tells whether a file is within the user-selected rebuild
// scope. Files outside the scope are neither recompiled nor stamped.
type CompileScope interface {
	IsAffected(target Target, file string) bool
}

// ExcludePatterns captures project-level compiler exclusion rules. Excluded
// files are never recompiled and have their stamps removed.
type ExcludePatterns interface {
	IsExcluded(file string) bool
}

// FileVisitor is invoked for each dirty file selected for recompilation.
// Returning false stops the iteration; files not yet visited stay dirty.
type FileVisitor func(target Target, file string, rootPath string) bool

// MarkResult reports the outcome of a dirty-mark attempt.
type MarkResult int

const (
	// MarkedDirty means the file was added to the dirty set by this call.
	MarkedDirty MarkResult = iota
	// AlreadyDirty means the file was in the dirty set before the call.
	AlreadyDirty
	// SkippedDeleted means the file no longer exists on disk and was not
	// marked.
	SkippedDeleted
)

// Applied reports whether the file is in the dirty set as a result of the
// call.
func (r MarkResult) Applied() bool {
	return r != SkippedDeleted
}

func (r MarkResult) String() string {
	switch r {
	case MarkedDirty:
		return "marked"
	case AlreadyDirty:
		return "already-dirty"
	case SkippedDeleted:
		return "skipped-deleted"
	}
	return "unknown"
}
