package port

import "time"

// SourceFile is a file selected for indexing.
type SourceFile struct {
	Path    string // absolute or root-joined path, for reading
	RelPath string // slash-separated path relative to the index root
	ModTime time.Time
	Size    int64
}

// FileWalker selects the files under root that should be indexed.
type FileWalker interface {
	Walk(root string) ([]SourceFile, error)
}

// FileReader loads a selected file.
type FileReader interface {
	ReadFile(path string) (string, error)
}
