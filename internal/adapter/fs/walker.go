// Package fs selects the source files of an index.
package fs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"ragctx/internal/port"
)

// globSet matches slash-separated paths against doublestar patterns.
type globSet []string

func (g globSet) match(path string) bool {
	for _, pattern := range g {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}

// Walker lists files under a root that match any include glob and no exclude
// glob. A directory matching an exclude glob is not descended into.
type Walker struct {
	includes globSet
	excludes globSet
}

func NewWalker(includes, excludes []string) *Walker {
	if len(includes) == 0 {
		includes = []string{"**/*"}
	}
	return &Walker{includes: includes, excludes: excludes}
}

// Validate reports the first malformed pattern.
func (w *Walker) Validate() error {
	for _, set := range []globSet{w.includes, w.excludes} {
		for _, pattern := range set {
			if !doublestar.ValidatePattern(pattern) {
				return fmt.Errorf("invalid glob %q", pattern)
			}
		}
	}
	return nil
}

// Walk returns the selected files in lexical order.
func (w *Walker) Walk(root string) ([]port.SourceFile, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	var files []port.SourceFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		switch {
		case d.IsDir():
			if rel != "." && w.excludes.match(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		case !d.Type().IsRegular():
			return nil
		case !w.includes.match(rel) || w.excludes.match(rel):
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, port.SourceFile{
			Path:    path,
			RelPath: rel,
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
		return nil
	})
	return files, err
}

// ReadFile reads a whole file as a string.
func (w *Walker) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
