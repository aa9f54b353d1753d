package filewatcher

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// Wildcard in the extension filter list accepts every file.
const Wildcard = ".*"

// ExtensionFilter is the allow-list of file extensions that get copied.
type ExtensionFilter struct {
	all  bool
	exts map[string]struct{}
}

// NewExtensionFilter builds a filter from configured extensions such as ".mp4".
// An empty list rejects everything.
func NewExtensionFilter(filters []string) *ExtensionFilter {
	f := &ExtensionFilter{exts: make(map[string]struct{}, len(filters))}
	for _, ext := range filters {
		if ext == Wildcard {
			f.all = true
			continue
		}
		f.exts[strings.ToLower(ext)] = struct{}{}
	}
	return f
}

// Matches reports whether ext (with its leading dot) is allowed.
func (f *ExtensionFilter) Matches(ext string) bool {
	if f.all {
		return true
	}
	_, ok := f.exts[strings.ToLower(ext)]
	return ok
}

// MatchesExtension is the stateless form of ExtensionFilter.Matches.
func MatchesExtension(filters []string, ext string) bool {
	for _, f := range filters {
		if f == Wildcard || strings.EqualFold(f, ext) {
			return true
		}
	}
	return false
}

// ignoreList drops temp and partial-download files by base name.
type ignoreList []glob.Glob

func compileIgnorePatterns(patterns []string) (ignoreList, error) {
	list := make(ignoreList, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(strings.ToLower(pattern))
		if err != nil {
			return nil, errors.Join(ErrInvalidPattern, err)
		}
		list = append(list, g)
	}
	return list, nil
}

func (l ignoreList) matches(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	for _, g := range l {
		if g.Match(name) {
			return true
		}
	}
	return false
}
