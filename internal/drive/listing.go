// Package drive presents a hierarchical file browser over the flat key
// space of a store.Store.
//
// The homeserver knows nothing about directories: list-by-prefix returns
// full keys at arbitrary depth. This package reconstructs one level of
// children from such a listing, models binary content as blob+metadata
// pairs, and orchestrates the file operations with a coherent local cache.
package drive

import (
	"sort"
	"strings"
	"time"

	"github.com/gillohner/pubky-tools/internal/keys"
)

const (
	// SystemMarker tags keys holding pubky-tools' own housekeeping records
	// (trash index, settings). Such keys never show up in listings.
	SystemMarker = "pubky-tools-sys"

	// dirPlaceholder is the zero-length object written by CreateDirectory.
	// The dot prefix keeps it out of the directory's own listing while its
	// presence makes the directory appear in the parent's.
	dirPlaceholder = ".keep"
)

// FileNode is one entry in a directory listing.
// Directories carry no size or modification time.
type FileNode struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"` // full pubky:// key
	IsDirectory bool      `json:"is_directory"`
	Size        int64     `json:"size,omitempty"`
	ModifiedAt  time.Time `json:"modified_at,omitempty"`
}

// Reconstruct derives the immediate children of prefix from a flat list of
// full keys, as returned by store.List.
//
// Filtered out: the prefix itself, housekeeping keys carrying SystemMarker,
// dotfile children, and malformed keys containing a doubled separator. A
// directory appearing through many descendants yields exactly one node.
// Directories sort before files; each group is lexicographic by name.
func Reconstruct(prefix string, flatKeys []string) []FileNode {
	children := make(map[string]bool) // name -> is directory

	for _, key := range flatKeys {
		if key == prefix {
			continue
		}
		if strings.Contains(key, SystemMarker) {
			continue
		}
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if strings.Contains(key[len(keys.Scheme):], "//") {
			continue
		}

		relative := key[len(prefix):]
		if relative == "" || strings.HasPrefix(relative, ".") {
			continue
		}

		// A separator anywhere in the remainder means the child is a
		// directory, whether through deeper segments or a trailing slash.
		name, _, nested := strings.Cut(relative, keys.Separator)
		if nested {
			children[name] = true
		} else if _, seen := children[name]; !seen {
			children[name] = false
		}
	}

	nodes := make([]FileNode, 0, len(children))
	for name, isDir := range children {
		path := prefix + name
		if isDir {
			path += keys.Separator
		}
		nodes = append(nodes, FileNode{
			Name:        name,
			Path:        path,
			IsDirectory: isDir,
		})
	}

	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].IsDirectory != nodes[j].IsDirectory {
			return nodes[i].IsDirectory
		}
		return nodes[i].Name < nodes[j].Name
	})

	return nodes
}
