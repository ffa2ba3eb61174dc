// Package filestore provides rooted recursive file access for generated
// test projects. All paths are relative to the store root; listing skips
// build-artifact directories and binary files.
package filestore

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"testforge/internal/logging"
)

// deniedDirs are directory names excluded from listings.
var deniedDirs = map[string]bool{
	".git":         true,
	".idea":        true,
	".vscode":      true,
	".testforge":   true,
	"node_modules": true,
	"vendor":       true,
	"target":       true,
	"bin":          true,
	"obj":          true,
	"dist":         true,
	"build":        true,
	"out":          true,
}

// deniedExts are file extensions excluded from listings.
var deniedExts = map[string]bool{
	".exe": true, ".dll": true, ".so": true, ".dylib": true,
	".a": true, ".o": true, ".class": true, ".jar": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true,
	".pdf": true, ".zip": true, ".tar": true, ".gz": true, ".bin": true,
}

// languageByExt maps file extensions to display languages.
var languageByExt = map[string]string{
	".go":   "go",
	".mod":  "go-module",
	".sum":  "go-checksum",
	".java": "java",
	".kt":   "kotlin",
	".py":   "python",
	".js":   "javascript",
	".ts":   "typescript",
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".xml":  "xml",
	".md":   "markdown",
	".html": "html",
	".sh":   "shell",
	".sql":  "sql",
	".txt":  "text",
}

// File is one stored file with its content.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Store is a file store rooted at a base directory.
type Store struct {
	root string
}

// New creates a store rooted at the given directory.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("store root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve store root: %w", err)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute root path of the store.
func (s *Store) Root() string {
	return s.root
}

// resolve maps a relative path into the root, rejecting escapes.
func (s *Store) resolve(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", fmt.Errorf("path %q escapes store root", rel)
	}
	return filepath.Join(s.root, clean), nil
}

// WriteFile writes content at the relative path, creating parent
// directories. Existing files are truncated, never merged.
func (s *Store) WriteFile(rel, content string) error {
	abs, err := s.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", rel, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}
	logging.FilesDebug("wrote %s (%d bytes)", rel, len(content))
	return nil
}

// ReadFile reads the file at the relative path.
func (s *Store) ReadFile(rel string) (string, error) {
	abs, err := s.resolve(rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", rel, err)
	}
	return string(data), nil
}

// Remove deletes the file at the relative path. A missing file is not
// an error; reverting a fix set must be able to undo file creation
// without tracking whether the write ever happened.
func (s *Store) Remove(rel string) error {
	abs, err := s.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", rel, err)
	}
	logging.FilesDebug("removed %s", rel)
	return nil
}

// Exists reports whether the relative path exists.
func (s *Store) Exists(rel string) bool {
	abs, err := s.resolve(rel)
	if err != nil {
		return false
	}
	_, err = os.Stat(abs)
	return err == nil
}

// Clear removes every entry under the root, keeping the root itself.
// Used to make rewrites overwrite-deterministic rather than additive.
func (s *Store) Clear() error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to list store root: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(s.root, e.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %w", e.Name(), err)
		}
	}
	logging.FilesDebug("cleared store root %s", s.root)
	return nil
}

// List returns every listable file under the root in path order, with
// content. Denied directories and binary extensions are skipped.
func (s *Store) List() ([]File, error) {
	var files []File

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != s.root && deniedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if deniedExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files = append(files, File{Path: filepath.ToSlash(rel), Content: string(data)})
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list store: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// DetectLanguage returns the display language for a path, "unknown"
// when the extension is not recognized.
func DetectLanguage(path string) string {
	if lang, ok := languageByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return "unknown"
}
