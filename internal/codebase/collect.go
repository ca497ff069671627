package codebase

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	errors "github.com/Laisky/errors/v2"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/JxTIN21/Codebase/internal/codebase/chunker"
)

// skippedDirs are never descended into when collecting a local directory.
var skippedDirs = map[string]bool{
	"node_modules": true,
	"__pycache__":  true,
	"build":        true,
	"dist":         true,
	"target":       true,
	"venv":         true,
	"env":          true,
	".git":         true,
	".svn":         true,
	".hg":          true,
}

// CollectDirectory reads the files under root whose extension is in exts,
// honoring the root .gitignore and skipping hidden entries and dependency folders.
// Paths in the result are slash separated and relative to root.
func CollectDirectory(root string, exts []string, maxFileBytes int64) ([]FileInput, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", root)
	}
	allowed := chunker.ExtensionSet(exts)

	var gitignore *ignore.GitIgnore
	if _, statErr := os.Stat(filepath.Join(absRoot, ".gitignore")); statErr == nil {
		if gitignore, err = ignore.CompileIgnoreFile(filepath.Join(absRoot, ".gitignore")); err != nil {
			return nil, errors.Wrap(err, "parse .gitignore")
		}
	}

	var files []FileInput
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if path == absRoot {
			return nil
		}
		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		name := d.Name()

		if d.IsDir() {
			if strings.HasPrefix(name, ".") || skippedDirs[name] ||
				(gitignore != nil && gitignore.MatchesPath(rel+"/")) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if !allowed[strings.ToLower(filepath.Ext(name))] {
			return nil
		}
		if gitignore != nil && gitignore.MatchesPath(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil || (maxFileBytes > 0 && info.Size() > maxFileBytes) {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "read %s", rel)
		}
		files = append(files, FileInput{Path: rel, Content: content})
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walk %s", root)
	}

	return files, nil
}
