package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/tablesnap/internal/errors"
)

// ValidateOutputPath checks a report destination before anything is written:
//  1. no ".." components
//  2. the parent directory exists and is not a symlink
//  3. the file itself, if present, is a regular file and not a symlink
func ValidateOutputPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.NewInvalidRequest("output path is required")
	}
	if containsTraversal(path) {
		return errors.NewInvalidRequest("output path must not contain directory traversal (..)")
	}

	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid output path: %v", err))
	}

	parentDir := filepath.Dir(absPath)
	info, err := os.Lstat(parentDir)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NewFileNotFound(parentDir)
		}
		return errors.NewInvalidRequest(fmt.Sprintf("cannot stat output directory: %v", err))
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("output directory must not be a symlink")
	}
	if !info.IsDir() {
		return errors.NewInvalidRequest(fmt.Sprintf("%s is not a directory", parentDir))
	}

	if info, err := os.Lstat(absPath); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			return errors.NewInvalidRequest("output path must not be a symlink")
		}
		if !info.Mode().IsRegular() {
			return errors.NewInvalidRequest("output path must be a regular file")
		}
	}
	return nil
}

// containsTraversal checks if path contains ".." directory traversal.
func containsTraversal(path string) bool {
	for _, part := range strings.Split(path, string(filepath.Separator)) {
		if part == ".." {
			return true
		}
	}
	// Forward slashes from user input on every platform
	if filepath.Separator != '/' {
		for _, part := range strings.Split(path, "/") {
			if part == ".." {
				return true
			}
		}
	}
	return false
}
