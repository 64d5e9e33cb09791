//go:build windows

package ops

import "os"

// openFileNoFollow opens a report file for writing.
// O_NOFOLLOW does not exist on Windows; ValidateOutputPath rejects symlinks
// before we get here.
func openFileNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(path, flag, perm)
}
