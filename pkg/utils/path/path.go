package path

import (
	"os"
	"path/filepath"
	"strings"
)

const tilde = "~" + string(filepath.Separator)

// return absolute representation of path, with expanding "~" to user's home directory.
//
// args:
//   - pathstring: path to be resolved
//
// return:
//   - string: resolved filepath
//   - error
func Resolve(pathstring string) (string, error) {
	if strings.HasPrefix(pathstring, tilde) {
		homedir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		pathstring = filepath.Join(homedir, pathstring[2:])
	}
	return filepath.Abs(pathstring)
}

// IsDir reports whether p exists and is a directory.
func IsDir(p string) bool {
	s, err := os.Stat(p)
	return err == nil && s.IsDir()
}

// FirstDir returns the first candidate which is an existing directory.
//
// Each candidate is Resolve-d before checking.
func FirstDir(candidates ...string) (string, bool) {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		abs, err := Resolve(c)
		if err != nil {
			continue
		}
		if IsDir(abs) {
			return abs, true
		}
	}
	return "", false
}
