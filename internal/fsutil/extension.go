package fsutil

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
)

// FixExtension sniffs the real type of the file at path and renames it when
// the extension does not match. Telegram delivers many files with a generic
// or missing extension; this repairs them after download. Returns the final
// path (unchanged when the extension was already right or the type is
// unrecognizable).
func FixExtension(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return path, err
	}
	// filetype needs at most 262 bytes to decide.
	head := make([]byte, 262)
	n, _ := f.Read(head)
	f.Close()

	kind, err := filetype.Match(head[:n])
	if err != nil || kind == filetype.Unknown {
		return path, nil
	}

	current := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if current == kind.Extension {
		return path, nil
	}
	// jpg/jpeg are the same thing.
	if current == "jpeg" && kind.Extension == "jpg" {
		return path, nil
	}

	fixed := strings.TrimSuffix(path, filepath.Ext(path)) + "." + kind.Extension
	if err := os.Rename(path, fixed); err != nil {
		return path, err
	}
	return fixed, nil
}
