package filestore

import (
	"os"
	"path/filepath"

	jsonx "necrocode/internal/shared/json"
)

// EnsureDir creates the directory and all parents if they don't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// EnsureParentDir creates the parent directory of filePath.
func EnsureParentDir(filePath string) error {
	return EnsureDir(filepath.Dir(filePath))
}

// AtomicWrite writes data to filePath via a temporary sibling + rename, so
// readers observe either the old content or the new, never a partial write.
// The temporary file is fsynced before the rename; a stale .tmp from an
// earlier crash is simply overwritten.
func AtomicWrite(filePath string, data []byte, perm os.FileMode) error {
	if err := EnsureParentDir(filePath); err != nil {
		return err
	}
	tmp := filePath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, filePath); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// ReadFileOrEmpty reads a file, returning (nil, nil) if the file doesn't exist.
func ReadFileOrEmpty(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}

// ResolvePath resolves a storage path, handling ~ expansion and env
// variables. If configured is empty, defaultPath is used.
func ResolvePath(configured, defaultPath string) string {
	path := configured
	if path == "" {
		path = defaultPath
	}
	if path == "" {
		return path
	}

	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			switch {
			case len(path) == 1:
				path = home
			case path[1] == '/':
				path = filepath.Join(home, path[2:])
			default:
				path = filepath.Join(home, path[1:])
			}
		}
	}

	return os.ExpandEnv(path)
}

// MarshalJSONIndent marshals v as indented JSON with a trailing newline.
func MarshalJSONIndent(v any) ([]byte, error) {
	data, err := jsonx.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
