// Package logs reads, clears and tails the files under the logs directory.
package logs

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/loykin/lokcaldev/internal/service"
)

// DefaultReadLines is how many trailing lines Read returns when unspecified.
const DefaultReadLines = 500

const maxLineBytes = 1 << 20

// readPrealloc bounds the up-front ring capacity; larger requests grow on demand.
const readPrealloc = 1024

// File describes one log file.
type File struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Files gives access to log files confined to Dir.
type Files struct {
	Dir string
}

// ValidatePath resolves p, absolute or relative to Dir, and rejects anything
// that resolves outside Dir. Symlinks are followed before the check.
func (f Files) ValidatePath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", service.Errorf(service.OpGet, "logs", service.ErrInvalidArgument, "empty log path")
	}
	if err := os.MkdirAll(f.Dir, 0o750); err != nil {
		return "", err
	}
	root, err := canonical(f.Dir)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}

	var resolved string
	if _, err := os.Lstat(p); err == nil {
		resolved, err = canonical(p)
		if err != nil {
			return "", err
		}
	} else {
		parent, err := canonical(filepath.Dir(p))
		if err != nil {
			return "", service.Errorf(service.OpGet, "logs", service.ErrInvalidArgument, "invalid log file path %q", p)
		}
		resolved = filepath.Join(parent, filepath.Base(p))
	}

	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", service.Errorf(service.OpGet, "logs", service.ErrInvalidArgument, "access denied: %q is outside the logs directory", p)
	}
	return resolved, nil
}

func canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// List returns the .log files in Dir sorted by name.
func (f Files) List() ([]File, error) {
	if err := os.MkdirAll(f.Dir, 0o750); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(f.Dir)
	if err != nil {
		return nil, err
	}
	out := []File{}
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, File{Name: e.Name(), Path: filepath.Join(f.Dir, e.Name()), Size: info.Size()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Read returns the last n lines of the file at p, DefaultReadLines when n <= 0.
func (f Files) Read(p string, n int) ([]string, error) {
	path, err := f.ValidatePath(p)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = DefaultReadLines
	}
	fh, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, service.Errorf(service.OpGet, "logs", service.ErrNotFound, "log file %s does not exist", filepath.Base(path))
		}
		return nil, err
	}
	defer func() { _ = fh.Close() }()

	ring := make([]string, 0, min(n, readPrealloc))
	start := 0
	sc := bufio.NewScanner(fh)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		if len(ring) < n {
			ring = append(ring, sc.Text())
			continue
		}
		ring[start] = sc.Text()
		start = (start + 1) % n
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return append(ring[start:], ring[:start]...), nil
}

// Clear truncates the file at p in place so open writers keep working.
func (f Files) Clear(p string) error {
	path, err := f.ValidatePath(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, nil, 0o644)
}
