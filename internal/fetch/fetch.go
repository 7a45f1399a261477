package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Fetcher resolves a source locator to a file on local disk.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) (*Local, error)
}

// Local is a locally readable copy of a fetched source.
type Local struct {
	Path string
	temp bool
}

// Release deletes the file when it is a temporary copy. Files that were
// already local are left alone.
func (l *Local) Release() error {
	if l == nil || !l.temp {
		return nil
	}
	if err := os.Remove(l.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing temporary copy: %w", err)
	}
	return nil
}

// Error reports that the bytes behind a locator could not be made available.
type Error struct {
	Locator string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.Locator, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Disk serves plain paths and file:// locators in place.
type Disk struct{}

func (Disk) Fetch(ctx context.Context, locator string) (*Local, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Locator: locator, Err: err}
	}
	path := strings.TrimPrefix(locator, "file://")
	info, err := os.Stat(path)
	if err != nil {
		return nil, &Error{Locator: locator, Err: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &Error{Locator: locator, Err: fmt.Errorf("%s is not a regular file", path)}
	}
	return &Local{Path: path}, nil
}

// Router picks a Fetcher by locator scheme. Locators without a scheme and
// file:// locators go to Disk.
type Router struct {
	schemes map[string]Fetcher
}

// NewRouter creates a Router that serves local files.
func NewRouter() *Router {
	return &Router{schemes: map[string]Fetcher{"file": Disk{}}}
}

// Register routes locators with the given scheme to f.
func (r *Router) Register(scheme string, f Fetcher) *Router {
	r.schemes[strings.ToLower(scheme)] = f
	return r
}

func (r *Router) Fetch(ctx context.Context, locator string) (*Local, error) {
	scheme := "file"
	if i := strings.Index(locator, "://"); i > 0 {
		scheme = strings.ToLower(locator[:i])
	}
	f, ok := r.schemes[scheme]
	if !ok {
		return nil, &Error{Locator: locator, Err: fmt.Errorf("unsupported scheme %q", scheme)}
	}
	return f.Fetch(ctx, locator)
}

// tempCopy writes src to a new temporary file that keeps ext, so strategies
// can still select on it. Each call gets its own file.
func tempCopy(src io.Reader, ext string) (*Local, error) {
	tmp, err := os.CreateTemp("", "docextract-*"+sanitizeExt(ext))
	if err != nil {
		return nil, fmt.Errorf("creating temporary file: %w", err)
	}
	local := &Local{Path: tmp.Name(), temp: true}

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		local.Release()
		return nil, fmt.Errorf("writing temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		local.Release()
		return nil, fmt.Errorf("writing temporary file: %w", err)
	}
	return local, nil
}

func sanitizeExt(ext string) string {
	ext = strings.ToLower(filepath.Ext("x" + ext))
	if strings.ContainsAny(ext, `/\*`) {
		return ""
	}
	return ext
}
