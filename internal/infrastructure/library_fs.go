package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"

	"github.com/yourusername/mediagrab/internal/domain"
)

const (
	pendingPrefix    = ".pending-"
	maxNameConflicts = 1000
)

// FilesystemLibrary publishes finished files into a local media directory.
// Files are staged under a unique hidden name and hard-linked to the first
// free display name, so concurrent publishes never share or overwrite a file.
type FilesystemLibrary struct {
	dir string
}

// NewFilesystemLibrary creates a new filesystem library sink
func NewFilesystemLibrary(dir string) *FilesystemLibrary {
	return &FilesystemLibrary{dir: dir}
}

// Dir returns the library directory
func (l *FilesystemLibrary) Dir() string {
	return l.dir
}

// Publish copies src into the library under displayName and returns the final path.
// src is left in place.
func (l *FilesystemLibrary) Publish(ctx context.Context, src, displayName, mimeType string) (string, error) {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create library directory: %w", err)
	}

	name := domain.SanitizeFileName(displayName)
	staged, err := os.CreateTemp(l.dir, pendingPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("failed to stage %s: %w", name, err)
	}
	pending := staged.Name()
	defer os.Remove(pending)

	if err := copyFileContext(ctx, src, staged); err != nil {
		return "", fmt.Errorf("failed to stage %s: %w", name, err)
	}
	if err := os.Chmod(pending, 0644); err != nil {
		return "", fmt.Errorf("failed to stage %s: %w", name, err)
	}

	return l.claimName(pending, name)
}

// claimName links pending to the first free name in dir, adding -(n) before the extension.
// os.Link fails with ErrExist instead of replacing, so a taken name is never overwritten.
func (l *FilesystemLibrary) claimName(pending, name string) (string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := 0; n < maxNameConflicts; n++ {
		candidate := name
		if n > 0 {
			candidate = fmt.Sprintf("%s-(%d)%s", base, n, ext)
		}
		path := filepath.Join(l.dir, candidate)
		err := os.Link(pending, path)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("failed to publish %s: %w", name, err)
		}
	}
	return "", fmt.Errorf("no free name for %s in %s", name, l.dir)
}

// copyFileContext copies src into out, then syncs and closes out
func copyFileContext(ctx context.Context, src string, out *os.File) (err error) {
	defer func() {
		err = multierr.Combine(err, out.Sync(), out.Close())
	}()

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	_, err = io.Copy(out, &contextReader{ctx: ctx, r: in})
	return err
}

// contextReader stops reading once ctx is done
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
