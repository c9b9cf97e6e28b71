package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Disk 把图片保存在本地目录（或任意 afero 文件系统）中。
type Disk struct {
	fs  afero.Fs
	dir string
}

// NewDisk returns a Disk rooted at dir on fsys, creating dir when missing.
func NewDisk(fsys afero.Fs, dir string) (*Disk, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create images dir %q: %w", dir, err)
	}
	return &Disk{fs: fsys, dir: dir}, nil
}

// Dir returns the root directory.
func (d *Disk) Dir() string { return d.dir }

// Fs exposes the underlying filesystem for static serving.
func (d *Disk) Fs() afero.Fs { return d.fs }

func (d *Disk) path(name string) (string, error) {
	clean, err := CleanName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.dir, clean), nil
}

// Put writes r to name, replacing nothing: an existing file is an error.
func (d *Disk) Put(ctx context.Context, name string, r io.Reader, _ int64, _ string) error {
	p, err := d.path(name)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := d.fs.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %q: %w", name, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = d.fs.Remove(p)
		return fmt.Errorf("write %q: %w", name, err)
	}
	if err := f.Close(); err != nil {
		_ = d.fs.Remove(p)
		return fmt.Errorf("close %q: %w", name, err)
	}
	return nil
}

// Delete removes name. A missing file is not an error.
func (d *Disk) Delete(_ context.Context, name string) error {
	p, err := d.path(name)
	if err != nil {
		return err
	}
	if err := d.fs.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %q: %w", name, err)
	}
	return nil
}

// Open returns a reader for name or ErrNotFound.
func (d *Disk) Open(_ context.Context, name string) (io.ReadCloser, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	f, err := d.fs.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open %q: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat %q: %w", name, err)
	}
	// 只提供普通文件，目录等一律当作不存在
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, ErrNotFound
	}
	return f, nil
}

// Exists reports whether name is present.
func (d *Disk) Exists(name string) (bool, error) {
	p, err := d.path(name)
	if err != nil {
		return false, err
	}
	return afero.Exists(d.fs, p)
}
