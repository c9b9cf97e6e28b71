package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// ErrNotFound is returned by Open when the object does not exist.
var ErrNotFound = errors.New("storage: object not found")

// ErrInvalidName rejects names that could escape the images area.
var ErrInvalidName = errors.New("storage: invalid object name")

// Backend 是图片文件的存放位置。Delete 对不存在的对象视为成功。
type Backend interface {
	Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, name string) error
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// CleanName validates a stored file name. Names are flat: no separators, no dot segments.
func CleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "", ErrInvalidName
	}
	if strings.ContainsAny(name, `/\`) || path.Base(name) != name {
		return "", ErrInvalidName
	}
	return name, nil
}
