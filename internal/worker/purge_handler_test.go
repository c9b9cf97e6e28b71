package worker

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/spf13/afero"

	"jobportal/internal/storage"
	"jobportal/internal/tasks"
)

type staticRefs map[string]bool

func (r staticRefs) ImageInUse(_ context.Context, p string) (bool, error) { return r[p], nil }

func newDisk(t *testing.T, files ...string) *storage.Disk {
	t.Helper()
	disk, err := storage.NewDisk(afero.NewMemMapFs(), "/images")
	if err != nil {
		t.Fatalf("new disk: %v", err)
	}
	for _, name := range files {
		if err := disk.Put(context.Background(), name, bytes.NewReader([]byte("x")), 1, "image/png"); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}
	return disk
}

func purgeTask(t *testing.T, path string) *asynq.Task {
	t.Helper()
	task, err := tasks.NewImagePurgeTask(path, "corr")
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	return task
}

func TestPurgeTaskHandler_DeletesAndIsIdempotent(t *testing.T) {
	disk := newDisk(t, "1-abc.png")
	h := NewPurgeTaskHandler(disk, nil, nil)
	ctx := context.Background()

	if err := h.ProcessTask(ctx, purgeTask(t, "1-abc.png")); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if ok, _ := disk.Exists("1-abc.png"); ok {
		t.Fatalf("file still present")
	}
	if err := h.ProcessTask(ctx, purgeTask(t, "1-abc.png")); err != nil {
		t.Fatalf("second run should succeed, got %v", err)
	}
}

func TestPurgeTaskHandler_SkipsReferencedImage(t *testing.T) {
	disk := newDisk(t, "keep.png")
	h := NewPurgeTaskHandler(disk, staticRefs{"keep.png": true}, nil)

	if err := h.ProcessTask(context.Background(), purgeTask(t, "keep.png")); err != nil {
		t.Fatalf("process: %v", err)
	}
	if ok, _ := disk.Exists("keep.png"); !ok {
		t.Fatalf("referenced file was deleted")
	}
}

func TestPurgeTaskHandler_BadInputSkipsRetry(t *testing.T) {
	h := NewPurgeTaskHandler(newDisk(t), nil, nil)
	ctx := context.Background()

	err := h.ProcessTask(ctx, asynq.NewTask(tasks.TypeImagePurge, []byte("{not json")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("bad payload: err = %v, want SkipRetry", err)
	}

	err = h.ProcessTask(ctx, purgeTask(t, "../etc/passwd"))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("traversal path: err = %v, want SkipRetry", err)
	}
}
