package service

import (
	"academy_backend/internal/config"
	"academy_backend/internal/lesson"
	"academy_backend/internal/util"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenProvider struct{}

func (brokenProvider) Upload(context.Context, string, io.Reader, int64, string) (string, error) {
	return "", errors.New("bucket unreachable")
}

func (brokenProvider) GetURL(filename string) string { return filename }

func fixedClock() time.Time { return time.UnixMilli(1700000000000) }

func TestUploadPersonaImageStored(t *testing.T) {
	dir := t.TempDir()
	svc := NewStorageService(&config.Config{Storage: config.StorageConfig{Type: util.StorageLocal, LocalPath: dir}}, nil)
	svc.now = fixedClock

	data := []byte("\x89PNG\r\n\x1a\nrest")
	att, err := svc.UploadPersonaImage(context.Background(), "u1", "l1", "Foto.PNG", "image/png", data)
	require.NoError(t, err)

	stored, ok := att.(lesson.Stored)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(stored.URL, "/uploads/u1/personas/l1/1700000000000-"), stored.URL)
	assert.True(t, strings.HasSuffix(stored.URL, ".png"), stored.URL)

	written, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(stored.URL, "/uploads/"))))
	require.NoError(t, err)
	assert.Equal(t, data, written)
}

func TestUploadPersonaImageFallsBackToPreview(t *testing.T) {
	previews := NewMemoryPreviewCache(time.Minute, 4)
	svc := &StorageService{Provider: brokenProvider{}, Previews: previews, now: fixedClock}

	att, err := svc.UploadPersonaImage(context.Background(), "u1", "l1", "a.jpg", "image/jpeg", []byte("jpeg"))
	require.NoError(t, err)
	local, ok := att.(lesson.LocalOnly)
	require.True(t, ok)

	data, contentType, err := previews.Get(context.Background(), local.Handle)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))
	assert.Equal(t, "image/jpeg", contentType)

	svc.Previews = nil
	_, err = svc.UploadPersonaImage(context.Background(), "u1", "l1", "a.jpg", "image/jpeg", []byte("jpeg"))
	assert.Error(t, err)
}

func TestMemoryPreviewCache(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(0, 0)
	c := NewMemoryPreviewCache(time.Minute, 2)
	c.now = func() time.Time { return now }

	first, err := c.Put(ctx, []byte("1"), "image/png")
	require.NoError(t, err)
	now = now.Add(time.Second)
	second, _ := c.Put(ctx, []byte("2"), "image/png")
	now = now.Add(time.Second)
	third, _ := c.Put(ctx, []byte("3"), "image/png")

	// 超出容量淘汰最早的条目
	_, _, err = c.Get(ctx, first)
	assert.ErrorIs(t, err, util.ErrPreviewNotFound)
	_, _, err = c.Get(ctx, second)
	assert.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, _, err = c.Get(ctx, third)
	assert.ErrorIs(t, err, util.ErrPreviewNotFound)
}

func TestLocalFieldLock(t *testing.T) {
	ctx := context.Background()
	l := NewLocalFieldLock()

	ok, err := l.Acquire(ctx, "u1/l1/notes", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = l.Acquire(ctx, "u1/l1/notes", time.Minute)
	assert.False(t, ok)
	ok, _ = l.Acquire(ctx, "u1/l1/other", time.Minute)
	assert.True(t, ok)

	l.Release(ctx, "u1/l1/notes")
	ok, _ = l.Acquire(ctx, "u1/l1/notes", time.Minute)
	assert.True(t, ok)

	// 过期的锁可以重新获取
	ok, _ = l.Acquire(ctx, "u1/l1/short", time.Nanosecond)
	require.True(t, ok)
	time.Sleep(time.Millisecond)
	ok, _ = l.Acquire(ctx, "u1/l1/short", time.Minute)
	assert.True(t, ok)
}
