package media

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"blockwiki/api/internal/blocks"
	"blockwiki/api/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newTestService(t *testing.T, maxBytes int64) (*Service, *MemoryObjects) {
	t.Helper()
	catalog := store.NewMemoryStore()
	_, err := catalog.PutPage(context.Background(), store.Page{ID: "p1", Name: "Page"})
	require.NoError(t, err)
	objects := NewMemoryObjects("http://localhost:8080")
	return NewService(objects, catalog, maxBytes), objects
}

func TestUploadSniffsTypeAndRecords(t *testing.T) {
	svc, _ := newTestService(t, 0)
	ctx := context.Background()

	m, err := svc.Upload(ctx, "p1", "../Diagram.PNG", "", strings.NewReader(string(pngHeader)), int64(len(pngHeader)))
	require.NoError(t, err)

	assert.Equal(t, "image/png", m.ContentType)
	assert.Equal(t, "Diagram.PNG", m.FileName)
	assert.True(t, strings.HasPrefix(m.ObjectKey, "p1/m_"))
	assert.True(t, strings.HasSuffix(m.ObjectKey, ".png"))
	assert.Equal(t, "http://localhost:8080/api/media/"+m.ObjectKey, m.URL)
	assert.Equal(t, blocks.TypeImage, BlockTypeFor(m.ContentType))

	rc, ct, err := svc.Open(ctx, m.ObjectKey)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)
	assert.Equal(t, "image/png", ct)

	items, err := svc.List(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, m.ID, items[0].ID)
}

func TestUploadKeepsDeclaredType(t *testing.T) {
	svc, _ := newTestService(t, 0)
	m, err := svc.Upload(context.Background(), "p1", "clip.mp4", "video/mp4; codecs=avc1", strings.NewReader("data"), 4)
	require.NoError(t, err)
	assert.Equal(t, "video/mp4", m.ContentType)
	assert.Equal(t, blocks.TypeVideo, BlockTypeFor(m.ContentType))
}

func TestUploadRejects(t *testing.T) {
	svc, _ := newTestService(t, 8)
	ctx := context.Background()

	_, err := svc.Upload(ctx, "p1", "big.bin", "", strings.NewReader("0123456789"), 10)
	assert.True(t, errors.Is(err, ErrTooLarge), "got %v", err)

	_, err = svc.Upload(ctx, "p1", "empty.txt", "text/plain", strings.NewReader(""), 0)
	assert.True(t, errors.Is(err, ErrEmpty), "got %v", err)

	_, err = svc.Upload(ctx, "nope", "a.txt", "text/plain", strings.NewReader("a"), 1)
	assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
}

func TestMemoryObjectsMissing(t *testing.T) {
	objects := NewMemoryObjects("")
	_, _, err := objects.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.Equal(t, "/api/media/k", objects.URL("k"))
}

func TestBlockTypeFor(t *testing.T) {
	assert.Equal(t, blocks.TypeAttachment, BlockTypeFor("application/pdf"))
	assert.Equal(t, blocks.TypeImage, BlockTypeFor("image/gif"))
}
