package media

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"blockwiki/api/internal/blocks"
	"blockwiki/api/internal/store"
	"blockwiki/api/internal/util"

	"github.com/google/uuid"
)

var (
	ErrTooLarge = errors.New("media file too large")
	ErrEmpty    = errors.New("media file empty")
)

const DefaultMaxBytes = 25 << 20

// Catalog records uploads against their page.
type Catalog interface {
	GetPage(ctx context.Context, id string) (store.Page, error)
	InsertMedia(ctx context.Context, m store.Media) (store.Media, error)
	ListMedia(ctx context.Context, pageID string) ([]store.Media, error)
}

type Service struct {
	objects  ObjectStore
	catalog  Catalog
	maxBytes int64
}

func NewService(objects ObjectStore, catalog Catalog, maxBytes int64) *Service {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Service{objects: objects, catalog: catalog, maxBytes: maxBytes}
}

func (s *Service) MaxBytes() int64 { return s.maxBytes }

// Upload stores r under the page and records it. The content type is sniffed
// from the first bytes when the caller does not supply one.
func (s *Service) Upload(ctx context.Context, pageID, fileName, contentType string, r io.Reader, size int64) (store.Media, error) {
	if size > s.maxBytes {
		return store.Media{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, size, s.maxBytes)
	}
	if size == 0 {
		return store.Media{}, ErrEmpty
	}
	if _, err := s.catalog.GetPage(ctx, pageID); err != nil {
		return store.Media{}, fmt.Errorf("get page: %w", err)
	}

	br := bufio.NewReaderSize(r, 512)
	if contentType == "" || contentType == "application/octet-stream" {
		head, _ := br.Peek(512)
		contentType = http.DetectContentType(head)
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mt
	}

	fileName = path.Base(strings.ReplaceAll(strings.TrimSpace(fileName), `\`, "/"))
	if fileName == "." || fileName == "/" {
		fileName = "upload"
	}
	key := pageID + "/" + util.NewID("m") + strings.ToLower(path.Ext(fileName))

	if err := s.objects.Put(ctx, key, io.LimitReader(br, s.maxBytes), size, contentType); err != nil {
		return store.Media{}, err
	}

	m, err := s.catalog.InsertMedia(ctx, store.Media{
		ID:          uuid.NewString(),
		PageID:      pageID,
		ObjectKey:   key,
		FileName:    fileName,
		ContentType: contentType,
		SizeBytes:   size,
		URL:         s.objects.URL(key),
	})
	if err != nil {
		return store.Media{}, fmt.Errorf("record media: %w", err)
	}
	return m, nil
}

func (s *Service) List(ctx context.Context, pageID string) ([]store.Media, error) {
	return s.catalog.ListMedia(ctx, pageID)
}

func (s *Service) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	return s.objects.Get(ctx, key)
}

// BlockTypeFor picks the block type that displays an upload.
func BlockTypeFor(contentType string) blocks.Type {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return blocks.TypeImage
	case strings.HasPrefix(contentType, "video/"):
		return blocks.TypeVideo
	default:
		return blocks.TypeAttachment
	}
}
