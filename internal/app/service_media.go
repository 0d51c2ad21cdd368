package app

import (
	"context"
	"io"
	"net/http"
	"time"

	"blockwiki/api/internal/blocks"
	"blockwiki/api/internal/media"
	"blockwiki/api/internal/store"
)

type MediaUpload struct {
	PageID      string
	FileName    string
	ContentType string
	Body        io.Reader
	Size        int64

	// SessionID, when set, places a block showing the upload into that
	// session's canvas after Index within Section.
	SessionID string
	Section   string
	Index     int
}

type MediaView struct {
	ID          string    `json:"id"`
	PageID      string    `json:"pageId"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"createdAt"`
}

type UploadResult struct {
	Media   MediaView     `json:"media"`
	Block   *blocks.Block `json:"block,omitempty"`
	Version uint64        `json:"version,omitempty"`
}

var errMediaUnavailable = domainError(http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "Media storage is not configured", nil)

func (s *Service) MaxUploadBytes() int64 {
	if s.media == nil {
		return media.DefaultMaxBytes
	}
	return s.media.MaxBytes()
}

func (s *Service) UploadMedia(ctx context.Context, in MediaUpload) (UploadResult, error) {
	if s.media == nil {
		return UploadResult{}, errMediaUnavailable
	}
	var sess *Session
	if in.SessionID != "" {
		var err error
		if sess, err = s.Session(in.SessionID); err != nil {
			return UploadResult{}, err
		}
		if sess.PageID != in.PageID {
			return UploadResult{}, validationError("session belongs to another page")
		}
	}

	m, err := s.media.Upload(ctx, in.PageID, in.FileName, in.ContentType, in.Body, in.Size)
	if err != nil {
		return UploadResult{}, err
	}
	result := UploadResult{Media: mediaView(m)}
	s.log.Info().Str("page_id", in.PageID).Str("object_key", m.ObjectKey).Int64("size_bytes", m.SizeBytes).Msg("media uploaded")
	if sess == nil {
		return result, nil
	}

	sc, err := scope(sess.canvas, in.Section)
	if err != nil {
		return result, err
	}
	b := blocks.MakeBlock(media.BlockTypeFor(m.ContentType))
	b.Content = blocks.Text(m.URL)
	if sc.InsertBlockAfter(b, in.Index) {
		result.Block = &b
	}
	result.Version = sess.canvas.Version()
	return result, nil
}

func (s *Service) ListMedia(ctx context.Context, pageID string) ([]MediaView, error) {
	if s.media == nil {
		return nil, errMediaUnavailable
	}
	if _, err := s.store.GetPage(ctx, pageID); err != nil {
		return nil, err
	}
	items, err := s.media.List(ctx, pageID)
	if err != nil {
		return nil, err
	}
	views := make([]MediaView, 0, len(items))
	for _, m := range items {
		views = append(views, mediaView(m))
	}
	return views, nil
}

func (s *Service) OpenMedia(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if s.media == nil {
		return nil, "", errMediaUnavailable
	}
	return s.media.Open(ctx, key)
}

func mediaView(m store.Media) MediaView {
	return MediaView{
		ID:          m.ID,
		PageID:      m.PageID,
		FileName:    m.FileName,
		ContentType: m.ContentType,
		SizeBytes:   m.SizeBytes,
		URL:         m.URL,
		CreatedAt:   m.CreatedAt,
	}
}
