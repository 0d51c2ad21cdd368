package app

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"blockwiki/api/internal/editor"
	"blockwiki/api/internal/export"
	"blockwiki/api/internal/media"
	"blockwiki/api/internal/search"
	"blockwiki/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	log        zerolog.Logger
	router     *mux.Router
}

func NewHTTPServer(service *Service, corsOrigin string, log zerolog.Logger) *HTTPServer {
	s := &HTTPServer{service: service, corsOrigin: corsOrigin, log: log}
	s.router = s.routes()
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(s.router)
}

func (s *HTTPServer) routes() *mux.Router {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet, http.MethodHead)

	api.HandleFunc("/pages", s.handleTree).Methods(http.MethodGet)
	api.HandleFunc("/pages", s.handleCreatePage).Methods(http.MethodPost)
	api.HandleFunc("/pages/{id}", s.handleGetPage).Methods(http.MethodGet)
	api.HandleFunc("/pages/{id}/outline", s.handleOutline).Methods(http.MethodGet)
	api.HandleFunc("/pages/{id}/export", s.handleExport).Methods(http.MethodGet)
	api.HandleFunc("/pages/{id}/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/pages/{id}/history/{hash}", s.handleRevision).Methods(http.MethodGet)
	api.HandleFunc("/pages/{id}/media", s.handleListMedia).Methods(http.MethodGet)
	api.HandleFunc("/pages/{id}/media", s.handleUploadMedia).Methods(http.MethodPost)
	api.HandleFunc("/pages/{id}/sessions", s.handleOpenSession).Methods(http.MethodPost)

	api.HandleFunc("/sessions/{sid}", s.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{sid}", s.handleCloseSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{sid}/blocks", s.handleInsertBlock).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{sid}/blocks/{bid}/{action}", s.handleBlockAction).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{sid}/drop", s.handleDrop).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{sid}/quick-add", s.handleQuickAdd).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{sid}/save", s.handleSave).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{sid}/name", s.handleRename).Methods(http.MethodPut)
	api.HandleFunc("/sessions/{sid}/lock", s.handleLock).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{sid}/lock/ws", s.handleLockStream).Methods(http.MethodGet)

	api.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	api.HandleFunc("/media/{key:.+}", s.handleGetMedia).Methods(http.MethodGet)
	return router
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.service.Tree(r.Context())
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": tree})
}

func (s *HTTPServer) handleCreatePage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string          `json:"name"`
		ParentID string          `json:"parentId"`
		Content  json.RawMessage `json:"content"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	page, err := s.service.CreatePage(r.Context(), CreatePageInput{
		Name:     body.Name,
		ParentID: body.ParentID,
		Content:  body.Content,
	})
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, page)
}

func (s *HTTPServer) handleGetPage(w http.ResponseWriter, r *http.Request) {
	page, err := s.service.Page(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *HTTPServer) handleOutline(w http.ResponseWriter, r *http.Request) {
	headings, err := s.service.Outline(r.Context(), mux.Vars(r)["id"], r.URL.Query().Get("q"))
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"headings": headings})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = string(export.FormatMarkdown)
	}
	result, err := s.service.Export(r.Context(), mux.Vars(r)["id"], format)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	commits, err := s.service.History(r.Context(), mux.Vars(r)["id"], limit)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"commits": commits})
}

func (s *HTTPServer) handleRevision(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	revision, err := s.service.Revision(r.Context(), vars["id"], vars["hash"])
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, revision)
}

func (s *HTTPServer) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Context string `json:"context"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	sess, err := s.service.OpenSession(r.Context(), mux.Vars(r)["id"], body.Context)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.service.SessionView(sess))
}

func (s *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.service.Session(mux.Vars(r)["sid"])
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.service.SessionView(sess))
}

func (s *HTTPServer) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CloseSession(r.Context(), mux.Vars(r)["sid"]); err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleInsertBlock(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type  string `json:"type"`
		Index *int   `json:"index"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	index := -1
	if body.Index != nil {
		index = *body.Index
	}
	result, err := s.service.InsertBlock(mux.Vars(r)["sid"], r.URL.Query().Get("section"), body.Type, index)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleBlockAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var body struct {
		Content  json.RawMessage `json:"content"`
		Type     string          `json:"type"`
		Language string          `json:"language"`
		Confirm  *bool           `json:"confirm"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	result, err := s.service.Act(vars["sid"], vars["bid"], BlockAction{
		Name:     vars["action"],
		Section:  r.URL.Query().Get("section"),
		Content:  body.Content,
		Type:     body.Type,
		Language: body.Language,
		Confirm:  body.Confirm,
	})
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleDrop(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Source editor.DragSource `json:"source"`
		OverID string            `json:"overId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	result, err := s.service.Drop(mux.Vars(r)["sid"], r.URL.Query().Get("section"), body.Source, body.OverID)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleQuickAdd(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	result, err := s.service.QuickAdd(mux.Vars(r)["sid"], r.URL.Query().Get("section"), body.Text)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleSave(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Author string `json:"author"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	result, err := s.service.Save(r.Context(), mux.Vars(r)["sid"], body.Author)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleRename(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	changed, err := s.service.Rename(mux.Vars(r)["sid"], body.Name)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"changed": changed})
}

func (s *HTTPServer) handleLock(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.LockStatus(r.Context(), mux.Vars(r)["sid"])
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lockEvent(status))
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	response := s.service.Search(r.Context(), search.Query{
		Text:           q.Get("q"),
		FilterParentID: q.Get("parentId"),
		Limit:          queryInt(r, "limit", 0),
		Offset:         queryInt(r, "offset", 0),
	})
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleListMedia(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListMedia(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"media": items})
}

func (s *HTTPServer) handleUploadMedia(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.service.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeMappedError(w, r, media.ErrTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "expected multipart form with a file field", nil)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "file is required", nil)
		return
	}
	defer file.Close()

	index := -1
	if raw := r.FormValue("index"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			index = n
		}
	}
	result, err := s.service.UploadMedia(r.Context(), MediaUpload{
		PageID:      mux.Vars(r)["id"],
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
		Size:        header.Size,
		SessionID:   r.FormValue("session"),
		Section:     r.FormValue("section"),
		Index:       index,
	})
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *HTTPServer) handleGetMedia(w http.ResponseWriter, r *http.Request) {
	body, contentType, err := s.service.OpenMedia(r.Context(), mux.Vars(r)["key"])
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	defer body.Close()
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

func (s *HTTPServer) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("request_id", requestID(r.Context())).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
		} else {
			next.ServeHTTP(writer, r)
		}

		s.log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", writer.status).
			Int64("duration_ms", time.Since(started).Milliseconds()).
			Msg("request")
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the lock stream upgrade through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound, "SESSION_NOT_FOUND", "Editing session not found", nil
	case errors.Is(err, editor.ErrBlockNotFound):
		return http.StatusNotFound, "BLOCK_NOT_FOUND", "Block not found", nil
	case errors.Is(err, editor.ErrNotEditing):
		return http.StatusConflict, "NOT_EDITING", "Block is not being edited", nil
	case errors.Is(err, media.ErrObjectNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, media.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File too large", nil
	case errors.Is(err, media.ErrEmpty):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "File is empty", nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "UNSUPPORTED_FORMAT", "Unsupported export format", nil
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export dependency missing", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
