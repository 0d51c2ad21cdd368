package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"blockwiki/api/internal/blocks"
	"blockwiki/api/internal/editlock"
	"blockwiki/api/internal/editor"
	"blockwiki/api/internal/export"
	"blockwiki/api/internal/gitrepo"
	"blockwiki/api/internal/media"
	"blockwiki/api/internal/search"
	"blockwiki/api/internal/store"
	"blockwiki/api/internal/util"
)

const defaultAuthor = "blockwiki"

// PageStore persists pages and their media records.
type PageStore interface {
	ListPages(ctx context.Context) ([]store.Page, error)
	GetPage(ctx context.Context, id string) (store.Page, error)
	PutPage(ctx context.Context, page store.Page) (store.Page, error)
	InsertMedia(ctx context.Context, m store.Media) (store.Media, error)
	ListMedia(ctx context.Context, pageID string) ([]store.Media, error)
	Ping(ctx context.Context) error
}

// History records page snapshots.
type History interface {
	Commit(pageID string, content gitrepo.Content, author, message string) (store.CommitInfo, bool, error)
	Head(pageID string) (gitrepo.Content, store.CommitInfo, error)
	ContentAt(pageID, hash string) (gitrepo.Content, store.CommitInfo, error)
	History(pageID string, limit int) ([]store.CommitInfo, error)
}

// LockOptions configures the edit lock opened with every session.
// Identities is where per-context owner ids live; it defaults to Storage.
type LockOptions struct {
	Storage     editlock.Storage
	Broadcaster editlock.Broadcaster
	Identities  editlock.Storage
	TTL         time.Duration
	Heartbeat   time.Duration
}

type Options struct {
	Store   PageStore
	History History
	Search  *search.Service
	Export  *export.Service
	Media   *media.Service
	Lock    LockOptions
	Logger  zerolog.Logger
}

type Service struct {
	store    PageStore
	history  History
	search   *search.Service
	exporter *export.Service
	media    *media.Service
	lock     LockOptions
	log      zerolog.Logger

	// coordinators outlive the request that opened them
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
}

func New(opts Options) *Service {
	lock := opts.Lock
	if lock.Storage == nil {
		lock.Storage = editlock.NewMemoryStorage()
	}
	if lock.Broadcaster == nil {
		lock.Broadcaster = editlock.NewMemoryBus()
	}
	if lock.Identities == nil {
		lock.Identities = lock.Storage
	}
	exporter := opts.Export
	if exporter == nil {
		exporter = export.NewService(opts.Store)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:    opts.Store,
		history:  opts.History,
		search:   opts.Search,
		exporter: exporter,
		media:    opts.Media,
		lock:     lock,
		log:      opts.Logger.With().Str("component", "app").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		sessions: map[string]*Session{},
	}
}

// Session is one editing context's view of a page: the canvas holding the
// authoritative blocks plus the advisory edit lock.
type Session struct {
	ID      string
	PageID  string
	Context string
	Opened  time.Time

	canvas *editor.Canvas
	lock   *editlock.Coordinator
	done   chan struct{}

	saveMu sync.Mutex
	mu     sync.Mutex
	saved  uint64
}

func (s *Session) Canvas() *editor.Canvas {
	return s.canvas
}

func (s *Session) Lock() *editlock.Coordinator {
	return s.lock
}

// Done is closed when the session is released.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Dirty reports whether the canvas changed since the last save.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canvas.Version() != s.saved
}

func (s *Session) markSaved(version uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if version > s.saved {
		s.saved = version
	}
}

type PageView struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	ParentID  string         `json:"parentId,omitempty"`
	Blocks    []blocks.Block `json:"content"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

type PageNodeView struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	ParentID  string         `json:"parentId,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Children  []PageNodeView `json:"children"`
}

type CommitView struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type RevisionView struct {
	Commit  CommitView       `json:"commit"`
	Name    string           `json:"name"`
	Blocks  []blocks.Block   `json:"content"`
	Changes []gitrepo.Change `json:"changes"`
}

type SessionView struct {
	ID       string          `json:"id"`
	PageID   string          `json:"pageId"`
	Context  string          `json:"context,omitempty"`
	Owner    string          `json:"owner"`
	Version  uint64          `json:"version"`
	Dirty    bool            `json:"dirty"`
	Document blocks.Document `json:"document"`
	Lock     editlock.Status `json:"lock"`
}

type SaveResult struct {
	Page    PageView        `json:"page"`
	Commit  *CommitView     `json:"commit,omitempty"`
	Created bool            `json:"created"`
	Lock    editlock.Status `json:"lock"`
}

type CreatePageInput struct {
	Name     string
	ParentID string
	Content  []byte
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Bootstrap seeds a welcome page into an empty store.
func (s *Service) Bootstrap(ctx context.Context) error {
	pages, err := s.store.ListPages(ctx)
	if err != nil {
		return err
	}
	if len(pages) > 0 {
		return nil
	}
	heading := blocks.MakeBlock(blocks.TypeHeading)
	heading.Content = blocks.Text("Welcome")
	intro := blocks.MakeBlock(blocks.TypeText)
	intro.Content = blocks.Text("Open this page to start adding blocks.")
	content, err := blocks.EncodeBlocks([]blocks.Block{heading, intro})
	if err != nil {
		return err
	}
	_, err = s.CreatePage(ctx, CreatePageInput{Name: "Welcome", Content: content})
	return err
}

// Reindex pushes every stored page into the search indexes.
func (s *Service) Reindex(ctx context.Context) error {
	if s.search == nil {
		return nil
	}
	pages, err := s.store.ListPages(ctx)
	if err != nil {
		return err
	}
	records := make([]search.PageRecord, 0, len(pages))
	for _, p := range pages {
		full, err := s.store.GetPage(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("load page %s: %w", p.ID, err)
		}
		records = append(records, pageRecord(full))
	}
	s.search.ReindexAll(records)
	return nil
}

func (s *Service) Tree(ctx context.Context) ([]PageNodeView, error) {
	pages, err := s.store.ListPages(ctx)
	if err != nil {
		return nil, err
	}
	return nodeViews(store.BuildTree(pages)), nil
}

func (s *Service) CreatePage(ctx context.Context, input CreatePageInput) (PageView, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return PageView{}, validationError("name is required")
	}
	parentID := strings.TrimSpace(input.ParentID)
	if parentID != "" {
		if _, err := s.store.GetPage(ctx, parentID); err != nil {
			return PageView{}, err
		}
	}
	list, err := blocks.DecodeBlocks(input.Content)
	if err != nil {
		return PageView{}, validationError("content must be a block array")
	}
	content, err := blocks.EncodeBlocks(list)
	if err != nil {
		return PageView{}, err
	}

	saved, err := s.store.PutPage(ctx, store.Page{
		ID:         util.NewID("pg"),
		Name:       name,
		ParentID:   optionalString(parentID),
		Content:    string(content),
		SearchText: blocks.PlainText(list),
	})
	if err != nil {
		return PageView{}, err
	}
	s.record(saved.ID, gitrepo.Content{Name: name, Blocks: content}, defaultAuthor, "Create page")
	s.index(saved)
	s.log.Info().Str("page_id", saved.ID).Msg("page created")
	return pageView(saved, list), nil
}

func (s *Service) Page(ctx context.Context, id string) (PageView, error) {
	page, err := s.store.GetPage(ctx, id)
	if err != nil {
		return PageView{}, err
	}
	return pageView(page, decodePage(page)), nil
}

func (s *Service) Outline(ctx context.Context, id, query string) ([]blocks.Heading, error) {
	page, err := s.store.GetPage(ctx, id)
	if err != nil {
		return nil, err
	}
	return blocks.Outline(decodePage(page), query), nil
}

func (s *Service) Export(ctx context.Context, id, format string) (*export.Result, error) {
	f, ok := export.ParseFormat(format)
	if !ok {
		return nil, fmt.Errorf("%w: %q", export.ErrUnsupportedFormat, format)
	}
	return s.exporter.Export(ctx, export.Request{PageID: id, Format: f})
}

func (s *Service) History(ctx context.Context, id string, limit int) ([]CommitView, error) {
	if _, err := s.store.GetPage(ctx, id); err != nil {
		return nil, err
	}
	views := []CommitView{}
	if s.history == nil {
		return views, nil
	}
	commits, err := s.history.History(id, limit)
	if err != nil {
		return nil, err
	}
	for _, c := range commits {
		views = append(views, commitView(c))
	}
	return views, nil
}

// Revision returns the page as committed at hash together with what changed
// between that revision and the current head.
func (s *Service) Revision(ctx context.Context, id, hash string) (RevisionView, error) {
	if _, err := s.store.GetPage(ctx, id); err != nil {
		return RevisionView{}, err
	}
	if s.history == nil {
		return RevisionView{}, store.ErrNotFound
	}
	content, info, err := s.history.ContentAt(id, hash)
	if err != nil {
		return RevisionView{}, err
	}
	list, err := blocks.DecodeBlocks(content.Blocks)
	if err != nil {
		return RevisionView{}, fmt.Errorf("decode revision %s: %w", hash, err)
	}
	changes := []gitrepo.Change{}
	if head, _, err := s.history.Head(id); err == nil {
		if diff := gitrepo.DiffBlocks(content, head); diff != nil {
			changes = diff
		}
	}
	return RevisionView{Commit: commitView(info), Name: content.Name, Blocks: list, Changes: changes}, nil
}

func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(ctx, q)
}

// OpenSession hydrates a canvas from the stored page and starts the edit
// lock for the calling context. Contexts that reopen with the same key keep
// their owner id and so their lease.
func (s *Service) OpenSession(ctx context.Context, pageID, contextKey string) (*Session, error) {
	page, err := s.store.GetPage(ctx, pageID)
	if err != nil {
		return nil, err
	}
	doc := blocks.Document{
		ID:     page.ID,
		Name:   page.Name,
		Blocks: decodePage(page),
	}
	if page.ParentID != nil {
		doc.ParentID = *page.ParentID
	}

	contextKey = strings.TrimSpace(contextKey)
	owner := uuid.NewString()
	if contextKey != "" {
		id, err := editlock.Identity(ctx, s.lock.Identities, contextKey)
		if err != nil {
			s.log.Warn().Err(err).Str("context", contextKey).Msg("owner id unavailable, using a fresh one")
		} else {
			owner = id
		}
	}

	coord := editlock.NewCoordinator(editlock.Config{
		DocID:       page.ID,
		Owner:       owner,
		TTL:         s.lock.TTL,
		Heartbeat:   s.lock.Heartbeat,
		Storage:     s.lock.Storage,
		Broadcaster: s.lock.Broadcaster,
		Logger:      s.log,
	})
	if err := coord.Start(s.ctx); err != nil {
		return nil, fmt.Errorf("start edit lock: %w", err)
	}

	sess := &Session{
		ID:      uuid.NewString(),
		PageID:  page.ID,
		Context: contextKey,
		Opened:  time.Now().UTC(),
		canvas:  editor.NewCanvas(doc),
		lock:    coord,
		done:    make(chan struct{}),
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.log.Info().
		Str("session_id", sess.ID).
		Str("page_id", page.ID).
		Str("lock_state", string(coord.Status().State)).
		Msg("editing session opened")
	return sess, nil
}

func (s *Service) Session(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// CloseSession releases the session's lease. Unsaved edits are dropped.
func (s *Service) CloseSession(ctx context.Context, id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.release(ctx, sess)
	return nil
}

// Close releases every open session, the way a closing context gives up its
// leases.
func (s *Service) Close(ctx context.Context) {
	s.mu.Lock()
	open := make([]*Session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		open = append(open, sess)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, sess := range open {
		s.release(ctx, sess)
	}
	s.cancel()
}

func (s *Service) release(ctx context.Context, sess *Session) {
	sess.lock.Release(ctx)
	close(sess.done)
	s.log.Info().Str("session_id", sess.ID).Str("page_id", sess.PageID).Bool("dirty", sess.Dirty()).Msg("editing session closed")
}

func (s *Service) SessionView(sess *Session) SessionView {
	return SessionView{
		ID:       sess.ID,
		PageID:   sess.PageID,
		Context:  sess.Context,
		Owner:    sess.lock.Owner(),
		Version:  sess.canvas.Version(),
		Dirty:    sess.Dirty(),
		Document: sess.canvas.Document(),
		Lock:     sess.lock.Status(),
	}
}

// LockStatus re-reads the shared lease without claiming it.
func (s *Service) LockStatus(ctx context.Context, id string) (editlock.Status, error) {
	sess, err := s.Session(id)
	if err != nil {
		return editlock.Status{}, err
	}
	return sess.lock.Check(ctx), nil
}

func (s *Service) Rename(id, name string) (bool, error) {
	sess, err := s.Session(id)
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(name) == "" {
		return false, validationError("name is required")
	}
	return sess.canvas.Rename(name), nil
}

// Save writes the whole block list, then records it in history and the
// search index. The lease is advisory and never blocks a save.
func (s *Service) Save(ctx context.Context, id, author string) (SaveResult, error) {
	sess, err := s.Session(id)
	if err != nil {
		return SaveResult{}, err
	}
	sess.saveMu.Lock()
	defer sess.saveMu.Unlock()

	version := sess.canvas.Version()
	doc := sess.canvas.Document()
	content, err := blocks.EncodeBlocks(doc.Blocks)
	if err != nil {
		return SaveResult{}, err
	}

	saved, err := s.store.PutPage(ctx, store.Page{
		ID:         doc.ID,
		Name:       doc.Name,
		ParentID:   optionalString(doc.ParentID),
		Content:    string(content),
		SearchText: blocks.PlainText(doc.Blocks),
	})
	if err != nil {
		return SaveResult{}, err
	}
	sess.markSaved(version)

	if strings.TrimSpace(author) == "" {
		author = defaultAuthor
	}
	result := SaveResult{Page: pageView(saved, doc.Blocks)}
	if info, created, ok := s.record(doc.ID, gitrepo.Content{Name: doc.Name, Blocks: content}, author, "Save page"); ok {
		view := commitView(info)
		result.Commit = &view
		result.Created = created
	}
	s.index(saved)
	result.Lock = sess.lock.Status()

	s.log.Info().
		Str("session_id", sess.ID).
		Str("page_id", doc.ID).
		Uint64("version", version).
		Bool("committed", result.Created).
		Msg("page saved")
	return result, nil
}

// record commits a snapshot. History is secondary to the page row, so a
// failure is logged rather than returned.
func (s *Service) record(pageID string, content gitrepo.Content, author, message string) (store.CommitInfo, bool, bool) {
	if s.history == nil {
		return store.CommitInfo{}, false, false
	}
	info, created, err := s.history.Commit(pageID, content, author, message)
	if err != nil {
		s.log.Error().Err(err).Str("page_id", pageID).Msg("commit page history")
		return store.CommitInfo{}, false, false
	}
	return info, created, true
}

func (s *Service) index(page store.Page) {
	if s.search == nil {
		return
	}
	s.search.IndexPage(pageRecord(page))
}

func pageRecord(page store.Page) search.PageRecord {
	rec := search.PageRecord{ID: page.ID, Name: page.Name, Text: page.SearchText}
	if page.ParentID != nil {
		rec.ParentID = *page.ParentID
	}
	return rec
}

// decodePage reads a stored block list. Content that is not a block list at
// all opens as a single text block so the page stays editable.
func decodePage(page store.Page) []blocks.Block {
	list, err := blocks.DecodeBlocks([]byte(page.Content))
	if err != nil {
		b := blocks.MakeBlock(blocks.TypeText)
		b.Content = blocks.Text(page.Content)
		return []blocks.Block{b}
	}
	return list
}

func pageView(page store.Page, list []blocks.Block) PageView {
	if list == nil {
		list = []blocks.Block{}
	}
	view := PageView{
		ID:        page.ID,
		Name:      page.Name,
		Blocks:    list,
		CreatedAt: page.CreatedAt,
		UpdatedAt: page.UpdatedAt,
	}
	if page.ParentID != nil {
		view.ParentID = *page.ParentID
	}
	return view
}

func nodeViews(nodes []store.PageNode) []PageNodeView {
	views := make([]PageNodeView, 0, len(nodes))
	for _, n := range nodes {
		v := PageNodeView{ID: n.ID, Name: n.Name, UpdatedAt: n.UpdatedAt, Children: nodeViews(n.Children)}
		if n.ParentID != nil {
			v.ParentID = *n.ParentID
		}
		views = append(views, v)
	}
	return views
}

func commitView(c store.CommitInfo) CommitView {
	return CommitView{Hash: c.Hash, Message: c.Message, Author: c.Author, CreatedAt: c.CreatedAt}
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
