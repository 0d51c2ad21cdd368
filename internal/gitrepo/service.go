package gitrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"blockwiki/api/internal/blocks"
	"blockwiki/api/internal/store"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	contentFile = "content.json"
	mainBranch  = "main"
)

// Content is the snapshot committed for a page on every save.
type Content struct {
	Name   string          `json:"name"`
	Blocks json.RawMessage `json:"blocks"`
}

// Service keeps one git repository per page under baseDir.
type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Commit records content as the new head of the page's history, creating the
// repository on first use. When content matches the current head nothing is
// committed and the head commit is returned with created=false.
func (s *Service) Commit(pageID string, content Content, author, message string) (info store.CommitInfo, created bool, err error) {
	lock := s.pageLock(pageID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(pageID)
	if err != nil {
		return store.CommitInfo{}, false, err
	}

	if head, err := headCommit(repo); err == nil {
		current, err := readContentFromCommit(head)
		if err == nil && !HasChanges(current, content) {
			return toCommitInfo(head), false, nil
		}
	} else if !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return store.CommitInfo{}, false, err
	}

	hash, err := s.commit(repo, content, author, message)
	if err != nil {
		return store.CommitInfo{}, false, err
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return store.CommitInfo{}, false, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), true, nil
}

// Head returns the latest committed content of a page.
func (s *Service) Head(pageID string) (Content, store.CommitInfo, error) {
	lock := s.pageLock(pageID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(pageID)
	if err != nil {
		return Content{}, store.CommitInfo{}, err
	}
	commitObj, err := headCommit(repo)
	if err != nil {
		return Content{}, store.CommitInfo{}, fmt.Errorf("resolve head: %w", err)
	}
	content, err := readContentFromCommit(commitObj)
	if err != nil {
		return Content{}, store.CommitInfo{}, err
	}
	return content, toCommitInfo(commitObj), nil
}

// ContentAt returns the content committed at hash (full or abbreviated).
func (s *Service) ContentAt(pageID, hash string) (Content, store.CommitInfo, error) {
	lock := s.pageLock(pageID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(pageID)
	if err != nil {
		return Content{}, store.CommitInfo{}, err
	}
	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return Content{}, store.CommitInfo{}, err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if err != nil {
		return Content{}, store.CommitInfo{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	content, err := readContentFromCommit(commitObj)
	if err != nil {
		return Content{}, store.CommitInfo{}, err
	}
	return content, toCommitInfo(commitObj), nil
}

// History lists commits newest first. A page that was never saved has an
// empty history.
func (s *Service) History(pageID string, limit int) ([]store.CommitInfo, error) {
	lock := s.pageLock(pageID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(pageID)
	if errors.Is(err, store.ErrNotFound) {
		return []store.CommitInfo{}, nil
	}
	if err != nil {
		return nil, err
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", mainBranch, err)
	}
	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]store.CommitInfo, 0, max(limit, 0))
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

func (s *Service) repoPath(pageID string) string {
	return filepath.Join(s.baseDir, pageID)
}

func (s *Service) pageLock(pageID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[pageID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[pageID] = lock
	return lock
}

func (s *Service) open(pageID string) (*git.Repository, error) {
	repo, err := git.PlainOpen(s.repoPath(pageID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, nil
}

func (s *Service) openOrInit(pageID string) (*git.Repository, error) {
	repo, err := s.open(pageID)
	if err == nil || !errors.Is(err, store.ErrNotFound) {
		return repo, err
	}

	path := s.repoPath(pageID)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(mainBranch))); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return repo, nil
}

func (s *Service) commit(repo *git.Repository, content Content, author, message string) (plumbing.Hash, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}

	if len(content.Blocks) == 0 {
		content.Blocks = json.RawMessage("[]")
	}
	payload, err := json.Marshal(content)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("marshal content: %w", err)
	}

	repoRoot := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(repoRoot, contentFile), append(payload, '\n'), 0o644); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("write %s: %w", contentFile, err)
	}
	if _, err := worktree.Add(contentFile); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("git add content: %w", err)
	}

	if author == "" {
		author = "blockwiki"
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@local.blockwiki.dev", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit content: %w", err)
	}
	return hash, nil
}

func headCommit(repo *git.Repository) (*object.Commit, error) {
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
	if err != nil {
		return nil, err
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("load commit object: %w", err)
	}
	return commitObj, nil
}

func readContentFromCommit(commitObj *object.Commit) (Content, error) {
	file, err := commitObj.File(contentFile)
	if err != nil {
		return Content{}, fmt.Errorf("load %s from commit: %w", contentFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return Content{}, fmt.Errorf("open content reader: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return Content{}, fmt.Errorf("read content bytes: %w", err)
	}
	var content Content
	if err := json.Unmarshal(data, &content); err != nil {
		return Content{}, fmt.Errorf("decode commit content: %w", err)
	}
	return content, nil
}

// HasChanges reports whether two snapshots differ in name or in any block.
func HasChanges(from, to Content) bool {
	if from.Name != to.Name {
		return true
	}
	return len(DiffBlocks(from, to)) > 0
}

// ChangeKind classifies a block difference between two snapshots.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
	ChangeModified ChangeKind = "modified"
	ChangeMoved    ChangeKind = "moved"
)

type Change struct {
	BlockID string     `json:"blockId"`
	Type    string     `json:"type"`
	Kind    ChangeKind `json:"kind"`
}

// DiffBlocks compares the top-level blocks of two snapshots by id. A block
// whose own content or descendants changed is modified; a block whose
// position among the surviving blocks changed is moved.
func DiffBlocks(from, to Content) []Change {
	before := decodeOrEmpty(from.Blocks)
	after := decodeOrEmpty(to.Blocks)

	beforeByID := make(map[string]blocks.Block, len(before))
	for _, b := range before {
		beforeByID[b.ID] = b
	}
	afterByID := make(map[string]blocks.Block, len(after))
	for _, b := range after {
		afterByID[b.ID] = b
	}

	changes := make([]Change, 0)
	var keptBefore, keptAfter []string
	for _, b := range before {
		if _, ok := afterByID[b.ID]; !ok {
			changes = append(changes, Change{BlockID: b.ID, Type: string(b.Type), Kind: ChangeRemoved})
			continue
		}
		keptBefore = append(keptBefore, b.ID)
	}
	for _, b := range after {
		old, ok := beforeByID[b.ID]
		if !ok {
			changes = append(changes, Change{BlockID: b.ID, Type: string(b.Type), Kind: ChangeAdded})
			continue
		}
		keptAfter = append(keptAfter, b.ID)
		if !blocks.EqualBlock(old, b) {
			changes = append(changes, Change{BlockID: b.ID, Type: string(b.Type), Kind: ChangeModified})
		}
	}
	for i := range keptAfter {
		if keptBefore[i] != keptAfter[i] {
			b := afterByID[keptAfter[i]]
			changes = append(changes, Change{BlockID: b.ID, Type: string(b.Type), Kind: ChangeMoved})
		}
	}
	return changes
}

func decodeOrEmpty(raw json.RawMessage) []blocks.Block {
	list, err := blocks.DecodeBlocks(raw)
	if err != nil {
		return nil
	}
	return list
}

func toCommitInfo(commitObj *object.Commit) store.CommitInfo {
	return store.CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
