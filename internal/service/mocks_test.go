package service

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/megalinks/megalinks/internal/domain/model"
	"github.com/megalinks/megalinks/internal/megaclient"
	"github.com/megalinks/megalinks/internal/repository"
)

// testLogger — logger, не засоряющий вывод тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mock LinkRepository ---

type mockLinkRepo struct {
	createFn         func(ctx context.Context, link *model.Link) error
	getByIDFn        func(ctx context.Context, id int64) (*model.Link, error)
	getForOwnerFn    func(ctx context.Context, id, owner int64) (*model.Link, error)
	listByOwnerFn    func(ctx context.Context, owner int64, filter model.LinkFilter) ([]*model.Link, error)
	listIDsByOwnerFn func(ctx context.Context, owner int64) ([]int64, error)
	listOwnerIDsFn   func(ctx context.Context) ([]int64, error)
	updateFn         func(ctx context.Context, link *model.Link) error
	updateAnalysisFn func(ctx context.Context, link *model.Link) error
	deleteFn         func(ctx context.Context, id, owner int64) error
	statsFn          func(ctx context.Context, owner int64) (*model.LinkStats, error)
}

var _ repository.LinkRepository = (*mockLinkRepo)(nil)

func (m *mockLinkRepo) Create(ctx context.Context, link *model.Link) error {
	if m.createFn != nil {
		return m.createFn(ctx, link)
	}
	return nil
}

func (m *mockLinkRepo) GetByID(ctx context.Context, id int64) (*model.Link, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockLinkRepo) GetForOwner(ctx context.Context, id, owner int64) (*model.Link, error) {
	if m.getForOwnerFn != nil {
		return m.getForOwnerFn(ctx, id, owner)
	}
	return nil, repository.ErrNotFound
}

func (m *mockLinkRepo) ListByOwner(ctx context.Context, owner int64, filter model.LinkFilter) ([]*model.Link, error) {
	if m.listByOwnerFn != nil {
		return m.listByOwnerFn(ctx, owner, filter)
	}
	return nil, nil
}

func (m *mockLinkRepo) ListIDsByOwner(ctx context.Context, owner int64) ([]int64, error) {
	if m.listIDsByOwnerFn != nil {
		return m.listIDsByOwnerFn(ctx, owner)
	}
	return nil, nil
}

func (m *mockLinkRepo) ListOwnerIDs(ctx context.Context) ([]int64, error) {
	if m.listOwnerIDsFn != nil {
		return m.listOwnerIDsFn(ctx)
	}
	return nil, nil
}

func (m *mockLinkRepo) Update(ctx context.Context, link *model.Link) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, link)
	}
	return nil
}

func (m *mockLinkRepo) UpdateAnalysis(ctx context.Context, link *model.Link) error {
	if m.updateAnalysisFn != nil {
		return m.updateAnalysisFn(ctx, link)
	}
	return nil
}

func (m *mockLinkRepo) Delete(ctx context.Context, id, owner int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id, owner)
	}
	return nil
}

func (m *mockLinkRepo) Stats(ctx context.Context, owner int64) (*model.LinkStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx, owner)
	}
	return &model.LinkStats{}, nil
}

// linkStore — хранилище ссылок в памяти поверх mockLinkRepo.
// Возвращает копии, как настоящий репозиторий.
type linkStore struct {
	mu    sync.Mutex
	links map[int64]*model.Link
}

func newLinkStore(links ...*model.Link) *linkStore {
	s := &linkStore{links: make(map[int64]*model.Link)}
	for _, l := range links {
		s.links[l.ID] = l
	}
	return s
}

func (s *linkStore) get(id int64) *model.Link {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[id]
	if !ok {
		return nil
	}
	cp := *l
	return &cp
}

// setURL имитирует редактирование URL пользователем.
func (s *linkStore) setURL(id int64, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[id].URL = url
}

func (s *linkStore) repo() *mockLinkRepo {
	return &mockLinkRepo{
		getByIDFn: func(_ context.Context, id int64) (*model.Link, error) {
			if l := s.get(id); l != nil {
				return l, nil
			}
			return nil, repository.ErrNotFound
		},
		getForOwnerFn: func(_ context.Context, id, owner int64) (*model.Link, error) {
			if l := s.get(id); l != nil && l.UserID == owner {
				return l, nil
			}
			return nil, repository.ErrNotFound
		},
		updateAnalysisFn: func(_ context.Context, link *model.Link) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			stored, ok := s.links[link.ID]
			if !ok {
				return repository.ErrNotFound
			}
			if stored.URL != link.URL {
				return repository.ErrURLChanged
			}
			cp := *link
			s.links[link.ID] = &cp
			return nil
		},
		listIDsByOwnerFn: func(_ context.Context, owner int64) ([]int64, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			var ids []int64
			for id, l := range s.links {
				if l.UserID == owner {
					ids = append(ids, id)
				}
			}
			slices.Sort(ids)
			return ids, nil
		},
	}
}

// --- Mock UserRepository ---

type mockUserRepo struct {
	createFn          func(ctx context.Context, user *model.User) error
	getByPINHashFn    func(ctx context.Context, pinHash string) (*model.User, error)
	touchLastAccessFn func(ctx context.Context, id int64) error
	existsByPINHashFn func(ctx context.Context, pinHash string) (bool, error)
}

var _ repository.UserRepository = (*mockUserRepo)(nil)

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	user.ID = 1
	return nil
}

func (m *mockUserRepo) GetByPINHash(ctx context.Context, pinHash string) (*model.User, error) {
	if m.getByPINHashFn != nil {
		return m.getByPINHashFn(ctx, pinHash)
	}
	return nil, repository.ErrNotFound
}

func (m *mockUserRepo) TouchLastAccess(ctx context.Context, id int64) error {
	if m.touchLastAccessFn != nil {
		return m.touchLastAccessFn(ctx, id)
	}
	return nil
}

func (m *mockUserRepo) ExistsByPINHash(ctx context.Context, pinHash string) (bool, error) {
	if m.existsByPINHashFn != nil {
		return m.existsByPINHashFn(ctx, pinHash)
	}
	return false, nil
}

// --- Mock NodeFetcher ---

type mockFetcher struct {
	mu      sync.Mutex
	calls   []string
	fetchFn func(ctx context.Context, rootID string) ([]megaclient.Node, error)
}

func (m *mockFetcher) FetchNodes(ctx context.Context, rootID string) ([]megaclient.Node, error) {
	m.mu.Lock()
	m.calls = append(m.calls, rootID)
	m.mu.Unlock()
	if m.fetchFn != nil {
		return m.fetchFn(ctx, rootID)
	}
	return nil, nil
}

// --- Mock LinkAnalyzer ---

type mockAnalyzer struct {
	mu        sync.Mutex
	analyzed  []string
	isMegaFn  func(rawURL string) bool
	analyzeFn func(ctx context.Context, rawURL string) (*model.AnalysisSnapshot, error)
}

func (m *mockAnalyzer) IsMegaURL(rawURL string) bool {
	if m.isMegaFn != nil {
		return m.isMegaFn(rawURL)
	}
	return true
}

func (m *mockAnalyzer) Analyze(ctx context.Context, rawURL string) (*model.AnalysisSnapshot, error) {
	m.mu.Lock()
	m.analyzed = append(m.analyzed, rawURL)
	m.mu.Unlock()
	if m.analyzeFn != nil {
		return m.analyzeFn(ctx, rawURL)
	}
	return &model.AnalysisSnapshot{Name: "MEGA Folder (x...)", Kind: model.LinkTypeFolder, FormattedSize: "0 Bytes"}, nil
}

// --- Fake Pacer ---

// fakePacer считает ожидания, не блокируясь.
type fakePacer struct {
	mu    sync.Mutex
	waits int
	err   error
}

func (p *fakePacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waits++
	return p.err
}

func (p *fakePacer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waits
}

func int64Ptr(v int64) *int64 { return &v }
