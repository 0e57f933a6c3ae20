package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/megalinks/megalinks/internal/api/middleware"
	"github.com/megalinks/megalinks/internal/domain/model"
	"github.com/megalinks/megalinks/internal/megaclient"
	"github.com/megalinks/megalinks/internal/service"
)

// --- Моки ---

type mockLinkManager struct {
	createFn         func(ctx context.Context, owner int64, in service.LinkInput) (*model.Link, error)
	getFn            func(ctx context.Context, owner, id int64) (*model.Link, error)
	listFn           func(ctx context.Context, owner int64, filter model.LinkFilter) ([]*model.Link, error)
	updateFn         func(ctx context.Context, owner, id int64, in service.LinkInput) (*model.Link, error)
	deleteFn         func(ctx context.Context, owner, id int64) error
	refreshFn        func(ctx context.Context, owner, id int64) (*model.Link, error)
	refreshAllFn     func(ctx context.Context, owner int64) (*model.RefreshAllResult, error)
	analysisStatusFn func(ctx context.Context, owner int64) (*service.AnalysisStatus, error)
}

func (m *mockLinkManager) Create(ctx context.Context, owner int64, in service.LinkInput) (*model.Link, error) {
	if m.createFn != nil {
		return m.createFn(ctx, owner, in)
	}
	return &model.Link{ID: 1, UserID: owner, Title: in.Title, URL: in.URL}, nil
}

func (m *mockLinkManager) Get(ctx context.Context, owner, id int64) (*model.Link, error) {
	if m.getFn != nil {
		return m.getFn(ctx, owner, id)
	}
	return nil, service.ErrNotFound
}

func (m *mockLinkManager) List(ctx context.Context, owner int64, filter model.LinkFilter) ([]*model.Link, error) {
	if m.listFn != nil {
		return m.listFn(ctx, owner, filter)
	}
	return nil, nil
}

func (m *mockLinkManager) Update(ctx context.Context, owner, id int64, in service.LinkInput) (*model.Link, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, owner, id, in)
	}
	return nil, service.ErrNotFound
}

func (m *mockLinkManager) Delete(ctx context.Context, owner, id int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, owner, id)
	}
	return nil
}

func (m *mockLinkManager) Refresh(ctx context.Context, owner, id int64) (*model.Link, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, owner, id)
	}
	return nil, service.ErrNotFound
}

func (m *mockLinkManager) RefreshAll(ctx context.Context, owner int64) (*model.RefreshAllResult, error) {
	if m.refreshAllFn != nil {
		return m.refreshAllFn(ctx, owner)
	}
	return &model.RefreshAllResult{}, nil
}

func (m *mockLinkManager) AnalysisStatus(ctx context.Context, owner int64) (*service.AnalysisStatus, error) {
	if m.analysisStatusFn != nil {
		return m.analysisStatusFn(ctx, owner)
	}
	return &service.AnalysisStatus{FormattedTotalSize: "0 B"}, nil
}

type mockAuthManager struct {
	registerFn func(ctx context.Context, pin, displayName string) (*model.User, error)
	loginFn    func(ctx context.Context, pin string) (service.Session, error)
	checkPINFn func(ctx context.Context, pin string) (bool, error)
	loggedOut  []string
	sessions   map[string]service.Session
}

func (m *mockAuthManager) Register(ctx context.Context, pin, displayName string) (*model.User, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, pin, displayName)
	}
	return &model.User{ID: 1, DisplayName: displayName}, nil
}

func (m *mockAuthManager) Login(ctx context.Context, pin string) (service.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, pin)
	}
	return service.Session{}, service.ErrUnauthorized
}

func (m *mockAuthManager) Logout(sessionID string) {
	m.loggedOut = append(m.loggedOut, sessionID)
}

func (m *mockAuthManager) CheckPIN(ctx context.Context, pin string) (bool, error) {
	if m.checkPINFn != nil {
		return m.checkPINFn(ctx, pin)
	}
	return true, nil
}

func (m *mockAuthManager) SessionTTL() int {
	return 3600
}

// Authenticate — реализация middleware.Authenticator для тестового роутера.
func (m *mockAuthManager) Authenticate(sessionID string) (service.Session, error) {
	s, ok := m.sessions[sessionID]
	if !ok {
		return service.Session{}, service.ErrUnauthorized
	}
	return s, nil
}

type mockURLAnalyzer struct {
	analyzeFn func(ctx context.Context, rawURL string) (*model.AnalysisSnapshot, error)
}

func (m *mockURLAnalyzer) IsMegaURL(rawURL string) bool {
	return strings.Contains(rawURL, "mega.nz") || strings.Contains(rawURL, "mega.co.nz")
}

func (m *mockURLAnalyzer) Analyze(ctx context.Context, rawURL string) (*model.AnalysisSnapshot, error) {
	if m.analyzeFn != nil {
		return m.analyzeFn(ctx, rawURL)
	}
	return &model.AnalysisSnapshot{Kind: model.LinkTypeFolder}, nil
}

type stubChecker struct {
	status, message string
}

func (s stubChecker) CheckReady() (string, string) {
	return s.status, s.message
}

type stubDeps map[string]bool

func (s stubDeps) Health() map[string]bool {
	return s
}

// --- Хелперы ---

const testSessionID = "sess-1"

type testEnv struct {
	links    *mockLinkManager
	auth     *mockAuthManager
	analyzer *mockURLAnalyzer
	router   chi.Router
}

func newTestEnv(t *testing.T, pg ReadinessChecker) *testEnv {
	t.Helper()
	env := &testEnv{
		links: &mockLinkManager{},
		auth: &mockAuthManager{sessions: map[string]service.Session{
			testSessionID: {ID: testSessionID, UserID: 42, DisplayName: "User 1234"},
		}},
		analyzer: &mockURLAnalyzer{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewAPIHandler(
		NewHealthHandler(pg, stubDeps{"postgresql": true, "mega-api": false}),
		env.links, env.auth, env.analyzer, true, logger,
	)
	env.router = chi.NewRouter()
	h.Mount(env.router, env.auth)
	return env
}

// do выполняет запрос. authed — добавить cookie активной сессии.
func (e *testEnv) do(t *testing.T, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if authed {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: testSessionID})
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("не удалось разобрать тело %q: %v", rec.Body.String(), err)
	}
	return v
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) errorResponse {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("статус = %d, ожидался %d (тело %s)", rec.Code, status, rec.Body.String())
	}
	body := decodeBody[errorResponse](t, rec)
	if body.Error.Code != code {
		t.Errorf("code = %q, ожидался %q", body.Error.Code, code)
	}
	return body
}

func analyzedLink(id, owner int64) *model.Link {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	link := &model.Link{ID: id, UserID: owner, Title: "Видео", URL: "https://mega.nz/folder/abc#key"}
	link.ApplySnapshot(&model.AnalysisSnapshot{
		Name: "MEGA Folder (abc...)", Kind: model.LinkTypeFolder,
		TotalSizeBytes: 2048, FileCount: 2, VideoCount: 1, ImageCount: 1, FormattedSize: "2 KB",
	}, now)
	return link
}

// --- Health ---

func TestHealth(t *testing.T) {
	env := newTestEnv(t, stubChecker{status: "ok"})

	rec := env.do(t, http.MethodGet, "/health/live", "", false)
	if rec.Code != http.StatusOK {
		t.Errorf("live статус = %d, ожидался 200", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/health/ready", "", false)
	if rec.Code != http.StatusOK {
		t.Errorf("ready статус = %d, ожидался 200", rec.Code)
	}
	ready := decodeBody[healthReadyResponse](t, rec)
	if ready.Status != statusOK {
		t.Errorf("ready status = %q, ожидался ok", ready.Status)
	}
	if ready.Dependencies["mega-api"] {
		t.Error("mega-api должен быть false")
	}

	rec = env.do(t, http.MethodGet, "/api/v1/health/ping", "", false)
	if rec.Body.String() != "pong" {
		t.Errorf("ping = %q, ожидался pong", rec.Body.String())
	}
}

func TestHealthReady_Fail(t *testing.T) {
	env := newTestEnv(t, stubChecker{status: "fail", message: "connection refused"})
	rec := env.do(t, http.MethodGet, "/health/ready", "", false)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("статус = %d, ожидался 503", rec.Code)
	}

	env = newTestEnv(t, nil)
	rec = env.do(t, http.MethodGet, "/health/ready", "", false)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("статус без checker = %d, ожидался 503", rec.Code)
	}
}

func TestOverallStatus(t *testing.T) {
	if got := overallStatus("ok", "degraded"); got != statusDegraded {
		t.Errorf("overallStatus = %q, ожидался degraded", got)
	}
	if got := overallStatus("degraded", "fail"); got != statusFail {
		t.Errorf("overallStatus = %q, ожидался fail", got)
	}
	if got := overallStatus(); got != statusOK {
		t.Errorf("overallStatus = %q, ожидался ok", got)
	}
}

// --- Auth ---

func TestRegister(t *testing.T) {
	env := newTestEnv(t, nil)
	env.auth.registerFn = func(_ context.Context, pin, name string) (*model.User, error) {
		if pin != "1234" {
			t.Errorf("pin = %q, ожидался 1234", pin)
		}
		return &model.User{ID: 5, DisplayName: "User 1234"}, nil
	}

	rec := env.do(t, http.MethodPost, "/api/v1/auth/register", `{"pin":"1234"}`, false)
	if rec.Code != http.StatusCreated {
		t.Fatalf("статус = %d, ожидался 201", rec.Code)
	}
	user := decodeBody[userResponse](t, rec)
	if user.ID != 5 || user.DisplayName != "User 1234" {
		t.Errorf("user = %+v", user)
	}
}

func TestRegister_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
		code   string
	}{
		{"conflict", `{"pin":"1234"}`, fmt.Errorf("%w: PIN занят", service.ErrConflict), http.StatusConflict, "CONFLICT"},
		{"validation", `{"pin":"12"}`, fmt.Errorf("%w: PIN", service.ErrValidation), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad json", `{"pin":`, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown field", `{"pin":"1234","role":"admin"}`, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"internal", `{"pin":"1234"}`, errors.New("db down"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.auth.registerFn = func(context.Context, string, string) (*model.User, error) {
				return nil, tt.err
			}
			rec := env.do(t, http.MethodPost, "/api/v1/auth/register", tt.body, false)
			assertError(t, rec, tt.status, tt.code)
		})
	}
}

func TestLogin_SetsCookie(t *testing.T) {
	env := newTestEnv(t, nil)
	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	env.auth.loginFn = func(_ context.Context, pin string) (service.Session, error) {
		return service.Session{ID: "new-session", UserID: 9, DisplayName: "Аня", ExpiresAt: expires}, nil
	}

	rec := env.do(t, http.MethodPost, "/api/v1/auth/login", `{"pin":"4321"}`, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies = %d, ожидался 1", len(cookies))
	}
	c := cookies[0]
	if c.Name != middleware.SessionCookieName || c.Value != "new-session" {
		t.Errorf("cookie = %s=%s", c.Name, c.Value)
	}
	if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode {
		t.Errorf("флаги cookie: HttpOnly=%v Secure=%v SameSite=%v", c.HttpOnly, c.Secure, c.SameSite)
	}
	if c.MaxAge != 3600 {
		t.Errorf("MaxAge = %d, ожидался 3600", c.MaxAge)
	}

	body := decodeBody[sessionResponse](t, rec)
	if body.UserID != 9 || !body.ExpiresAt.Equal(expires) {
		t.Errorf("session = %+v", body)
	}
}

func TestLogin_WrongPIN(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/api/v1/auth/login", `{"pin":"0000"}`, false)
	assertError(t, rec, http.StatusUnauthorized, "UNAUTHORIZED")
	if len(rec.Result().Cookies()) != 0 {
		t.Error("cookie не должен устанавливаться при ошибке входа")
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/logout", "", true)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("статус = %d, ожидался 204", rec.Code)
	}
	if len(env.auth.loggedOut) != 1 || env.auth.loggedOut[0] != testSessionID {
		t.Errorf("loggedOut = %v", env.auth.loggedOut)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Errorf("ожидалось удаление cookie, получено %v", cookies)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/auth/logout", "", false)
	if rec.Code != http.StatusNoContent {
		t.Errorf("logout без сессии: статус = %d, ожидался 204", rec.Code)
	}
}

func TestMe(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/auth/me", "", false)
	assertError(t, rec, http.StatusUnauthorized, "UNAUTHORIZED")

	rec = env.do(t, http.MethodGet, "/api/v1/auth/me", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}
	body := decodeBody[sessionResponse](t, rec)
	if body.UserID != 42 || body.DisplayName != "User 1234" {
		t.Errorf("me = %+v", body)
	}
}

func TestCheckPIN(t *testing.T) {
	env := newTestEnv(t, nil)
	env.auth.checkPINFn = func(_ context.Context, pin string) (bool, error) {
		if pin == "abc" {
			return false, fmt.Errorf("%w: PIN должен состоять из цифр", service.ErrValidation)
		}
		return pin != "1111", nil
	}

	rec := env.do(t, http.MethodGet, "/api/v1/auth/check-pin/1111", "", false)
	if got := decodeBody[checkPINResponse](t, rec); got.Available {
		t.Error("PIN 1111 должен быть занят")
	}
	rec = env.do(t, http.MethodGet, "/api/v1/auth/check-pin/2222", "", false)
	if got := decodeBody[checkPINResponse](t, rec); !got.Available {
		t.Error("PIN 2222 должен быть свободен")
	}
	rec = env.do(t, http.MethodGet, "/api/v1/auth/check-pin/abc", "", false)
	assertError(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")
}

// --- Links ---

func TestLinks_RequireSession(t *testing.T) {
	env := newTestEnv(t, nil)
	paths := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/links"},
		{http.MethodPost, "/api/v1/links"},
		{http.MethodGet, "/api/v1/links/1"},
		{http.MethodPost, "/api/v1/links/1/refresh"},
		{http.MethodPost, "/api/v1/links/refresh-all"},
		{http.MethodGet, "/api/v1/links/analysis-status"},
		{http.MethodPost, "/api/v1/analyze"},
	}
	for _, p := range paths {
		rec := env.do(t, p.method, p.path, "", false)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: статус = %d, ожидался 401", p.method, p.path, rec.Code)
		}
	}
}

func TestListLinks_Filter(t *testing.T) {
	env := newTestEnv(t, nil)
	var got model.LinkFilter
	var gotOwner int64
	env.links.listFn = func(_ context.Context, owner int64, filter model.LinkFilter) ([]*model.Link, error) {
		gotOwner = owner
		got = filter
		return []*model.Link{analyzedLink(1, owner), {ID: 2, UserID: owner, Title: "Без анализа"}}, nil
	}

	rec := env.do(t, http.MethodGet, "/api/v1/links?tag=video&search=cats&active=true", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}
	if gotOwner != 42 {
		t.Errorf("owner = %d, ожидался 42", gotOwner)
	}
	if got.Tag == nil || *got.Tag != "video" {
		t.Errorf("Tag = %v", got.Tag)
	}
	if got.Search == nil || *got.Search != "cats" {
		t.Errorf("Search = %v", got.Search)
	}
	if got.IsActive == nil || !*got.IsActive {
		t.Errorf("IsActive = %v", got.IsActive)
	}

	items := decodeBody[[]linkResponse](t, rec)
	if len(items) != 2 {
		t.Fatalf("items = %d, ожидалось 2", len(items))
	}
	if items[0].AnalysisStatus != model.AnalysisStatusActive || items[0].VideoCount == nil || *items[0].VideoCount != 1 {
		t.Errorf("первая ссылка = %+v", items[0])
	}
	if items[1].AnalysisStatus != model.AnalysisStatusUnanalyzed || items[1].FileCount != nil {
		t.Errorf("вторая ссылка = %+v", items[1])
	}
	if items[1].Tags == nil {
		t.Error("tags должен сериализоваться как [], а не null")
	}
}

func TestListLinks_InvalidActive(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/api/v1/links?active=maybe", "", true)
	assertError(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestListLinksByTag(t *testing.T) {
	env := newTestEnv(t, nil)
	var tag string
	env.links.listFn = func(_ context.Context, _ int64, filter model.LinkFilter) ([]*model.Link, error) {
		tag = *filter.Tag
		return nil, nil
	}

	rec := env.do(t, http.MethodGet, "/api/v1/links/by-tag/music", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}
	if tag != "music" {
		t.Errorf("tag = %q, ожидался music", tag)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("тело = %q, ожидался []", rec.Body.String())
	}
}

func TestCreateLink(t *testing.T) {
	env := newTestEnv(t, nil)
	env.links.createFn = func(_ context.Context, owner int64, in service.LinkInput) (*model.Link, error) {
		if in.Title != "Фото" || len(in.Tags) != 2 {
			t.Errorf("input = %+v", in)
		}
		return analyzedLink(10, owner), nil
	}

	rec := env.do(t, http.MethodPost, "/api/v1/links",
		`{"title":"Фото","url":"https://mega.nz/folder/abc#key","tags":["a","b"]}`, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("статус = %d, ожидался 201 (%s)", rec.Code, rec.Body.String())
	}
	link := decodeBody[linkResponse](t, rec)
	if link.ID != 10 || !link.IsActive || link.LinkType == nil || *link.LinkType != model.LinkTypeFolder {
		t.Errorf("link = %+v", link)
	}
}

func TestCreateLink_Validation(t *testing.T) {
	env := newTestEnv(t, nil)
	env.links.createFn = func(context.Context, int64, service.LinkInput) (*model.Link, error) {
		return nil, fmt.Errorf("%w: title обязателен", service.ErrValidation)
	}
	rec := env.do(t, http.MethodPost, "/api/v1/links", `{"title":""}`, true)
	body := assertError(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")
	if !strings.Contains(body.Error.Message, "title") {
		t.Errorf("message = %q", body.Error.Message)
	}
}

func TestGetLink(t *testing.T) {
	env := newTestEnv(t, nil)
	env.links.getFn = func(_ context.Context, owner, id int64) (*model.Link, error) {
		if id == 7 {
			return analyzedLink(7, owner), nil
		}
		return nil, fmt.Errorf("%w: ссылка %d", service.ErrNotFound, id)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/links/7", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/links/8", "", true)
	assertError(t, rec, http.StatusNotFound, "NOT_FOUND")

	rec = env.do(t, http.MethodGet, "/api/v1/links/abc", "", true)
	assertError(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestUpdateLink(t *testing.T) {
	env := newTestEnv(t, nil)
	env.links.updateFn = func(_ context.Context, owner, id int64, in service.LinkInput) (*model.Link, error) {
		return &model.Link{ID: id, UserID: owner, Title: in.Title, URL: in.URL}, nil
	}

	rec := env.do(t, http.MethodPut, "/api/v1/links/3",
		`{"title":"Новое","url":"https://mega.nz/file/x#y"}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}
	link := decodeBody[linkResponse](t, rec)
	if link.ID != 3 || link.Title != "Новое" {
		t.Errorf("link = %+v", link)
	}
}

func TestDeleteLink(t *testing.T) {
	env := newTestEnv(t, nil)
	var deleted int64
	env.links.deleteFn = func(_ context.Context, _, id int64) error {
		deleted = id
		return nil
	}

	rec := env.do(t, http.MethodDelete, "/api/v1/links/12", "", true)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("статус = %d, ожидался 204", rec.Code)
	}
	if deleted != 12 {
		t.Errorf("deleted = %d, ожидался 12", deleted)
	}
}

func TestRefreshLink(t *testing.T) {
	env := newTestEnv(t, nil)
	env.links.refreshFn = func(_ context.Context, owner, id int64) (*model.Link, error) {
		return analyzedLink(id, owner), nil
	}

	rec := env.do(t, http.MethodPost, "/api/v1/links/5/refresh", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}
}

func TestRefreshLink_AnalysisFailed(t *testing.T) {
	env := newTestEnv(t, nil)
	env.links.refreshFn = func(_ context.Context, _, id int64) (*model.Link, error) {
		return nil, &service.AnalysisFailedError{
			LinkID: id,
			Err:    &megaclient.RemoteAPIError{StatusCode: 500, Message: "HTTP 500"},
		}
	}

	rec := env.do(t, http.MethodPost, "/api/v1/links/5/refresh", "", true)
	body := assertError(t, rec, http.StatusBadGateway, "ANALYSIS_FAILED")
	if !strings.Contains(body.Error.Message, "HTTP 500") {
		t.Errorf("message = %q", body.Error.Message)
	}
}

func TestRefreshAllLinks(t *testing.T) {
	env := newTestEnv(t, nil)
	env.links.refreshAllFn = func(_ context.Context, owner int64) (*model.RefreshAllResult, error) {
		return &model.RefreshAllResult{
			TotalLinks: 3, SuccessCount: 2, ErrorCount: 1,
			Errors: []string{"ошибка MEGA API: HTTP 500"},
		}, nil
	}

	rec := env.do(t, http.MethodPost, "/api/v1/links/refresh-all", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}
	body := decodeBody[refreshAllResponse](t, rec)
	if body.TotalLinks != 3 || body.SuccessCount != 2 || body.ErrorCount != 1 || len(body.Errors) != 1 {
		t.Errorf("body = %+v", body)
	}
	if body.Message != "Обновлено 2 из 3 ссылок" {
		t.Errorf("message = %q", body.Message)
	}
}

// doCancelled выполняет авторизованный запрос с уже отменённым контекстом,
// как при отключении клиента.
func (e *testEnv) doCancelled(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(method, path, nil).WithContext(ctx)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: testSessionID})
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestRefreshLink_ClientDisconnected(t *testing.T) {
	env := newTestEnv(t, nil)
	var ctxErr error
	env.links.refreshFn = func(ctx context.Context, owner, id int64) (*model.Link, error) {
		ctxErr = ctx.Err()
		if owner != 42 {
			t.Errorf("owner = %d, ожидался 42", owner)
		}
		return analyzedLink(id, owner), nil
	}

	rec := env.doCancelled(t, http.MethodPost, "/api/v1/links/5/refresh")
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}
	if ctxErr != nil {
		t.Errorf("контекст обновления отменён вместе с запросом: %v", ctxErr)
	}
}

func TestRefreshAllLinks_ClientDisconnected(t *testing.T) {
	env := newTestEnv(t, nil)
	var ctxErr error
	env.links.refreshAllFn = func(ctx context.Context, owner int64) (*model.RefreshAllResult, error) {
		ctxErr = ctx.Err()
		if owner != 42 {
			t.Errorf("owner = %d, ожидался 42", owner)
		}
		return &model.RefreshAllResult{TotalLinks: 1, SuccessCount: 1, Errors: []string{}}, nil
	}

	rec := env.doCancelled(t, http.MethodPost, "/api/v1/links/refresh-all")
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}
	if ctxErr != nil {
		t.Errorf("контекст обхода отменён вместе с запросом: %v", ctxErr)
	}
}

func TestRefreshAllLinks_EmptyErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/api/v1/links/refresh-all", "", true)
	if !strings.Contains(rec.Body.String(), `"errors":[]`) {
		t.Errorf("тело = %s, ожидался пустой массив errors", rec.Body.String())
	}
}

func TestGetAnalysisStatus(t *testing.T) {
	env := newTestEnv(t, nil)
	env.links.analysisStatusFn = func(context.Context, int64) (*service.AnalysisStatus, error) {
		return &service.AnalysisStatus{
			LinkStats: model.LinkStats{
				Total: 4, Active: 2, Failed: 1, Unanalyzed: 1,
				TotalFiles: 10, TotalVideos: 3, TotalImages: 5, TotalSizeBytes: 1048576,
			},
			FormattedTotalSize: "1 MB",
		}, nil
	}

	rec := env.do(t, http.MethodGet, "/api/v1/links/analysis-status", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}
	body := decodeBody[analysisStatusResponse](t, rec)
	if body.TotalLinks != 4 || body.ActiveLinks != 2 || body.TotalVideos != 3 || body.FormattedTotalSize != "1 MB" {
		t.Errorf("body = %+v", body)
	}
}

// --- Analyze ---

func TestAnalyzeURL(t *testing.T) {
	env := newTestEnv(t, nil)
	env.analyzer.analyzeFn = func(context.Context, string) (*model.AnalysisSnapshot, error) {
		return &model.AnalysisSnapshot{
			Name: "MEGA Folder (abc...)", Kind: model.LinkTypeFolder,
			FileCount: 2, VideoCount: 1, ImageCount: 1, TotalSizeBytes: 602000000, FormattedSize: "574.11 MB",
		}, nil
	}

	rec := env.do(t, http.MethodPost, "/api/v1/analyze", `{"url":" https://mega.nz/folder/abc#key "}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}
	body := decodeBody[analyzeResponse](t, rec)
	if body.URL != "https://mega.nz/folder/abc#key" || body.FormattedSize != "574.11 MB" || body.LinkType != "folder" {
		t.Errorf("body = %+v", body)
	}
}

func TestAnalyzeURL_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
		code   string
	}{
		{"empty", `{"url":""}`, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"not mega", `{"url":"https://example.com/x"}`, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"invalid mega", `{"url":"https://mega.nz/whatever"}`,
			fmt.Errorf("%w: шаблон не найден", service.ErrInvalidMegaURL), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"remote", `{"url":"https://mega.nz/folder/a#b"}`,
			&megaclient.RemoteAPIError{StatusCode: 503, Message: "HTTP 503"}, http.StatusBadGateway, "MEGA_UNAVAILABLE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.analyzer.analyzeFn = func(context.Context, string) (*model.AnalysisSnapshot, error) {
				if tt.err == nil {
					t.Error("Analyze не должен вызываться")
				}
				return nil, tt.err
			}
			rec := env.do(t, http.MethodPost, "/api/v1/analyze", tt.body, true)
			assertError(t, rec, tt.status, tt.code)
		})
	}
}
