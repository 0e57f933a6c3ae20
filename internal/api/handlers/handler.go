// handler.go — основной обработчик API: зависимости, DTO и преобразование ошибок.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/megalinks/megalinks/internal/api/errors"
	"github.com/megalinks/megalinks/internal/domain/model"
	"github.com/megalinks/megalinks/internal/megaclient"
	"github.com/megalinks/megalinks/internal/service"
)

// maxBodyBytes — ограничение размера JSON-тела запроса.
const maxBodyBytes = 1 << 20

// LinkManager — операции над ссылками (service.LinkService).
type LinkManager interface {
	Create(ctx context.Context, owner int64, input service.LinkInput) (*model.Link, error)
	Get(ctx context.Context, owner, id int64) (*model.Link, error)
	List(ctx context.Context, owner int64, filter model.LinkFilter) ([]*model.Link, error)
	Update(ctx context.Context, owner, id int64, input service.LinkInput) (*model.Link, error)
	Delete(ctx context.Context, owner, id int64) error
	Refresh(ctx context.Context, owner, id int64) (*model.Link, error)
	RefreshAll(ctx context.Context, owner int64) (*model.RefreshAllResult, error)
	AnalysisStatus(ctx context.Context, owner int64) (*service.AnalysisStatus, error)
}

// AuthManager — регистрация и сессии (service.AuthService).
type AuthManager interface {
	Register(ctx context.Context, pin, displayName string) (*model.User, error)
	Login(ctx context.Context, pin string) (service.Session, error)
	Logout(sessionID string)
	CheckPIN(ctx context.Context, pin string) (bool, error)
	SessionTTL() int
}

// URLAnalyzer — анализ ссылки без сохранения (service.Analyzer).
type URLAnalyzer interface {
	IsMegaURL(rawURL string) bool
	Analyze(ctx context.Context, rawURL string) (*model.AnalysisSnapshot, error)
}

// APIHandler — обработчик HTTP API.
type APIHandler struct {
	health       *HealthHandler
	links        LinkManager
	auth         AuthManager
	analyzer     URLAnalyzer
	secureCookie bool
	logger       *slog.Logger
}

// NewAPIHandler создаёт обработчик API.
// secureCookie — выставлять флаг Secure у cookie сессии (за HTTPS).
func NewAPIHandler(
	health *HealthHandler,
	links LinkManager,
	auth AuthManager,
	analyzer URLAnalyzer,
	secureCookie bool,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:       health,
		links:        links,
		auth:         auth,
		analyzer:     analyzer,
		secureCookie: secureCookie,
		logger:       logger.With(slog.String("component", "api_handler")),
	}
}

// --- DTO ---

// linkResponse — представление ссылки в API.
type linkResponse struct {
	ID             int64      `json:"id"`
	Title          string     `json:"title"`
	URL            string     `json:"url"`
	Description    string     `json:"description"`
	Tags           []string   `json:"tags"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	FileCount      *int       `json:"fileCount"`
	VideoCount     *int       `json:"videoCount"`
	ImageCount     *int       `json:"imageCount"`
	TotalSizeBytes *int64     `json:"totalSizeBytes"`
	FormattedSize  *string    `json:"formattedSize"`
	IsActive       bool       `json:"isActive"`
	LastAnalyzedAt *time.Time `json:"lastAnalyzedAt"`
	AnalysisError  *string    `json:"analysisError"`
	LinkType       *string    `json:"linkType"`
	MegaName       *string    `json:"megaName"`
	AnalysisStatus string     `json:"analysisStatus"`
}

func toLinkResponse(l *model.Link) linkResponse {
	tags := l.Tags
	if tags == nil {
		tags = []string{}
	}
	return linkResponse{
		ID:             l.ID,
		Title:          l.Title,
		URL:            l.URL,
		Description:    l.Description,
		Tags:           tags,
		CreatedAt:      l.CreatedAt,
		UpdatedAt:      l.UpdatedAt,
		FileCount:      l.FileCount,
		VideoCount:     l.VideoCount,
		ImageCount:     l.ImageCount,
		TotalSizeBytes: l.TotalSizeBytes,
		FormattedSize:  l.FormattedSize,
		IsActive:       l.IsActive,
		LastAnalyzedAt: l.LastAnalyzedAt,
		AnalysisError:  l.AnalysisError,
		LinkType:       l.LinkType,
		MegaName:       l.MegaName,
		AnalysisStatus: l.AnalysisStatus(),
	}
}

func toLinkList(links []*model.Link) []linkResponse {
	items := make([]linkResponse, 0, len(links))
	for _, l := range links {
		items = append(items, toLinkResponse(l))
	}
	return items
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON читает JSON-тело запроса. Неизвестные поля — ошибка.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("некорректное тело запроса: %w", err)
	}
	return nil
}

// linkIDParam извлекает {id} из пути.
func linkIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("некорректный идентификатор ссылки: %q", raw)
	}
	return id, nil
}

// writeServiceError преобразует ошибку сервисного слоя в HTTP-ответ.
// op — описание операции для лога и сообщения о внутренней ошибке.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error, op string) {
	var analysisErr *service.AnalysisFailedError
	var remoteErr *megaclient.RemoteAPIError

	switch {
	case errors.As(err, &analysisErr):
		apierrors.AnalysisFailed(w, analysisErr.Err.Error())
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrInvalidMegaURL):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrUnauthorized):
		apierrors.Unauthorized(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	case errors.As(err, &remoteErr):
		apierrors.MegaUnavailable(w, remoteErr.Error())
	default:
		h.logger.Error("Ошибка обработки запроса",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка: "+op)
	}
}
