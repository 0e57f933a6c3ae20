// links.go — обработчики /api/v1/links: CRUD, обновление анализа, сводка.
// Все маршруты требуют сессию, владелец берётся из контекста.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/megalinks/megalinks/internal/api/errors"
	"github.com/megalinks/megalinks/internal/api/middleware"
	"github.com/megalinks/megalinks/internal/domain/model"
	"github.com/megalinks/megalinks/internal/service"
)

type linkRequest struct {
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

func (req linkRequest) toInput() service.LinkInput {
	return service.LinkInput{
		Title:       req.Title,
		URL:         req.URL,
		Description: req.Description,
		Tags:        req.Tags,
	}
}

type refreshAllResponse struct {
	TotalLinks   int      `json:"totalLinks"`
	SuccessCount int      `json:"successCount"`
	ErrorCount   int      `json:"errorCount"`
	Errors       []string `json:"errors"`
	Message      string   `json:"message"`
}

type analysisStatusResponse struct {
	TotalLinks         int        `json:"totalLinks"`
	ActiveLinks        int        `json:"activeLinks"`
	FailedLinks        int        `json:"failedLinks"`
	UnanalyzedLinks    int        `json:"unanalyzedLinks"`
	TotalFiles         int64      `json:"totalFiles"`
	TotalVideos        int64      `json:"totalVideos"`
	TotalImages        int64      `json:"totalImages"`
	TotalSizeBytes     int64      `json:"totalSizeBytes"`
	FormattedTotalSize string     `json:"formattedTotalSize"`
	LastAnalyzedAt     *time.Time `json:"lastAnalyzedAt"`
}

// ListLinks — GET /api/v1/links?tag=&search=&active=.
func (h *APIHandler) ListLinks(w http.ResponseWriter, r *http.Request) {
	filter, err := parseLinkFilter(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	h.writeLinkList(w, r, filter)
}

// ListLinksByTag — GET /api/v1/links/by-tag/{tag}.
func (h *APIHandler) ListLinksByTag(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "tag")
	h.writeLinkList(w, r, model.LinkFilter{Tag: &tag})
}

func (h *APIHandler) writeLinkList(w http.ResponseWriter, r *http.Request, filter model.LinkFilter) {
	links, err := h.links.List(r.Context(), middleware.OwnerFromContext(r.Context()), filter)
	if err != nil {
		h.writeServiceError(w, err, "получение списка ссылок")
		return
	}
	writeJSON(w, http.StatusOK, toLinkList(links))
}

// parseLinkFilter разбирает query-параметры фильтра списка ссылок.
func parseLinkFilter(r *http.Request) (model.LinkFilter, error) {
	var filter model.LinkFilter
	q := r.URL.Query()

	if tag := q.Get("tag"); tag != "" {
		filter.Tag = &tag
	}
	if search := q.Get("search"); search != "" {
		filter.Search = &search
	}
	if raw := q.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, fmt.Errorf("параметр active должен быть true или false: %q", raw)
		}
		filter.IsActive = &active
	}
	return filter, nil
}

// CreateLink — POST /api/v1/links. Ссылка MEGA анализируется сразу.
func (h *APIHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	link, err := h.links.Create(r.Context(), middleware.OwnerFromContext(r.Context()), req.toInput())
	if err != nil {
		h.writeServiceError(w, err, "создание ссылки")
		return
	}
	writeJSON(w, http.StatusCreated, toLinkResponse(link))
}

// GetLink — GET /api/v1/links/{id}.
func (h *APIHandler) GetLink(w http.ResponseWriter, r *http.Request) {
	id, err := linkIDParam(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	link, err := h.links.Get(r.Context(), middleware.OwnerFromContext(r.Context()), id)
	if err != nil {
		h.writeServiceError(w, err, "получение ссылки")
		return
	}
	writeJSON(w, http.StatusOK, toLinkResponse(link))
}

// UpdateLink — PUT /api/v1/links/{id}. Повторный анализ при смене URL идёт в фоне.
func (h *APIHandler) UpdateLink(w http.ResponseWriter, r *http.Request) {
	id, err := linkIDParam(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	var req linkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	link, err := h.links.Update(r.Context(), middleware.OwnerFromContext(r.Context()), id, req.toInput())
	if err != nil {
		h.writeServiceError(w, err, "изменение ссылки")
		return
	}
	writeJSON(w, http.StatusOK, toLinkResponse(link))
}

// DeleteLink — DELETE /api/v1/links/{id}.
func (h *APIHandler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	id, err := linkIDParam(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	if err := h.links.Delete(r.Context(), middleware.OwnerFromContext(r.Context()), id); err != nil {
		h.writeServiceError(w, err, "удаление ссылки")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RefreshLink — POST /api/v1/links/{id}/refresh.
// При неудаче анализа отвечает 502 ANALYSIS_FAILED, состояние ошибки уже сохранено.
func (h *APIHandler) RefreshLink(w http.ResponseWriter, r *http.Request) {
	id, err := linkIDParam(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	// Результат анализа сохраняется, даже если клиент не дождался ответа
	ctx := context.WithoutCancel(r.Context())
	link, err := h.links.Refresh(ctx, middleware.OwnerFromContext(ctx), id)
	if err != nil {
		h.writeServiceError(w, err, "обновление анализа ссылки")
		return
	}
	writeJSON(w, http.StatusOK, toLinkResponse(link))
}

// RefreshAllLinks — POST /api/v1/links/refresh-all.
// Обход не прерывается отключением клиента: все ссылки доводятся до конца.
func (h *APIHandler) RefreshAllLinks(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	result, err := h.links.RefreshAll(ctx, middleware.OwnerFromContext(ctx))
	if err != nil {
		h.writeServiceError(w, err, "обновление анализа всех ссылок")
		return
	}

	errs := result.Errors
	if errs == nil {
		errs = []string{}
	}
	writeJSON(w, http.StatusOK, refreshAllResponse{
		TotalLinks:   result.TotalLinks,
		SuccessCount: result.SuccessCount,
		ErrorCount:   result.ErrorCount,
		Errors:       errs,
		Message: fmt.Sprintf("Обновлено %d из %d ссылок",
			result.SuccessCount, result.TotalLinks),
	})
}

// GetAnalysisStatus — GET /api/v1/links/analysis-status.
func (h *APIHandler) GetAnalysisStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.links.AnalysisStatus(r.Context(), middleware.OwnerFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, err, "получение сводки анализа")
		return
	}
	writeJSON(w, http.StatusOK, analysisStatusResponse{
		TotalLinks:         status.Total,
		ActiveLinks:        status.Active,
		FailedLinks:        status.Failed,
		UnanalyzedLinks:    status.Unanalyzed,
		TotalFiles:         status.TotalFiles,
		TotalVideos:        status.TotalVideos,
		TotalImages:        status.TotalImages,
		TotalSizeBytes:     status.TotalSizeBytes,
		FormattedTotalSize: status.FormattedTotalSize,
		LastAnalyzedAt:     status.LastAnalyzedAt,
	})
}
