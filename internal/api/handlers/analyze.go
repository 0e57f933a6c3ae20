// analyze.go — POST /api/v1/analyze: предварительный анализ ссылки без сохранения.
package handlers

import (
	"net/http"
	"strings"

	apierrors "github.com/megalinks/megalinks/internal/api/errors"
)

type analyzeRequest struct {
	URL string `json:"url"`
}

type analyzeResponse struct {
	URL            string `json:"url"`
	Name           string `json:"name"`
	LinkType       string `json:"linkType"`
	FileCount      int    `json:"fileCount"`
	VideoCount     int    `json:"videoCount"`
	ImageCount     int    `json:"imageCount"`
	TotalSizeBytes int64  `json:"totalSizeBytes"`
	FormattedSize  string `json:"formattedSize"`
}

// AnalyzeURL — POST /api/v1/analyze.
func (h *APIHandler) AnalyzeURL(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	rawURL := strings.TrimSpace(req.URL)
	if rawURL == "" {
		apierrors.ValidationError(w, "url обязателен")
		return
	}
	if !h.analyzer.IsMegaURL(rawURL) {
		apierrors.ValidationError(w, "ссылка не относится к MEGA")
		return
	}

	snapshot, err := h.analyzer.Analyze(r.Context(), rawURL)
	if err != nil {
		h.writeServiceError(w, err, "анализ ссылки")
		return
	}

	writeJSON(w, http.StatusOK, analyzeResponse{
		URL:            rawURL,
		Name:           snapshot.Name,
		LinkType:       snapshot.Kind,
		FileCount:      snapshot.FileCount,
		VideoCount:     snapshot.VideoCount,
		ImageCount:     snapshot.ImageCount,
		TotalSizeBytes: snapshot.TotalSizeBytes,
		FormattedSize:  snapshot.FormattedSize,
	})
}
