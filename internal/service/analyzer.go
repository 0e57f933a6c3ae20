// analyzer.go — анализ ссылки MEGA: разбор URL → листинг узлов → классификация → снимок.
//
// Сначала URL разбирается как ссылка на папку. Если разбор или запрос листинга
// не удался, URL разбирается как ссылка на файл; для файла размер и имя
// не запрашиваются ("Unknown size").
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/megalinks/megalinks/internal/domain/mega"
	"github.com/megalinks/megalinks/internal/domain/model"
	"github.com/megalinks/megalinks/internal/megaclient"
)

var analysisTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ml_analysis_total",
	Help: "Количество выполненных анализов ссылок MEGA",
}, []string{"kind", "result"}) // kind: folder, file, unknown; result: ok, error

// unknownFileSize — FormattedSize для одиночного файла (размер не запрашивается).
const unknownFileSize = "Unknown size"

// NodeFetcher — источник листинга узлов публичной папки.
type NodeFetcher interface {
	FetchNodes(ctx context.Context, rootID string) ([]megaclient.Node, error)
}

// Analyzer строит AnalysisSnapshot по ссылке MEGA.
// Состояния не хранит; повторный анализ при неизменном ответе MEGA даёт тот же снимок.
type Analyzer struct {
	fetcher NodeFetcher
	logger  *slog.Logger
}

// NewAnalyzer создаёт анализатор ссылок.
func NewAnalyzer(fetcher NodeFetcher, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		fetcher: fetcher,
		logger:  logger.With(slog.String("component", "analyzer")),
	}
}

// IsMegaURL сообщает, относится ли URL к доменам MEGA.
func (a *Analyzer) IsMegaURL(rawURL string) bool {
	return mega.IsMegaURL(rawURL)
}

// Analyze анализирует ссылку. Ошибки:
//   - ErrInvalidMegaURL — URL не разбирается ни как папка, ни как файл
//   - *megaclient.RemoteAPIError — ссылка на папку, но листинг не получен
func (a *Analyzer) Analyze(ctx context.Context, rawURL string) (*model.AnalysisSnapshot, error) {
	snapshot, folderErr := a.analyzeFolder(ctx, rawURL)
	if folderErr == nil {
		analysisTotal.WithLabelValues(model.LinkTypeFolder, "ok").Inc()
		return snapshot, nil
	}

	locator, fileErr := mega.ParseFile(rawURL)
	if fileErr != nil {
		// Папка распознана, но MEGA не ответил: отдаём ошибку API, а не ошибку разбора
		if !errors.Is(folderErr, mega.ErrNotAFolderURL) {
			analysisTotal.WithLabelValues(model.LinkTypeFolder, "error").Inc()
			return nil, folderErr
		}
		analysisTotal.WithLabelValues(model.LinkTypeUnknown, "error").Inc()
		return nil, fmt.Errorf("%w: %w; %w", ErrInvalidMegaURL, folderErr, fileErr)
	}

	if !errors.Is(folderErr, mega.ErrNotAFolderURL) {
		a.logger.Debug("Анализ как папки не удался, ссылка обработана как файл",
			slog.String("url", rawURL),
			slog.String("error", folderErr.Error()),
		)
	}

	analysisTotal.WithLabelValues(model.LinkTypeFile, "ok").Inc()
	return &model.AnalysisSnapshot{
		Name:          fmt.Sprintf("MEGA File (%s...)", shortID(locator.RootID)),
		Kind:          model.LinkTypeFile,
		FileCount:     1,
		FormattedSize: unknownFileSize,
	}, nil
}

func (a *Analyzer) analyzeFolder(ctx context.Context, rawURL string) (*model.AnalysisSnapshot, error) {
	locator, err := mega.ParseFolder(rawURL)
	if err != nil {
		return nil, err
	}

	nodes, err := a.fetcher.FetchNodes(ctx, locator.RootID)
	if err != nil {
		return nil, err
	}

	snapshot := &model.AnalysisSnapshot{
		Name: fmt.Sprintf("MEGA Folder (%s...)", shortID(locator.RootID)),
		Kind: model.LinkTypeFolder,
	}

	for _, node := range nodes {
		if !node.IsFile() {
			continue
		}
		size := node.SizeBytes()
		snapshot.FileCount++
		snapshot.TotalSizeBytes += size

		c := mega.ClassifyBySize(size)
		switch {
		case c.IsVideo:
			snapshot.VideoCount++
		case c.IsImage:
			snapshot.ImageCount++
		}
	}
	snapshot.FormattedSize = mega.FormatBytes(snapshot.TotalSizeBytes)

	a.logger.Debug("Папка MEGA проанализирована",
		slog.String("root_id", locator.RootID),
		slog.Int("files", snapshot.FileCount),
		slog.Int("videos", snapshot.VideoCount),
		slog.Int("images", snapshot.ImageCount),
		slog.Int64("size_bytes", snapshot.TotalSizeBytes),
	)

	return snapshot, nil
}

// shortID — первые 8 символов идентификатора для условного имени.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
