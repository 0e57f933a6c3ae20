// refresh.go — синхронизация результатов анализа с записями ссылок.
//
// RefreshOne анализирует одну ссылку и всегда сохраняет итог (успех или ошибку)
// до возврата. RefreshAll обходит ссылки владельца строго последовательно,
// выдерживая паузу Pacer перед каждым обращением к MEGA; ошибка отдельной
// ссылки не прерывает обход.
//
// Одновременные RefreshOne для одной ссылки с тем же URL схлопываются
// (singleflight): второй вызов дожидается результата первого и не обращается
// к MEGA повторно. Результат анализа записывается, только если URL ссылки
// не изменился за время анализа.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"github.com/megalinks/megalinks/internal/domain/model"
	"github.com/megalinks/megalinks/internal/repository"
)

var refreshAllLinksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ml_refresh_all_links_total",
	Help: "Количество ссылок, обработанных пакетным обновлением",
}, []string{"result"}) // result: ok, error, skipped

// maxReportedErrors — сколько сообщений об ошибках возвращает RefreshAll.
const maxReportedErrors = 3

// LinkAnalyzer — анализ одной ссылки.
type LinkAnalyzer interface {
	IsMegaURL(rawURL string) bool
	Analyze(ctx context.Context, rawURL string) (*model.AnalysisSnapshot, error)
}

// RefreshService — запись результатов анализа в ссылки.
type RefreshService struct {
	links    repository.LinkRepository
	analyzer LinkAnalyzer
	pacer    Pacer
	now      func() time.Time
	group    singleflight.Group
	logger   *slog.Logger
}

// NewRefreshService создаёт сервис обновления анализа.
// pacer разделяется со всеми фоновыми обходами, чтобы общий темп запросов к MEGA был ограничен.
func NewRefreshService(
	links repository.LinkRepository,
	analyzer LinkAnalyzer,
	pacer Pacer,
	logger *slog.Logger,
) *RefreshService {
	return &RefreshService{
		links:    links,
		analyzer: analyzer,
		pacer:    pacer,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "refresh")),
	}
}

// RefreshOne анализирует ссылку linkID и сохраняет результат.
// При неудаче анализа состояние ошибки сохраняется, затем возвращается *AnalysisFailedError.
func (s *RefreshService) RefreshOne(ctx context.Context, linkID int64) error {
	link, err := s.links.GetByID(ctx, linkID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: ссылка %d", ErrNotFound, linkID)
		}
		return fmt.Errorf("получение ссылки %d: %w", linkID, err)
	}

	// В ключе и URL: после смены адреса анализ нового URL не присоединяется к анализу старого
	key := strconv.FormatInt(linkID, 10) + "\x00" + link.URL
	_, err, shared := s.group.Do(key, func() (any, error) {
		return nil, s.refreshOne(ctx, link)
	})
	if shared {
		s.logger.Debug("Обновление ссылки объединено с уже выполняющимся",
			slog.Int64("link_id", linkID),
		)
	}
	return err
}

func (s *RefreshService) refreshOne(ctx context.Context, link *model.Link) error {
	snapshot, analyzeErr := s.analyzer.Analyze(ctx, link.URL)
	now := s.now().UTC()

	// Итог сохраняется и после отмены ctx вызывающего
	saveCtx := context.WithoutCancel(ctx)

	if analyzeErr != nil {
		link.ApplyFailure(analyzeErr.Error(), now)
		if err := s.save(saveCtx, link); err != nil {
			if errors.Is(err, repository.ErrURLChanged) {
				return nil
			}
			return fmt.Errorf("сохранение ошибки анализа ссылки %d: %w", link.ID, err)
		}
		s.logger.Warn("Анализ ссылки не выполнен",
			slog.Int64("link_id", link.ID),
			slog.String("error", analyzeErr.Error()),
		)
		return &AnalysisFailedError{LinkID: link.ID, Err: analyzeErr}
	}

	link.ApplySnapshot(snapshot, now)
	if err := s.save(saveCtx, link); err != nil {
		if errors.Is(err, repository.ErrURLChanged) {
			return nil
		}
		return fmt.Errorf("сохранение результата анализа ссылки %d: %w", link.ID, err)
	}

	s.logger.Info("Ссылка проанализирована",
		slog.Int64("link_id", link.ID),
		slog.String("kind", snapshot.Kind),
		slog.Int("files", snapshot.FileCount),
	)
	return nil
}

// save записывает итог анализа. Если URL ссылки изменили во время анализа,
// результат отбрасывается (repository.ErrURLChanged): новый URL анализирует
// отдельный вызов RefreshOne.
func (s *RefreshService) save(ctx context.Context, link *model.Link) error {
	err := s.links.UpdateAnalysis(ctx, link)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrURLChanged):
		s.logger.Info("URL ссылки изменён во время анализа, результат отброшен",
			slog.Int64("link_id", link.ID),
		)
		return err
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: ссылка %d", ErrNotFound, link.ID)
	default:
		return err
	}
}

// RefreshAll последовательно обновляет все ссылки владельца.
// Возвращает ошибку только если не удалось получить список ссылок.
// Отмена ctx (остановка приложения) прекращает обход: оставшиеся ссылки
// не анализируются, не изменяются и учитываются как ошибки.
func (s *RefreshService) RefreshAll(ctx context.Context, owner int64) (*model.RefreshAllResult, error) {
	ids, err := s.links.ListIDsByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("получение ссылок владельца %d: %w", owner, err)
	}

	result := &model.RefreshAllResult{TotalLinks: len(ids), Errors: []string{}}
	if len(ids) == 0 {
		return result, nil
	}

	startedAt := time.Now()
	for i, id := range ids {
		if err := s.pacer.Wait(ctx); err != nil {
			skipped := len(ids) - i
			result.ErrorCount += skipped
			refreshAllLinksTotal.WithLabelValues("skipped").Add(float64(skipped))
			s.appendError(result, fmt.Sprintf("обновление прервано: %v", err))
			s.logger.Warn("Пакетное обновление прервано",
				slog.Int64("owner", owner),
				slog.Int("skipped", skipped),
				slog.String("error", err.Error()),
			)
			break
		}

		if err := s.RefreshOne(ctx, id); err != nil {
			s.recordFailure(result, id, err)
			continue
		}
		result.SuccessCount++
		refreshAllLinksTotal.WithLabelValues("ok").Inc()
	}

	s.logger.Info("Пакетное обновление ссылок завершено",
		slog.Int64("owner", owner),
		slog.Int("total", result.TotalLinks),
		slog.Int("success", result.SuccessCount),
		slog.Int("errors", result.ErrorCount),
		slog.String("duration", fmt.Sprintf("%.2fs", time.Since(startedAt).Seconds())),
	)

	return result, nil
}

// recordFailure учитывает ошибку ссылки. В результат попадает только текст
// ошибки, идентификатор ссылки пишется в лог.
func (s *RefreshService) recordFailure(result *model.RefreshAllResult, linkID int64, err error) {
	result.ErrorCount++
	refreshAllLinksTotal.WithLabelValues("error").Inc()

	msg := err.Error()
	var failed *AnalysisFailedError
	if errors.As(err, &failed) {
		msg = failed.Err.Error()
	} else {
		// Ошибки анализа уже залогированы в refreshOne
		s.logger.Warn("Ссылка не обновлена",
			slog.Int64("link_id", linkID),
			slog.String("error", msg),
		)
	}
	s.appendError(result, msg)
}

func (s *RefreshService) appendError(result *model.RefreshAllResult, msg string) {
	if len(result.Errors) < maxReportedErrors {
		result.Errors = append(result.Errors, msg)
	}
}

// OnLinkCreatedOrURLChanged запускает анализ ссылки, если URL относится к MEGA.
// Вызывается синхронно при создании ссылки; ошибка анализа только логируется,
// создание ссылки она не отменяет. Возвращает true, если анализ выполнялся.
func (s *RefreshService) OnLinkCreatedOrURLChanged(ctx context.Context, linkID int64, rawURL string) bool {
	if !s.analyzer.IsMegaURL(rawURL) {
		s.logger.Debug("URL не относится к MEGA, анализ пропущен",
			slog.Int64("link_id", linkID),
		)
		return false
	}

	if err := s.RefreshOne(ctx, linkID); err != nil {
		s.logger.Warn("Анализ новой ссылки не выполнен",
			slog.Int64("link_id", linkID),
			slog.String("error", err.Error()),
		)
	}
	return true
}
