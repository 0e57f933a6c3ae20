// scheduler.go — периодическое фоновое обновление анализа всех ссылок.
//
// RefreshScheduler с интервалом ML_REFRESH_INTERVAL получает список владельцев
// и для каждого последовательно выполняет RefreshAll (темп задаёт общий Pacer).
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/megalinks/megalinks/internal/domain/model"
)

// OwnerLister — список владельцев, у которых есть ссылки.
type OwnerLister interface {
	ListOwnerIDs(ctx context.Context) ([]int64, error)
}

// BulkRefresher — пакетное обновление ссылок владельца.
type BulkRefresher interface {
	RefreshAll(ctx context.Context, owner int64) (*model.RefreshAllResult, error)
}

// RefreshScheduler — фоновый сервис периодического обновления.
type RefreshScheduler struct {
	owners    OwnerLister
	refresher BulkRefresher
	interval  time.Duration
	logger    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRefreshScheduler создаёт планировщик периодического обновления.
func NewRefreshScheduler(owners OwnerLister, refresher BulkRefresher, interval time.Duration, logger *slog.Logger) *RefreshScheduler {
	return &RefreshScheduler{
		owners:    owners,
		refresher: refresher,
		interval:  interval,
		logger:    logger.With(slog.String("component", "refresh_scheduler")),
	}
}

// Start запускает фоновую горутину. Вызывается один раз при старте приложения.
func (s *RefreshScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		s.logger.Info("Периодическое обновление анализа запущено",
			slog.String("interval", s.interval.String()),
		)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Периодическое обновление анализа остановлено")
				return
			case <-ticker.C:
				if err := s.RunOnce(ctx); err != nil {
					s.logger.Error("Ошибка периодического обновления", slog.String("error", err.Error()))
				}
			}
		}
	}()
}

// Stop останавливает фоновую горутину и ждёт завершения.
func (s *RefreshScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

// RunOnce выполняет один проход обновления по всем владельцам.
func (s *RefreshScheduler) RunOnce(ctx context.Context) error {
	owners, err := s.owners.ListOwnerIDs(ctx)
	if err != nil {
		return fmt.Errorf("получение списка владельцев: %w", err)
	}

	var total, failed int
	for _, owner := range owners {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		result, err := s.refresher.RefreshAll(ctx, owner)
		if err != nil {
			s.logger.Warn("Обновление ссылок владельца не выполнено",
				slog.Int64("owner", owner),
				slog.String("error", err.Error()),
			)
			continue
		}
		total += result.TotalLinks
		failed += result.ErrorCount
	}

	s.logger.Info("Периодическое обновление завершено",
		slog.Int("owners", len(owners)),
		slog.Int("links", total),
		slog.Int("errors", failed),
	)
	return nil
}
