// reanalysis.go — фоновая очередь повторного анализа после изменения URL ссылки.
//
// Редактирование ссылки не ждёт анализа: задача кладётся в ограниченную очередь,
// единственный обработчик выполняет RefreshOne. Ошибки анализа логируются
// и никогда не возвращаются вызывающему редактирование.
package service

import (
	"context"
	"log/slog"
	"sync"
)

// Refresher — анализ одной ссылки с сохранением результата.
type Refresher interface {
	RefreshOne(ctx context.Context, linkID int64) error
}

type reanalysisJob struct {
	linkID int64
	url    string
}

// ReanalysisQueue — очередь заданий повторного анализа с одним обработчиком.
type ReanalysisQueue struct {
	refresher Refresher
	pacer     Pacer
	jobs      chan reanalysisJob
	logger    *slog.Logger

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewReanalysisQueue создаёт очередь ёмкостью size.
func NewReanalysisQueue(refresher Refresher, pacer Pacer, size int, logger *slog.Logger) *ReanalysisQueue {
	return &ReanalysisQueue{
		refresher: refresher,
		pacer:     pacer,
		jobs:      make(chan reanalysisJob, size),
		logger:    logger.With(slog.String("component", "reanalysis_queue")),
	}
}

// Start запускает обработчик очереди.
func (q *ReanalysisQueue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	q.done = make(chan struct{})

	go func() {
		defer close(q.done)

		q.logger.Info("Очередь повторного анализа запущена",
			slog.Int("capacity", cap(q.jobs)),
		)

		for {
			select {
			case <-ctx.Done():
				q.logger.Info("Очередь повторного анализа остановлена",
					slog.Int("dropped", len(q.jobs)),
				)
				return
			case job := <-q.jobs:
				q.process(ctx, job)
			}
		}
	}()
}

func (q *ReanalysisQueue) process(ctx context.Context, job reanalysisJob) {
	if err := q.pacer.Wait(ctx); err != nil {
		return
	}

	if err := q.refresher.RefreshOne(ctx, job.linkID); err != nil {
		q.logger.Warn("Повторный анализ ссылки не выполнен",
			slog.Int64("link_id", job.linkID),
			slog.String("url", job.url),
			slog.String("error", err.Error()),
		)
		return
	}

	q.logger.Debug("Повторный анализ ссылки выполнен", slog.Int64("link_id", job.linkID))
}

// Submit ставит ссылку в очередь. Возвращает false, если очередь заполнена
// или остановлена; задание при этом отбрасывается.
func (q *ReanalysisQueue) Submit(linkID int64, url string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		q.logger.Warn("Очередь остановлена, повторный анализ пропущен", slog.Int64("link_id", linkID))
		return false
	}

	select {
	case q.jobs <- reanalysisJob{linkID: linkID, url: url}:
		return true
	default:
		q.logger.Warn("Очередь повторного анализа заполнена, задание отброшено",
			slog.Int64("link_id", linkID),
		)
		return false
	}
}

// Stop останавливает обработчик и ждёт завершения текущего задания.
// Задания, оставшиеся в очереди, отбрасываются.
func (q *ReanalysisQueue) Stop() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()

	if q.cancel != nil {
		q.cancel()
	}
	if q.done != nil {
		<-q.done
	}
}
