// links.go — управление ссылками пользователя и запуск их анализа.
//
// Все операции ограничены владельцем: чужая ссылка неотличима от отсутствующей.
// Create анализирует ссылку синхронно и возвращает запись со свежими полями анализа.
// Update при смене URL ставит ссылку в очередь повторного анализа и не ждёт его.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/megalinks/megalinks/internal/domain/mega"
	"github.com/megalinks/megalinks/internal/domain/model"
	"github.com/megalinks/megalinks/internal/repository"
)

// Ограничения пользовательских полей ссылки.
const (
	maxTitleLen       = 200
	maxURLLen         = 500
	maxDescriptionLen = 1000
)

// LinkInput — пользовательские поля ссылки при создании и изменении.
type LinkInput struct {
	Title       string
	URL         string
	Description string
	Tags        []string
}

// LinkAnalysis — операции анализа, используемые сервисом ссылок.
type LinkAnalysis interface {
	RefreshOne(ctx context.Context, linkID int64) error
	RefreshAll(ctx context.Context, owner int64) (*model.RefreshAllResult, error)
	OnLinkCreatedOrURLChanged(ctx context.Context, linkID int64, rawURL string) bool
}

// ReanalysisSubmitter — постановка ссылки в очередь повторного анализа.
type ReanalysisSubmitter interface {
	Submit(linkID int64, url string) bool
}

// AnalysisStatus — сводка анализа ссылок владельца.
type AnalysisStatus struct {
	model.LinkStats
	FormattedTotalSize string
}

// LinkService — бизнес-логика ссылок.
type LinkService struct {
	links    repository.LinkRepository
	analysis LinkAnalysis
	queue    ReanalysisSubmitter
	logger   *slog.Logger
}

// NewLinkService создаёт сервис ссылок.
func NewLinkService(
	links repository.LinkRepository,
	analysis LinkAnalysis,
	queue ReanalysisSubmitter,
	logger *slog.Logger,
) *LinkService {
	return &LinkService{
		links:    links,
		analysis: analysis,
		queue:    queue,
		logger:   logger.With(slog.String("component", "links")),
	}
}

// normalizeInput проверяет и нормализует поля ссылки.
func normalizeInput(in LinkInput) (LinkInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.URL = strings.TrimSpace(in.URL)
	in.Description = strings.TrimSpace(in.Description)

	switch n := utf8.RuneCountInString(in.Title); {
	case n == 0:
		return in, validationError("title обязателен")
	case n > maxTitleLen:
		return in, validationError("title длиннее %d символов", maxTitleLen)
	}
	switch n := utf8.RuneCountInString(in.URL); {
	case n == 0:
		return in, validationError("url обязателен")
	case n > maxURLLen:
		return in, validationError("url длиннее %d символов", maxURLLen)
	}
	if utf8.RuneCountInString(in.Description) > maxDescriptionLen {
		return in, validationError("description длиннее %d символов", maxDescriptionLen)
	}

	tags := make([]string, 0, len(in.Tags))
	seen := make(map[string]bool, len(in.Tags))
	for _, tag := range in.Tags {
		tag = strings.TrimSpace(tag)
		key := strings.ToLower(tag)
		if tag == "" || seen[key] {
			continue
		}
		seen[key] = true
		tags = append(tags, tag)
	}
	in.Tags = tags

	return in, nil
}

// Create сохраняет ссылку и сразу анализирует её, если это ссылка MEGA.
// Ошибка анализа не отменяет создание.
func (s *LinkService) Create(ctx context.Context, owner int64, input LinkInput) (*model.Link, error) {
	in, err := normalizeInput(input)
	if err != nil {
		return nil, err
	}

	link := &model.Link{
		UserID:      owner,
		Title:       in.Title,
		URL:         in.URL,
		Description: in.Description,
		Tags:        in.Tags,
	}
	if err := s.links.Create(ctx, link); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("создание ссылки: %w", err)
	}

	s.logger.Info("Ссылка создана",
		slog.Int64("link_id", link.ID),
		slog.Int64("owner", owner),
	)

	if !s.analysis.OnLinkCreatedOrURLChanged(ctx, link.ID, link.URL) {
		return link, nil
	}

	fresh, err := s.links.GetByID(ctx, link.ID)
	if err != nil {
		s.logger.Warn("Не удалось перечитать ссылку после анализа",
			slog.Int64("link_id", link.ID),
			slog.String("error", err.Error()),
		)
		return link, nil
	}
	return fresh, nil
}

// Get возвращает ссылку владельца.
func (s *LinkService) Get(ctx context.Context, owner, id int64) (*model.Link, error) {
	link, err := s.links.GetForOwner(ctx, id, owner)
	if err != nil {
		return nil, mapNotFound(err, id)
	}
	return link, nil
}

// List возвращает ссылки владельца с фильтрацией.
func (s *LinkService) List(ctx context.Context, owner int64, filter model.LinkFilter) ([]*model.Link, error) {
	if filter.Search != nil {
		trimmed := strings.TrimSpace(*filter.Search)
		if trimmed == "" {
			filter.Search = nil
		} else {
			filter.Search = &trimmed
		}
	}
	links, err := s.links.ListByOwner(ctx, owner, filter)
	if err != nil {
		return nil, fmt.Errorf("получение списка ссылок: %w", err)
	}
	return links, nil
}

// Update изменяет пользовательские поля ссылки. Если URL изменился и относится
// к MEGA, ссылка ставится в очередь повторного анализа; результат этого
// анализа в ответ не попадает.
func (s *LinkService) Update(ctx context.Context, owner, id int64, input LinkInput) (*model.Link, error) {
	in, err := normalizeInput(input)
	if err != nil {
		return nil, err
	}

	link, err := s.links.GetForOwner(ctx, id, owner)
	if err != nil {
		return nil, mapNotFound(err, id)
	}

	urlChanged := link.URL != in.URL
	link.Title = in.Title
	link.URL = in.URL
	link.Description = in.Description
	link.Tags = in.Tags

	if err := s.links.Update(ctx, link); err != nil {
		return nil, mapNotFound(err, id)
	}

	if urlChanged && mega.IsMegaURL(link.URL) {
		queued := s.queue.Submit(link.ID, link.URL)
		s.logger.Info("URL ссылки изменён, запланирован повторный анализ",
			slog.Int64("link_id", link.ID),
			slog.Bool("queued", queued),
		)
	}

	return link, nil
}

// Delete удаляет ссылку владельца.
func (s *LinkService) Delete(ctx context.Context, owner, id int64) error {
	if err := s.links.Delete(ctx, id, owner); err != nil {
		return mapNotFound(err, id)
	}
	s.logger.Info("Ссылка удалена", slog.Int64("link_id", id), slog.Int64("owner", owner))
	return nil
}

// Refresh анализирует ссылку владельца и возвращает обновлённую запись.
// При неудаче анализа возвращает *AnalysisFailedError (состояние ошибки уже сохранено).
func (s *LinkService) Refresh(ctx context.Context, owner, id int64) (*model.Link, error) {
	if _, err := s.Get(ctx, owner, id); err != nil {
		return nil, err
	}
	if err := s.analysis.RefreshOne(ctx, id); err != nil {
		return nil, err
	}
	return s.Get(ctx, owner, id)
}

// RefreshAll последовательно анализирует все ссылки владельца.
func (s *LinkService) RefreshAll(ctx context.Context, owner int64) (*model.RefreshAllResult, error) {
	return s.analysis.RefreshAll(ctx, owner)
}

// AnalysisStatus возвращает сводку анализа ссылок владельца.
func (s *LinkService) AnalysisStatus(ctx context.Context, owner int64) (*AnalysisStatus, error) {
	stats, err := s.links.Stats(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("получение статистики анализа: %w", err)
	}
	return &AnalysisStatus{
		LinkStats:          *stats,
		FormattedTotalSize: mega.FormatBytes(stats.TotalSizeBytes),
	}, nil
}

func mapNotFound(err error, id int64) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: ссылка %d", ErrNotFound, id)
	}
	return err
}
