package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/megalinks/megalinks/internal/domain/model"
)

// Размеры колонок mega_links.
const (
	maxFormattedSize = 50
	maxAnalysisError = 500
	maxLinkType      = 20
	maxMegaName      = 200
)

// LinkRepository — доступ к таблице mega_links.
type LinkRepository interface {
	// Create создаёт ссылку с пустыми полями анализа.
	Create(ctx context.Context, link *model.Link) error
	// GetByID возвращает ссылку без проверки владельца.
	GetByID(ctx context.Context, id int64) (*model.Link, error)
	// GetForOwner возвращает ссылку, только если она принадлежит owner.
	GetForOwner(ctx context.Context, id, owner int64) (*model.Link, error)
	// ListByOwner возвращает ссылки владельца, новые первыми.
	ListByOwner(ctx context.Context, owner int64, filter model.LinkFilter) ([]*model.Link, error)
	// ListIDsByOwner возвращает идентификаторы ссылок владельца по возрастанию.
	ListIDsByOwner(ctx context.Context, owner int64) ([]int64, error)
	// ListOwnerIDs возвращает владельцев, у которых есть хотя бы одна ссылка.
	ListOwnerIDs(ctx context.Context) ([]int64, error)
	// Update сохраняет пользовательские поля (title, url, description, tags).
	Update(ctx context.Context, link *model.Link) error
	// UpdateAnalysis сохраняет только поля анализа и updated_at.
	// Запись обновляется, только если её URL совпадает с link.URL,
	// иначе возвращается ErrURLChanged.
	UpdateAnalysis(ctx context.Context, link *model.Link) error
	// Delete удаляет ссылку владельца.
	Delete(ctx context.Context, id, owner int64) error
	// Stats возвращает агрегаты анализа по ссылкам владельца.
	Stats(ctx context.Context, owner int64) (*model.LinkStats, error)
}

type linkRepo struct {
	db DBTX
}

// NewLinkRepository создаёт репозиторий ссылок.
func NewLinkRepository(db DBTX) LinkRepository {
	return &linkRepo{db: db}
}

const linkColumns = `id, user_id, title, url, description, tags, created_at, updated_at,
	file_count, video_count, image_count, total_size_bytes, formatted_size,
	is_active, last_analyzed_at, analysis_error, link_type, mega_name`

func scanLink(row pgx.Row) (*model.Link, error) {
	l := &model.Link{}
	err := row.Scan(
		&l.ID, &l.UserID, &l.Title, &l.URL, &l.Description, &l.Tags, &l.CreatedAt, &l.UpdatedAt,
		&l.FileCount, &l.VideoCount, &l.ImageCount, &l.TotalSizeBytes, &l.FormattedSize,
		&l.IsActive, &l.LastAnalyzedAt, &l.AnalysisError, &l.LinkType, &l.MegaName,
	)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (r *linkRepo) Create(ctx context.Context, link *model.Link) error {
	if link.Tags == nil {
		link.Tags = []string{}
	}

	query := `
		INSERT INTO mega_links (user_id, title, url, description, tags)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		link.UserID, link.Title, link.URL, link.Description, link.Tags,
	).Scan(&link.ID, &link.CreatedAt, &link.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: пользователь %d", ErrNotFound, link.UserID)
		}
		return fmt.Errorf("ошибка создания ссылки: %w", err)
	}
	return nil
}

func (r *linkRepo) GetByID(ctx context.Context, id int64) (*model.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM mega_links WHERE id = $1`

	link, err := scanLink(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения ссылки: %w", err)
	}
	return link, nil
}

func (r *linkRepo) GetForOwner(ctx context.Context, id, owner int64) (*model.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM mega_links WHERE id = $1 AND user_id = $2`

	link, err := scanLink(r.db.QueryRow(ctx, query, id, owner))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения ссылки: %w", err)
	}
	return link, nil
}

// buildLinkFilter строит WHERE для списка ссылок владельца.
// Первый аргумент всегда owner ($1).
func buildLinkFilter(owner int64, filter model.LinkFilter) (string, []any) {
	conditions := []string{"user_id = $1"}
	args := []any{owner}
	argNum := 2

	if filter.Tag != nil {
		conditions = append(conditions,
			fmt.Sprintf("EXISTS (SELECT 1 FROM unnest(tags) AS t WHERE lower(t) = lower($%d))", argNum))
		args = append(args, *filter.Tag)
		argNum++
	}
	if filter.Search != nil {
		conditions = append(conditions,
			fmt.Sprintf("(title ILIKE $%[1]d OR description ILIKE $%[1]d OR url ILIKE $%[1]d)", argNum))
		args = append(args, "%"+escapeLike(*filter.Search)+"%")
		argNum++
	}
	if filter.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", argNum))
		args = append(args, *filter.IsActive)
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

// escapeLike экранирует спецсимволы шаблона LIKE.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *linkRepo) ListByOwner(ctx context.Context, owner int64, filter model.LinkFilter) ([]*model.Link, error) {
	where, args := buildLinkFilter(owner, filter)
	query := fmt.Sprintf(`SELECT %s FROM mega_links %s ORDER BY created_at DESC, id DESC`, linkColumns, where)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка ссылок: %w", err)
	}
	defer rows.Close()

	result := make([]*model.Link, 0)
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования ссылки: %w", err)
		}
		result = append(result, link)
	}
	return result, rows.Err()
}

func (r *linkRepo) ListIDsByOwner(ctx context.Context, owner int64) ([]int64, error) {
	return r.collectIDs(ctx, `SELECT id FROM mega_links WHERE user_id = $1 ORDER BY id`, owner)
}

func (r *linkRepo) ListOwnerIDs(ctx context.Context) ([]int64, error) {
	return r.collectIDs(ctx, `SELECT DISTINCT user_id FROM mega_links ORDER BY user_id`)
}

func (r *linkRepo) collectIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения идентификаторов: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("ошибка сканирования идентификаторов: %w", err)
	}
	return ids, nil
}

func (r *linkRepo) Update(ctx context.Context, link *model.Link) error {
	if link.Tags == nil {
		link.Tags = []string{}
	}

	query := `
		UPDATE mega_links
		SET title = $3, url = $4, description = $5, tags = $6, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		link.ID, link.UserID, link.Title, link.URL, link.Description, link.Tags,
	).Scan(&link.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка обновления ссылки: %w", err)
	}
	return nil
}

func (r *linkRepo) UpdateAnalysis(ctx context.Context, link *model.Link) error {
	link.AnalysisError = truncatePtr(link.AnalysisError, maxAnalysisError)
	link.FormattedSize = truncatePtr(link.FormattedSize, maxFormattedSize)
	link.LinkType = truncatePtr(link.LinkType, maxLinkType)
	link.MegaName = truncatePtr(link.MegaName, maxMegaName)

	query := `
		UPDATE mega_links
		SET file_count = $2, video_count = $3, image_count = $4, total_size_bytes = $5,
			formatted_size = $6, is_active = $7, last_analyzed_at = $8, analysis_error = $9,
			link_type = $10, mega_name = $11, updated_at = $12
		WHERE id = $1 AND url = $13`

	tag, err := r.db.Exec(ctx, query,
		link.ID, link.FileCount, link.VideoCount, link.ImageCount, link.TotalSizeBytes,
		link.FormattedSize, link.IsActive, link.LastAnalyzedAt, link.AnalysisError,
		link.LinkType, link.MegaName, link.UpdatedAt, link.URL,
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения результата анализа: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Строка не обновлена: ссылки нет или её URL уже другой
	var exists bool
	err = r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM mega_links WHERE id = $1)`, link.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("ошибка проверки ссылки: %w", err)
	}
	if exists {
		return ErrURLChanged
	}
	return ErrNotFound
}

func (r *linkRepo) Delete(ctx context.Context, id, owner int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM mega_links WHERE id = $1 AND user_id = $2`, id, owner)
	if err != nil {
		return fmt.Errorf("ошибка удаления ссылки: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *linkRepo) Stats(ctx context.Context, owner int64) (*model.LinkStats, error) {
	query := `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE is_active),
			COUNT(*) FILTER (WHERE NOT is_active AND last_analyzed_at IS NOT NULL),
			COUNT(*) FILTER (WHERE last_analyzed_at IS NULL),
			COALESCE(SUM(file_count), 0),
			COALESCE(SUM(video_count), 0),
			COALESCE(SUM(image_count), 0),
			COALESCE(SUM(total_size_bytes), 0)::BIGINT,
			MAX(last_analyzed_at)
		FROM mega_links
		WHERE user_id = $1`

	s := &model.LinkStats{}
	err := r.db.QueryRow(ctx, query, owner).Scan(
		&s.Total, &s.Active, &s.Failed, &s.Unanalyzed,
		&s.TotalFiles, &s.TotalVideos, &s.TotalImages, &s.TotalSizeBytes,
		&s.LastAnalyzedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчёта статистики ссылок: %w", err)
	}
	return s, nil
}
