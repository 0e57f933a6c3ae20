package model

import "time"

// Тип ссылки MEGA по результатам анализа.
const (
	LinkTypeFolder  = "folder"
	LinkTypeFile    = "file"
	LinkTypeUnknown = "unknown"
)

// Статус анализа ссылки (вычисляется из полей записи, в БД не хранится).
const (
	AnalysisStatusUnanalyzed = "unanalyzed"
	AnalysisStatusActive     = "active"
	AnalysisStatusFailed     = "failed"
)

// Link — сохранённая пользователем ссылка MEGA.
// Хранится в таблице mega_links.
type Link struct {
	// ID — идентификатор записи
	ID int64 `json:"id"`
	// UserID — владелец ссылки
	UserID int64 `json:"userId"`
	// Title — название, заданное пользователем
	Title string `json:"title"`
	// URL — ссылка на папку или файл MEGA
	URL string `json:"url"`
	// Description — описание
	Description string `json:"description"`
	// Tags — теги
	Tags []string `json:"tags"`
	// CreatedAt — время создания записи
	CreatedAt time.Time `json:"createdAt"`
	// UpdatedAt — время последнего изменения (включая запись результатов анализа)
	UpdatedAt time.Time `json:"updatedAt"`

	// --- Поля анализа (nil, пока анализ не выполнялся) ---

	FileCount      *int    `json:"fileCount"`
	VideoCount     *int    `json:"videoCount"`
	ImageCount     *int    `json:"imageCount"`
	TotalSizeBytes *int64  `json:"totalSizeBytes"`
	FormattedSize  *string `json:"formattedSize"`
	// IsActive — последний анализ завершился успешно
	IsActive bool `json:"isActive"`
	// LastAnalyzedAt — время последней попытки анализа (успешной или нет)
	LastAnalyzedAt *time.Time `json:"lastAnalyzedAt"`
	// AnalysisError — причина неудачи последнего анализа
	AnalysisError *string `json:"analysisError"`
	// LinkType — folder, file или unknown
	LinkType *string `json:"linkType"`
	// MegaName — условное имя ресурса (настоящее имя зашифровано)
	MegaName *string `json:"megaName"`
}

// AnalysisStatus возвращает состояние анализа: unanalyzed, active или failed.
func (l *Link) AnalysisStatus() string {
	switch {
	case l.IsActive:
		return AnalysisStatusActive
	case l.LastAnalyzedAt == nil:
		return AnalysisStatusUnanalyzed
	default:
		return AnalysisStatusFailed
	}
}

// ApplySnapshot записывает успешный результат анализа в запись:
// все поля снимка, IsActive=true, сброс ошибки, LastAnalyzedAt=now.
func (l *Link) ApplySnapshot(s *AnalysisSnapshot, now time.Time) {
	fileCount := s.FileCount
	videoCount := s.VideoCount
	imageCount := s.ImageCount
	totalSize := s.TotalSizeBytes
	formatted := s.FormattedSize
	kind := s.Kind
	name := s.Name

	l.FileCount = &fileCount
	l.VideoCount = &videoCount
	l.ImageCount = &imageCount
	l.TotalSizeBytes = &totalSize
	l.FormattedSize = &formatted
	l.LinkType = &kind
	l.MegaName = &name
	l.IsActive = true
	l.AnalysisError = nil
	l.LastAnalyzedAt = &now
	l.UpdatedAt = now
}

// ApplyFailure записывает неудачный результат анализа: IsActive=false,
// текст ошибки и время попытки. Ранее полученные счётчики не сбрасываются.
func (l *Link) ApplyFailure(message string, now time.Time) {
	l.IsActive = false
	l.AnalysisError = &message
	l.LastAnalyzedAt = &now
	l.UpdatedAt = now
}

// LinkFilter — фильтр списка ссылок владельца.
type LinkFilter struct {
	// Tag — точное совпадение тега (без учёта регистра)
	Tag *string
	// Search — подстрока в title, description или url
	Search *string
	// IsActive — фильтр по результату последнего анализа
	IsActive *bool
}

// LinkStats — агрегированная статистика анализа ссылок владельца.
type LinkStats struct {
	Total          int
	Active         int
	Failed         int
	Unanalyzed     int
	TotalFiles     int64
	TotalVideos    int64
	TotalImages    int64
	TotalSizeBytes int64
	LastAnalyzedAt *time.Time
}
