// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound — ресурс не найден (или принадлежит другому пользователю).
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — ресурс уже существует")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrUnauthorized — сессия отсутствует, истекла или PIN неверен.
	ErrUnauthorized = errors.New("требуется вход")
	// ErrInvalidMegaURL — URL не разбирается ни как папка, ни как файл MEGA.
	ErrInvalidMegaURL = errors.New("некорректная ссылка MEGA")
)

// AnalysisFailedError — анализ ссылки завершился ошибкой.
// К моменту возврата состояние ошибки уже сохранено в записи.
type AnalysisFailedError struct {
	LinkID int64
	Err    error
}

func (e *AnalysisFailedError) Error() string {
	return fmt.Sprintf("анализ ссылки %d не выполнен: %v", e.LinkID, e.Err)
}

func (e *AnalysisFailedError) Unwrap() error {
	return e.Err
}

// validationError оборачивает ErrValidation с описанием поля.
func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
