// Пакет errors — ответы об ошибках HTTP API в формате
// {"error": {"code": "...", "message": "..."}}. HTTP-статус определяется кодом.
package errors

import (
	"encoding/json"
	"net/http"
)

const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeConflict        = "CONFLICT"
	// MEGA не ответил или ответил не по формату
	CodeMegaUnavailable = "MEGA_UNAVAILABLE"
	// анализ ссылки не удался, ошибка уже записана в ссылку
	CodeAnalysisFailed = "ANALYSIS_FAILED"
	CodeInternalError  = "INTERNAL_ERROR"
)

var statusByCode = map[string]int{
	CodeValidationError: http.StatusBadRequest,
	CodeNotFound:        http.StatusNotFound,
	CodeUnauthorized:    http.StatusUnauthorized,
	CodeConflict:        http.StatusConflict,
	CodeMegaUnavailable: http.StatusBadGateway,
	CodeAnalysisFailed:  http.StatusBadGateway,
	CodeInternalError:   http.StatusInternalServerError,
}

// Status возвращает HTTP-статус кода ошибки; для неизвестного кода — 500.
func Status(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Write отвечает ошибкой с кодом code.
func Write(w http.ResponseWriter, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(Status(code))
	_ = json.NewEncoder(w).Encode(body)
}

func writerFor(code string) func(http.ResponseWriter, string) {
	return func(w http.ResponseWriter, message string) {
		Write(w, code, message)
	}
}

// Ответы по кодам: ValidationError(w, "…") и т.д.
var (
	ValidationError = writerFor(CodeValidationError)
	NotFound        = writerFor(CodeNotFound)
	Unauthorized    = writerFor(CodeUnauthorized)
	Conflict        = writerFor(CodeConflict)
	MegaUnavailable = writerFor(CodeMegaUnavailable)
	AnalysisFailed  = writerFor(CodeAnalysisFailed)
	InternalError   = writerFor(CodeInternalError)
)
