// Пакет megaclient — HTTP-клиент публичного API MEGA.
// Единственная операция: листинг узлов публичной папки
// (POST <api>?id=0&n=<root_id>, команда {"a":"f","c":1,"ca":1,"r":1}).
// Повторы на этом уровне не выполняются.
package megaclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// fetchDuration — длительность запросов листинга к MEGA API.
var fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "ml_mega_fetch_duration_seconds",
	Help:    "Длительность запросов листинга узлов к MEGA API",
	Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms … ~25s
}, []string{"result"}) // result: ok, error

// Тип узла в листинге.
const (
	NodeTypeFile   = 0
	NodeTypeFolder = 1
)

// maxErrorBody — сколько байт тела ответа включать в текст ошибки.
const maxErrorBody = 512

// ErrInvalidResponse — ответ MEGA API не содержит ожидаемого списка узлов.
var ErrInvalidResponse = errors.New("некорректный ответ MEGA API")

// RemoteAPIError — ошибка обращения к MEGA API: транспорт, HTTP-статус,
// код ошибки API или неожиданная структура ответа.
type RemoteAPIError struct {
	// StatusCode — HTTP-статус (0, если ответ не получен)
	StatusCode int
	// APICode — отрицательный код ошибки MEGA (0, если не передан)
	APICode int
	Message string
	Err     error
}

func (e *RemoteAPIError) Error() string {
	msg := "ошибка MEGA API: " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RemoteAPIError) Unwrap() error {
	return e.Err
}

// Node — один узел листинга. Атрибуты и ключ зашифрованы и не разбираются.
type Node struct {
	// Handle — идентификатор узла (h)
	Handle string `json:"h"`
	// Type — 0 файл, 1 папка (t)
	Type int `json:"t"`
	// Size — размер в байтах, только у файлов (s)
	Size *int64 `json:"s,omitempty"`
	// EncryptedAttrs — зашифрованные атрибуты (a)
	EncryptedAttrs string `json:"a"`
	// EncryptedKey — зашифрованный ключ узла (k)
	EncryptedKey string `json:"k"`
	// ParentHandle — handle родителя (p)
	ParentHandle *string `json:"p,omitempty"`
}

// IsFile сообщает, является ли узел файлом.
func (n Node) IsFile() bool {
	return n.Type == NodeTypeFile
}

// SizeBytes возвращает размер узла; отсутствующий размер считается нулём.
func (n Node) SizeBytes() int64 {
	if n.Size == nil {
		return 0
	}
	return *n.Size
}

// listingCommand — фиксированная команда листинга папки с раскрытием вложенных узлов.
type listingCommand struct {
	A  string `json:"a"`
	C  int    `json:"c"`
	CA int    `json:"ca"`
	R  int    `json:"r"`
}

// listingResponse — элемент ответа на команду листинга.
type listingResponse struct {
	F []Node `json:"f"`
}

// Client — HTTP-клиент MEGA API.
type Client struct {
	apiURL     string
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент MEGA API.
// apiURL — endpoint команд (https://g.api.mega.co.nz/cs), timeout — ограничение одного запроса.
func New(apiURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		apiURL:     strings.TrimRight(apiURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(slog.String("component", "mega_client")),
	}
}

// BaseURL возвращает scheme://host endpoint-а (для мониторинга зависимостей).
func (c *Client) BaseURL() string {
	u, err := url.Parse(c.apiURL)
	if err != nil {
		return c.apiURL
	}
	return u.Scheme + "://" + u.Host
}

// FetchNodes запрашивает листинг узлов публичной папки rootID.
func (c *Client) FetchNodes(ctx context.Context, rootID string) ([]Node, error) {
	start := time.Now()
	nodes, err := c.fetchNodes(ctx, rootID)

	result := "ok"
	if err != nil {
		result = "error"
	}
	fetchDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())

	if err != nil {
		c.logger.Debug("Листинг папки MEGA не получен",
			slog.String("root_id", rootID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	c.logger.Debug("Листинг папки MEGA получен",
		slog.String("root_id", rootID),
		slog.Int("nodes", len(nodes)),
	)
	return nodes, nil
}

func (c *Client) fetchNodes(ctx context.Context, rootID string) ([]Node, error) {
	payload, err := json.Marshal([]listingCommand{{A: "f", C: 1, CA: 1, R: 1}})
	if err != nil {
		return nil, fmt.Errorf("сериализация команды листинга: %w", err)
	}

	reqURL := fmt.Sprintf("%s?id=0&n=%s", c.apiURL, url.QueryEscape(rootID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("создание запроса листинга: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RemoteAPIError{Message: "запрос листинга не выполнен", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RemoteAPIError{StatusCode: resp.StatusCode, Message: "чтение ответа", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RemoteAPIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("статус %d: %s", resp.StatusCode, truncate(string(body), maxErrorBody)),
		}
	}

	return decodeListing(resp.StatusCode, body)
}

// decodeListing разбирает ответ вида [{"f":[...]}].
// MEGA сообщает об ошибках числом (-9) или массивом из числа ([-9]) при статусе 200.
func decodeListing(status int, body []byte) ([]Node, error) {
	var code int
	if err := json.Unmarshal(body, &code); err == nil {
		return nil, apiCodeError(status, code)
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(body, &elems); err != nil || len(elems) == 0 {
		return nil, &RemoteAPIError{StatusCode: status, Message: "ожидался непустой массив", Err: ErrInvalidResponse}
	}

	if err := json.Unmarshal(elems[0], &code); err == nil {
		return nil, apiCodeError(status, code)
	}

	var listing listingResponse
	if err := json.Unmarshal(elems[0], &listing); err != nil || listing.F == nil {
		return nil, &RemoteAPIError{StatusCode: status, Message: "в ответе нет списка узлов", Err: ErrInvalidResponse}
	}

	return listing.F, nil
}

func apiCodeError(status, code int) error {
	return &RemoteAPIError{
		StatusCode: status,
		APICode:    code,
		Message:    fmt.Sprintf("код ошибки %d", code),
		Err:        ErrInvalidResponse,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
