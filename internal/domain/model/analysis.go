package model

// AnalysisSnapshot — результат анализа одной ссылки MEGA в конкретный момент.
// Создаётся заново при каждом запуске анализа.
type AnalysisSnapshot struct {
	// Name — условное имя, построенное из идентификатора (без расшифровки)
	Name string `json:"name"`
	// Kind — folder, file или unknown
	Kind           string `json:"linkType"`
	TotalSizeBytes int64  `json:"totalSizeBytes"`
	FileCount      int    `json:"fileCount"`
	// VideoCount и ImageCount — оценки по размеру файла, не точные значения
	VideoCount    int    `json:"videoCount"`
	ImageCount    int    `json:"imageCount"`
	FormattedSize string `json:"formattedSize"`
}

// RefreshAllResult — итог пакетного обновления ссылок владельца.
type RefreshAllResult struct {
	TotalLinks   int `json:"totalLinks"`
	SuccessCount int `json:"successCount"`
	ErrorCount   int `json:"errorCount"`
	// Errors — первые несколько сообщений об ошибках
	Errors []string `json:"errors"`
}
