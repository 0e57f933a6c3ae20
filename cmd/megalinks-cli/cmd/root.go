package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/megalinks/megalinks/internal/config"
	"github.com/megalinks/megalinks/internal/database"
	"github.com/megalinks/megalinks/internal/megaclient"
	"github.com/megalinks/megalinks/internal/repository"
	"github.com/megalinks/megalinks/internal/service"
)

var jsonOutput bool

var rootCmd = &cobra.Command{
	Use:   "megalinks-cli",
	Short: "Операторская утилита megalinks",
	Long: `megalinks-cli анализирует ссылки MEGA и обновляет результаты анализа
сохранённых ссылок. Конфигурация читается из тех же переменных окружения ML_*,
что и у сервера.`,
	SilenceUsage: true,
}

// Execute запускает корневую команду.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "вывод в формате JSON")
}

// printResult печатает v как JSON либо через текстовый форматтер.
func printResult(w io.Writer, v any, text func(io.Writer)) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

// refreshEnv — зависимости команд refresh и refresh-all.
type refreshEnv struct {
	pool    *pgxpool.Pool
	links   repository.LinkRepository
	refresh *service.RefreshService
	logger  *slog.Logger
}

func (e *refreshEnv) Close() {
	e.pool.Close()
}

// newRefreshEnv собирает сервис обновления так же, как сервер: БД, клиент MEGA, общий pacer.
func newRefreshEnv(ctx context.Context) (*refreshEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("загрузка конфигурации: %w", err)
	}
	logger := config.SetupLoggerTo(cfg, os.Stderr)

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	links := repository.NewLinkRepository(pool)
	analyzer := service.NewAnalyzer(megaclient.New(cfg.MegaAPIURL, cfg.MegaTimeout, logger), logger)
	refresh := service.NewRefreshService(links, analyzer, service.NewRatePacer(cfg.RefreshPacing), logger)

	return &refreshEnv{pool: pool, links: links, refresh: refresh, logger: logger}, nil
}
