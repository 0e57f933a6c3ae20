package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/megalinks/megalinks/internal/config"
	"github.com/megalinks/megalinks/internal/megaclient"
	"github.com/megalinks/megalinks/internal/service"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <url>",
	Short: "Проанализировать ссылку MEGA",
	Long: `Запрашивает листинг папки (или разбирает ссылку на файл) и печатает
количество файлов, видео, изображений и общий размер. Ничего не сохраняет,
БД не нужна.

Примеры:
  megalinks-cli analyze 'https://mega.nz/folder/AbCdEf12#key'
  megalinks-cli analyze --json 'https://mega.nz/file/XyZ#key'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadAnalyzer()
		if err != nil {
			return fmt.Errorf("загрузка конфигурации: %w", err)
		}
		logger := config.SetupLoggerTo(cfg, os.Stderr)

		analyzer := service.NewAnalyzer(megaclient.New(cfg.MegaAPIURL, cfg.MegaTimeout, logger), logger)
		if !analyzer.IsMegaURL(args[0]) {
			return fmt.Errorf("ссылка не относится к MEGA: %s", args[0])
		}

		snapshot, err := analyzer.Analyze(context.Background(), args[0])
		if err != nil {
			return err
		}

		return printResult(cmd.OutOrStdout(), snapshot, func(w io.Writer) {
			fmt.Fprintf(w, "Имя:         %s\n", snapshot.Name)
			fmt.Fprintf(w, "Тип:         %s\n", snapshot.Kind)
			fmt.Fprintf(w, "Файлов:      %d\n", snapshot.FileCount)
			fmt.Fprintf(w, "Видео:       %d\n", snapshot.VideoCount)
			fmt.Fprintf(w, "Изображений: %d\n", snapshot.ImageCount)
			fmt.Fprintf(w, "Размер:      %s\n", snapshot.FormattedSize)
		})
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}
