package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/megalinks/megalinks/internal/service"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh <link-id>",
	Short: "Обновить анализ одной ссылки",
	Long: `Повторно анализирует сохранённую ссылку и записывает результат в БД.
Если анализ не удался, в записи сохраняется ошибка и команда завершается с кодом 1.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("некорректный идентификатор ссылки: %q", args[0])
		}

		ctx := context.Background()
		env, err := newRefreshEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		refreshErr := env.refresh.RefreshOne(ctx, id)
		var analysisErr *service.AnalysisFailedError
		if refreshErr != nil && !errors.As(refreshErr, &analysisErr) {
			return refreshErr
		}

		link, err := env.links.GetByID(ctx, id)
		if err != nil {
			return err
		}

		if err := printResult(cmd.OutOrStdout(), link, func(w io.Writer) {
			fmt.Fprintf(w, "Ссылка %d: %s\n", link.ID, link.Title)
			fmt.Fprintf(w, "Статус анализа: %s\n", link.AnalysisStatus())
			if link.FormattedSize != nil {
				fmt.Fprintf(w, "Размер: %s\n", *link.FormattedSize)
			}
			if link.AnalysisError != nil {
				fmt.Fprintf(w, "Ошибка: %s\n", *link.AnalysisError)
			}
		}); err != nil {
			return err
		}
		return refreshErr
	},
}

var refreshAllOwner int64

var refreshAllCmd = &cobra.Command{
	Use:   "refresh-all",
	Short: "Обновить анализ всех ссылок пользователя",
	Long: `Последовательно анализирует все ссылки пользователя с паузой
ML_REFRESH_PACING между запросами и печатает сводку.

Пример:
  megalinks-cli refresh-all --owner 1`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if refreshAllOwner <= 0 {
			return errors.New("флаг --owner обязателен")
		}

		ctx := context.Background()
		env, err := newRefreshEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.refresh.RefreshAll(ctx, refreshAllOwner)
		if err != nil {
			return err
		}

		return printResult(cmd.OutOrStdout(), result, func(w io.Writer) {
			fmt.Fprintf(w, "Обновлено %d из %d ссылок, ошибок: %d\n",
				result.SuccessCount, result.TotalLinks, result.ErrorCount)
			for _, e := range result.Errors {
				fmt.Fprintf(w, "  %s\n", e)
			}
		})
	},
}

func init() {
	refreshAllCmd.Flags().Int64Var(&refreshAllOwner, "owner", 0, "идентификатор пользователя")
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(refreshAllCmd)
}
