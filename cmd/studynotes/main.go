// Точка входа сервиса конспектов.
// Команды: serve (HTTP API), migrate (миграции БД), iam-members (диагностика IAM), version.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "studynotes",
		Short: "Сервис обмена учебными конспектами",
		Long: `studynotes — HTTP API каталога учебных конспектов.

Файлы хранятся в репозитории GitHub, метаданные и профили — в PostgreSQL.
Администраторы определяются членством в IAM-политике проекта.
Конфигурация задаётся переменными окружения SN_*.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newIAMMembersCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}
