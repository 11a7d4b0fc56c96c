package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/bigkaa/studynotes/internal/config"
	"github.com/bigkaa/studynotes/internal/database"
	"github.com/bigkaa/studynotes/internal/iam"
)

// newMigrateCmd — применение миграций без запуска сервера.
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Применить миграции БД",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadDatabase()
			if err != nil {
				return fmt.Errorf("загрузка конфигурации: %w", err)
			}
			logger := config.SetupLogger(cfg)
			return database.Migrate(cfg, logger)
		},
	}
}

// newIAMMembersCmd — однократное чтение IAM-политики и вывод email участников.
// Использует тот же fetcher, что и кэш членства.
func newIAMMembersCmd() *cobra.Command {
	var (
		jsonOutput bool
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "iam-members",
		Short: "Показать участников IAM-политики (будущих администраторов)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadIAMOnly()
			if err != nil {
				return fmt.Errorf("загрузка конфигурации: %w", err)
			}
			logger := config.SetupLogger(cfg)

			fetcher, err := iam.NewPolicyFetcher(iam.FetcherConfig{
				ProjectID:   cfg.IAMProjectID,
				ClientEmail: cfg.IAMClientEmail,
				PrivateKey:  cfg.IAMPrivateKey,
				TokenURL:    cfg.IAMTokenURL,
				Endpoint:    cfg.IAMEndpoint,
			}, logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			members, err := fetcher.FetchMembers(ctx)
			if err != nil {
				return fmt.Errorf("чтение IAM-политики: %w", err)
			}

			emails := make([]string, 0, len(members))
			for m := range members {
				emails = append(emails, m)
			}
			slices.Sort(emails)

			logger.Debug("IAM-политика прочитана",
				slog.String("project", cfg.IAMProjectID),
				slog.Int("members", len(emails)),
			)

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"project": cfg.IAMProjectID, "members": emails})
			}
			for _, e := range emails {
				fmt.Fprintln(cmd.OutOrStdout(), e)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Вывод в формате JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Таймаут запроса к IAM")

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Показать версию",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "studynotes %s\n", config.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "  go:      %s\n", runtime.Version())
			fmt.Fprintf(cmd.OutOrStdout(), "  os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
