package main

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"kanban-api/config"
	"kanban-api/storage"
)

func initStorageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-storage",
		Short: "Create the board and users tables and the events queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadStorage()
			if err != nil {
				return err
			}
			cfg.ConfigureLogging()
			return initStorage(cmd.Context(), cfg)
		},
	}
}

func initStorage(ctx context.Context, cfg *config.Config) error {
	log.Info("storage init starting")
	store, err := storage.New(cfg.StorageConnectionString, cfg.BoardTable, cfg.UsersTable)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := store.EnsureTables(ctx); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	if cfg.BoardEventsQueue != "" {
		q, err := storage.NewEventQueue(cfg.StorageConnectionString, cfg.BoardEventsQueue)
		if err != nil {
			return fmt.Errorf("event queue: %w", err)
		}
		if err := q.EnsureQueue(ctx); err != nil {
			return fmt.Errorf("create queue: %w", err)
		}
	}
	log.Info("storage init complete")
	return nil
}
