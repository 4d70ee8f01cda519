package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/codeforge/assistant/internal/config"
	"github.com/codeforge/assistant/runtime/store/pgckpt"
	"github.com/codeforge/assistant/runtime/store/sqliteconv"
)

// migrateCmd initializes a durable CheckpointBackend/ConversationBackend's
// schema ahead of a `serve` run, grounded on the teacher's cmd/migrate.go
// shape (a dedicated subcommand run before the gateway starts). Unlike the
// teacher, which drives golang-migrate across versioned *.sql files, this
// repo's sqliteconv/pgckpt stores already own idempotent
// "CREATE TABLE IF NOT EXISTS" schemas applied on every Open/connect — so
// migrate here simply opens each configured SQL-backed store once and
// reports success, rather than introducing a net-new migration-file
// dependency this repo's backends don't need.
func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Initialize durable storage schema (sqlite/postgres)",
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(runMigrate())
		},
	}
}

func runMigrate() int {
	_ = godotenv.Load(resolveEnvFile())

	cfg, err := config.Load(func(msg string) { fmt.Fprintln(os.Stderr, "config warning:", msg) })
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return exitConfigError
	}

	ctx := context.Background()
	ran := false

	if cfg.ConversationBackend == "sqlite" {
		s, err := sqliteconv.Open(cfg.SQLitePath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "sqlite conversation schema:", err)
			return exitStorageUnavail
		}
		_ = s.Close()
		fmt.Printf("conversation schema ready: sqlite at %s\n", cfg.SQLitePath)
		ran = true
	}

	if cfg.CheckpointBackend == "postgres" {
		s, err := pgckpt.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			fmt.Fprintln(os.Stderr, "postgres checkpoint schema:", err)
			return exitStorageUnavail
		}
		s.Close()
		fmt.Println("checkpoint schema ready: postgres")
		ran = true
	}

	if !ran {
		fmt.Println("no SQL-backed store configured (ConversationBackend/CheckpointBackend are memory or mongo); nothing to do")
	}
	return exitOK
}
