package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"bankledger/internal/config"
	"bankledger/internal/db"
	"bankledger/internal/observability"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	logger := observability.NewLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}
	defer database.Close()

	applied, err := migrate(context.Background(), database, cfg.MigrationsDir)
	for _, filename := range applied {
		logger.Info("applied migration", zap.String("file", filename))
	}
	if err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}
	logger.Info("migrations complete", zap.Int("applied", len(applied)))
}

// migrate applies every pending *.sql file in dir in name order. Each file
// and its schema_migrations row commit together.
func migrate(ctx context.Context, database *sqlx.DB, dir string) ([]string, error) {
	if _, err := database.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (filename text primary key, applied_at timestamptz default now())`); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations: %w", err)
	}
	files, err := migrationFiles(dir)
	if err != nil {
		return nil, err
	}
	applied := []string{}
	for _, file := range files {
		filename := filepath.Base(file)
		var exists bool
		if err := database.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, filename); err != nil {
			return applied, fmt.Errorf("read migration state: %w", err)
		}
		if exists {
			continue
		}
		content, err := os.ReadFile(file)
		if err != nil {
			return applied, err
		}
		err = db.WithTx(ctx, database, func(tx *sqlx.Tx) error {
			for _, stmt := range splitSQL(upSection(string(content))) {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, filename)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("apply %s: %w", filename, err)
		}
		applied = append(applied, filename)
	}
	return applied, nil
}

func migrationFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// upSection drops everything after the "-- +migrate Down" marker.
func upSection(content string) string {
	up, _, _ := strings.Cut(content, "-- +migrate Down")
	return up
}

// splitSQL splits on lines containing ';' and drops comment lines. It does
// not understand dollar-quoted bodies.
func splitSQL(sqlText string) []string {
	var statements []string
	var current strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(sqlText))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		current.WriteString(line)
		current.WriteRune('\n')
		if strings.Contains(line, ";") {
			statements = append(statements, current.String())
			current.Reset()
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		statements = append(statements, current.String())
	}
	return statements
}
