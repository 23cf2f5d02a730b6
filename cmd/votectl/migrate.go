package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func migrateCommand() *cobra.Command {
	var dir string
	c := &cobra.Command{
		Use:   "migrate <name>",
		Short: "Executes the migration file whose name ends with <name>.sql",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			e, err := openEnv(c.Context(), false)
			if err != nil {
				return err
			}
			defer e.Close()

			fileName, content, err := migrationFileContent(dir, args[0])
			if err != nil {
				return err
			}

			if _, err := e.db.ExecContext(c.Context(), string(content)); err != nil {
				return fmt.Errorf("failed to execute %s: %w", fileName, err)
			}

			e.log.Info("migration executed", zap.String("file", fileName))
			return nil
		},
	}
	c.Flags().StringVar(&dir, "dir",
		filepath.Join(".", "internal", "adapters", "repository", "postgres", "migrations"),
		"Directory holding the migration files")
	return c
}

func migrationFileContent(basePath string, migrationName string) (string, []byte, error) {
	fileName, err := migrationFileName(basePath, migrationName)
	if err != nil {
		return "", nil, err
	}

	content, err := os.ReadFile(filepath.Join(basePath, fileName))
	if err != nil {
		return "", nil, err
	}
	return fileName, content, nil
}

func migrationFileName(basePath string, migrationName string) (string, error) {
	pattern := regexp.MustCompile(fmt.Sprintf(`^.*%s\.sql$`, regexp.QuoteMeta(migrationName)))

	files, err := os.ReadDir(basePath)
	if err != nil {
		return "", fmt.Errorf("failed to read migrations: %w", err)
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		if pattern.MatchString(f.Name()) {
			return f.Name(), nil
		}
	}

	return "", fmt.Errorf("migration %q not found in %s", migrationName, basePath)
}
