package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chriserin/ftrp/internal/store"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the report store in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunInit(cmd.Context(), cmd.OutOrStdout(), cfg.Store.Path)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

// errNotInitialized is returned by commands that need an existing store.
var errNotInitialized = errors.New("run `ftrp init` first")

func RunInit(ctx context.Context, w io.Writer, storePath string) error {
	dir := filepath.Dir(storePath)
	_, err := os.Stat(dir)
	dirExists := err == nil
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	if dir != "." {
		if dirExists {
			fmt.Fprintf(w, "%s/ already exists\n", dir)
		} else {
			fmt.Fprintf(w, "%s/ created\n", dir)
		}
	}

	_, err = os.Stat(storePath)
	dbExists := err == nil
	sqlDB, err := store.Open(ctx, storePath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	sqlDB.Close()
	if dbExists {
		fmt.Fprintf(w, "%s already exists\n", storePath)
	} else {
		fmt.Fprintf(w, "%s created\n", storePath)
	}

	msgs, err := ensureGitignore(filepath.ToSlash(storePath))
	if err != nil {
		return fmt.Errorf("updating .gitignore: %w", err)
	}
	for _, msg := range msgs {
		fmt.Fprintln(w, msg)
	}

	return nil
}

// openStore opens an initialized store.
func openStore(ctx context.Context, storePath string) (*store.Store, *sql.DB, error) {
	if _, err := os.Stat(storePath); os.IsNotExist(err) {
		return nil, nil, errNotInitialized
	}
	sqlDB, err := store.Open(ctx, storePath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	st, err := store.New(ctx, sqlDB)
	if err != nil {
		sqlDB.Close()
		return nil, nil, err
	}
	return st, sqlDB, nil
}

func ensureGitignore(entry string) ([]string, error) {
	data, err := os.ReadFile(".gitignore")
	if os.IsNotExist(err) {
		if err := os.WriteFile(".gitignore", []byte(entry+"\n"), 0o644); err != nil {
			return nil, err
		}
		return []string{".gitignore created", entry + " added to .gitignore"}, nil
	}
	if err != nil {
		return nil, err
	}

	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == entry {
			return []string{entry + " already in .gitignore"}, nil
		}
	}

	content := string(data)
	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += entry + "\n"

	if err := os.WriteFile(".gitignore", []byte(content), 0o644); err != nil {
		return nil, err
	}
	return []string{entry + " added to .gitignore"}, nil
}
