package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"owl-restaurant/internal/common/database"
	"owl-restaurant/internal/config"
	"owl-restaurant/internal/migrate"
)

var migrationsDir string

func main() {
	rootCmd := &cobra.Command{
		Use:   "apply-migration",
		Short: "Apply owl-restaurant SQL migrations (DB_* env or CONFIG_FILE)",
	}
	rootCmd.PersistentFlags().StringVarP(&migrationsDir, "dir", "d", "db/migrations", "migrations directory")

	rootCmd.AddCommand(upCmd())
	rootCmd.AddCommand(listCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openDB() (*sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to database: %w", err)
	}
	fmt.Printf("Connected to database: %s\n\n", cfg.Database.Database)
	return db, nil
}

func upCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up [migration_file.sql...]",
		Short: "Apply the given files, or every pending file in --dir",
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := selectFiles(args)
			if err != nil {
				return err
			}
			db, err := openDB()
			if err != nil {
				return err
			}
			defer database.Close(db)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := migrate.EnsureTable(ctx, db); err != nil {
				return err
			}
			for _, f := range files {
				content, err := os.ReadFile(f.Path)
				if err != nil {
					return fmt.Errorf("failed to read migration file: %w", err)
				}
				applied, err := migrate.Apply(ctx, db, f.Name, string(content))
				if err != nil {
					return err
				}
				if applied {
					fmt.Printf("applied  %s\n", f.Name)
				} else {
					fmt.Printf("skipped  %s (already applied)\n", f.Name)
				}
			}
			fmt.Println("\nMigration completed successfully")
			return nil
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show migration files in --dir and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := migrate.Discover(migrationsDir)
			if err != nil {
				return err
			}
			db, err := openDB()
			if err != nil {
				return err
			}
			defer database.Close(db)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := migrate.EnsureTable(ctx, db); err != nil {
				return err
			}
			statuses, err := migrate.List(ctx, db, files)
			if err != nil {
				return err
			}
			for _, st := range statuses {
				if st.AppliedAt != nil {
					fmt.Printf("%-40s applied %s\n", st.Name, st.AppliedAt.Format("2006-01-02 15:04:05"))
				} else {
					fmt.Printf("%-40s pending\n", st.Name)
				}
			}
			return nil
		},
	}
}

// selectFiles 参数为空时取 --dir 下全部文件
func selectFiles(args []string) ([]migrate.File, error) {
	if len(args) == 0 {
		return migrate.Discover(migrationsDir)
	}
	files := make([]migrate.File, 0, len(args))
	for _, p := range args {
		files = append(files, migrate.File{Name: filepath.Base(p), Path: p})
	}
	return files, nil
}
