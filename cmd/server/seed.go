package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"metarest/internal/pg"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Execute the *.sql files of the seed directory in name order",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		files, err := filepath.Glob(filepath.Join(cfg.SeedDir, "*.sql"))
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("no *.sql files in %s", cfg.SeedDir)
		}
		sort.Strings(files)

		db, err := requireDB(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		for _, f := range files {
			script, err := os.ReadFile(f)
			if err != nil {
				return err
			}
			if err := pg.ExecFile(ctx, db, filepath.Base(f), string(script)); err != nil {
				return err
			}
			log.Info().Str("file", filepath.Base(f)).Msg("seeded")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
