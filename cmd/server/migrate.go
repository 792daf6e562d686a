package main

import (
	"fmt"

	"metarest/internal/modules"
	"metarest/internal/pg"

	"github.com/spf13/cobra"
)

var printOnly bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the tables and indexes of every module",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		if printOnly {
			ddl, err := pg.GenerateDDL(modules.All(nil))
			if err != nil {
				return err
			}
			for _, k := range pg.SortedKeys(ddl) {
				fmt.Fprintf(cmd.OutOrStdout(), "-- %s\n%s\n\n", k, ddl[k])
			}
			return nil
		}

		db, err := requireDB(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		ddl, err := pg.GenerateDDL(modules.All(pg.NewStore(db)))
		if err != nil {
			return err
		}
		return pg.ApplyDDL(ctx, db, ddl, log)
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&printOnly, "print", false, "print the DDL instead of applying it")
	rootCmd.AddCommand(migrateCmd)
}
