package main

import (
	"github.com/spf13/cobra"

	"github.com/trezcool/schoolstats/storage/database"
)

var migrateFunc = database.Migrate // mockable

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Migrate the database: up, up-by-one, up-to, down, down-to, redo, reset, status, version, create, fix",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := cli.sqlDB(cmd.Context())
			if err != nil {
				return err
			}
			return migrateFunc(db.DB, args[0], args[1:]...)
		},
	}
}
