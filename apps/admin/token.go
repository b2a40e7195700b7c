package main

import (
	"fmt"

	"github.com/spf13/cobra"

	echoapi "github.com/trezcool/schoolstats/apps/api/echo"
	"github.com/trezcool/schoolstats/core"
)

func (cli *commandLine) tokenCmd() *cobra.Command {
	var id core.Identity
	cmd := &cobra.Command{
		Use:   "token USER_ID",
		Short: "Generate an API token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id.ID = args[0]
			token, err := echoapi.GenerateToken(echoapi.NewClaims(id, cli.conf), cli.conf.SecretKey)
			if err != nil {
				return err
			}
			fmt.Fprintln(cli.out, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&id.Username, "username", "", "Username")
	cmd.Flags().StringVar(&id.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&id.Province, "province", "", "Province of the user's school")
	cmd.Flags().StringVar(&id.Ward, "ward", "", "Ward of the user's school")
	cmd.Flags().StringVar(&id.School, "school", "", "School of the user")
	cmd.Flags().BoolVar(&id.IsAdmin, "admin", false, "Grant administrator rights")
	return cmd
}
