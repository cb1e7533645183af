package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLoginCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authorize access and store the token",
		Long: `Run the browser authorization flow: open the printed URL, approve access
and paste the URL you are redirected to. The token is stored in the
configured token store and refreshed automatically by later runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.RequireCredentials(); err != nil {
				return withCode(ExitConfig, err)
			}

			rdb, err := a.redisClient(cmd.Context())
			if err != nil {
				return err
			}
			if rdb != nil {
				defer rdb.Close()
			}

			provider, err := a.provider(rdb, true)
			if err != nil {
				return err
			}
			tok, err := provider.Login(cmd.Context())
			if err != nil {
				return withCode(ExitAuth, err)
			}

			fmt.Fprintf(a.stderr, "\nLogin successful, token valid until %s\n", tok.Expiry.Local().Format("2006-01-02 15:04"))
			return nil
		},
	}
}
