package main

import (
	"fmt"

	"github.com/Astemirdum/circulation-service/circulation/app"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Run: func(cmd *cobra.Command, args []string) {
		app.Run(loadConfig())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.Migrate(loadConfig())
	},
}

var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Expire pending reservations past their expiration date",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := app.Expire(loadConfig())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "expired %d reservations\n", n)
		return nil
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Report books whose available copies disagree with active loans",
	RunE: func(cmd *cobra.Command, args []string) error {
		drift, err := app.Audit(loadConfig())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(drift) == 0 {
			fmt.Fprintln(out, "inventory consistent")
			return nil
		}
		for _, d := range drift {
			fmt.Fprintf(out, "%s total=%d available=%d active=%d expected=%d\n",
				d.BookID, d.TotalCopies, d.AvailableCopies, d.ActiveLoans, d.Expected())
		}
		return errors.Errorf("%d books drifted", len(drift))
	},
}
