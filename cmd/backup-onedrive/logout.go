package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/dbrownell/devenv-utilities/internal/config"
	"github.com/dbrownell/devenv-utilities/internal/graph"
)

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout <name>",
		Short: "Remove the cached token for an archive",
		Args:  cobra.ExactArgs(1),
		RunE:  runLogout,
	}
}

func runLogout(_ *cobra.Command, args []string) error {
	logger := buildLogger()

	tokenPath := config.TokenPath(args[0])
	if tokenPath == "" {
		return errors.New("cannot determine token cache location")
	}

	if err := graph.Logout(tokenPath, logger); err != nil {
		return err
	}

	statusf("Signed out of %s.\n", args[0])

	return nil
}
