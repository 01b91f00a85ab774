package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"finitefield.org/hanko-shell/internal/shell"
)

var (
	renderBaseURL string
	renderClicks  []string
)

var renderCmd = &cobra.Command{
	Use:   "render <path>",
	Short: "Render the shell at path and print the document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		base := renderBaseURL
		if base == "" {
			base = cfg.Site.BaseURL
		}
		if base == "" {
			return fmt.Errorf("a base url is required: pass --base-url or set SHELL_SITE_BASE_URL")
		}
		sc, err := shellConfig(cfg, base)
		if err != nil {
			return err
		}
		sc.Path = args[0]

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Server.RenderTimeout)
		defer cancel()
		app, err := shell.New(sc, shell.WithLogger(logger))
		if err != nil {
			return err
		}
		defer app.Close()
		if err := app.Start(ctx); err != nil {
			return err
		}
		for _, sel := range renderClicks {
			out, err := app.Click(ctx, sel)
			if err != nil {
				return err
			}
			if out.Err != nil {
				logger.Sugar().Warnf("click %s: %v", sel, out.Err)
			}
		}
		doc, err := app.HTML()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), doc)
		return err
	},
}

func init() {
	renderCmd.Flags().StringVar(&renderBaseURL, "base-url", "", "site origin to fetch fragments from")
	renderCmd.Flags().StringArrayVar(&renderClicks, "click", nil, "selector to click after start, repeatable")
	rootCmd.AddCommand(renderCmd)
}
