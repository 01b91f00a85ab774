package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"finitefield.org/hanko-shell/internal/httpserver"
	mw "finitefield.org/hanko-shell/internal/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the static site and the shell render endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg, logger, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		baseURL := cfg.Site.BaseURL
		if baseURL == "" {
			// Fragments come from this process's own static handler.
			baseURL = "http://127.0.0.1:" + cfg.Server.Port
		}
		sc, err := shellConfig(cfg, baseURL)
		if err != nil {
			return err
		}
		if cfg.Session.SigningKey == "" {
			logger.Warn("SHELL_SESSION_SIGNING_KEY not set; sessions will not survive restarts")
		}

		srv := httpserver.New(httpserver.Config{
			Addr:          ":" + cfg.Server.Port,
			SiteDir:       cfg.Site.Dir,
			Shell:         sc,
			RenderTimeout: cfg.Server.RenderTimeout,
			ReadTimeout:   cfg.Server.ReadTimeout,
			WriteTimeout:  cfg.Server.WriteTimeout,
			IdleTimeout:   cfg.Server.IdleTimeout,
			Sessions:      mw.NewSessions(cfg.Session.SigningKey, cfg.Session.CookieName, cfg.Session.Secure),
		}, logger)
		if err := srv.ListenAndServe(ctx); err != nil {
			logger.Error("server stopped", zap.Error(err))
			return err
		}
		logger.Info("server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
