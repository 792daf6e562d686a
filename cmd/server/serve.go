package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"metarest/internal/api"
	"metarest/internal/auth"
	"metarest/internal/docs"
	"metarest/internal/metrics"
	"metarest/internal/module"
	"metarest/internal/modules"
	"metarest/internal/pg"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, db, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	reg := module.NewRegistry()
	if err := modules.Register(reg, st); err != nil {
		return err
	}
	if db != nil && cfg.AutoMigrate {
		ddl, err := pg.GenerateDDL(reg.All())
		if err != nil {
			return err
		}
		if err := pg.ApplyDDL(ctx, db, ddl, log); err != nil {
			return err
		}
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promReg)

	e := api.NewEngine(st, docs.New(cfg.AppName, version), log, m)
	e.Production = cfg.IsProduction()
	e.Blob = &api.LocalBlobStore{Root: cfg.FilesRoot}
	e.UploadURLPath = cfg.UploadURLPath
	e.MaxUploadBytes = cfg.MaxUploadBytes

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(e, reg, auth.NewTokenService(cfg.AuthSecret)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Int("modules", len(reg.All())).Msg("starting http server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
