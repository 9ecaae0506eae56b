package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"

	"github.com/mpromonet/gin-spotdetect/internal/config"
	"github.com/mpromonet/gin-spotdetect/internal/crowd"
	"github.com/mpromonet/gin-spotdetect/internal/detector"
	"github.com/mpromonet/gin-spotdetect/internal/lgr"
	"github.com/mpromonet/gin-spotdetect/internal/postproc"
	"github.com/mpromonet/gin-spotdetect/internal/store"
	"github.com/mpromonet/gin-spotdetect/internal/web"
)

// must exceed the longest video detection we want to let finish
const waitOnShutdown = 30 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		lgr.Logger.Error("invalid configuration", lgr.Err(err))
		os.Exit(2)
	}
	closer := lgr.Init(cfg.Log)
	defer closer.Close()

	if err := run(cfg); err != nil {
		slog.Error("spotdetect stopped", lgr.Err(err))
		closer.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(cfg.Storage.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	created, err := st.EnsureAdmin(cfg.Bootstrap.AdminUser, cfg.Bootstrap.AdminPassword)
	if err != nil {
		return err
	}
	if created {
		slog.Info("admin account created", "username", cfg.Bootstrap.AdminUser)
	}

	labels, err := postproc.LoadLabels(cfg.Model.Labels)
	if err != nil {
		return err
	}
	post, err := postproc.ForName(cfg.Model.PostProcessing)
	if err != nil {
		return err
	}
	model, err := detector.NewModel(cfg.Model)
	if err != nil {
		return err
	}
	defer model.Close()

	// the worker outlives the signal so requests still in flight during
	// Shutdown get their answer
	det := detector.New(model, post, labels, cfg.Model)
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	workerDone := make(chan struct{})
	go func() {
		det.Run(workerCtx)
		close(workerDone)
	}()

	gin.SetMode(gin.ReleaseMode)
	srv, err := web.New(cfg, st, det, crowd.NewSimulator(cfg.Crowd.Min, cfg.Crowd.Max, nil))
	if err != nil {
		stopWorker()
		<-workerDone
		return err
	}
	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpSrv.ListenAndServe()
	}()
	banner(cfg, len(labels))

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			stopWorker()
			<-workerDone
			return err
		}
	case <-ctx.Done():
		slog.Info("received kill signal, shutting down")
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), waitOnShutdown)
	defer stop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", lgr.Err(err))
	}
	stopWorker()
	<-workerDone
	slog.Info("spotdetect exited")
	return nil
}

func banner(cfg *config.Config, labels int) {
	title := color.New(color.FgGreen, color.Bold)
	title.Println("spotdetect")
	color.Cyan("  listening on   %s", cfg.Listen)
	color.Cyan("  model          %s (%s, %d labels)", cfg.Model.Path, cfg.Model.PostProcessing, labels)
	color.Cyan("  database       %s", cfg.Storage.Database)
	if cfg.Model.EdgeTPU {
		color.Yellow("  edgetpu delegate enabled")
	}
	slog.Info("server started", "listen", cfg.Listen, "model", cfg.Model.Path)
}
