package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/me/autograde/internal/logging"
	"github.com/me/autograde/internal/mockexec"
)

func main() {
	cfg := mockexec.DefaultConfig()

	addr := flag.String("addr", ":5111", "Listen address")
	flag.IntVar(&cfg.Grade, "grade", cfg.Grade, "Grade returned for every submission (0-100)")
	flag.StringVar(&cfg.Feedback, "feedback", cfg.Feedback, "Feedback returned for every submission")
	flag.Float64Var(&cfg.DelaySec, "delay", cfg.DelaySec, "Seconds to wait before answering")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "text", "Log format (text, json)")
	flag.Parse()

	logger := logging.NewLogger(logging.ParseLevel(*logLevel), *logFormat)

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           mockexec.New(cfg, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("mock executor starting", "addr", *addr, "grade", cfg.Grade, "delay_sec", cfg.DelaySec)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("mock executor stopped")
}
