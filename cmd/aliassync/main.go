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

	"codeberg.org/aliassync/aliassync/pkg/api"
	"codeberg.org/aliassync/aliassync/pkg/audit"
	"codeberg.org/aliassync/aliassync/pkg/cache"
	"codeberg.org/aliassync/aliassync/pkg/config"
	"codeberg.org/aliassync/aliassync/pkg/directory"
	_ "codeberg.org/aliassync/aliassync/pkg/directory/ldap"
	"codeberg.org/aliassync/aliassync/pkg/hook"
	"codeberg.org/aliassync/aliassync/pkg/identity"
	"codeberg.org/aliassync/aliassync/pkg/login"
	"codeberg.org/aliassync/aliassync/pkg/metrics"
	"codeberg.org/aliassync/aliassync/pkg/reconcile"
	"codeberg.org/aliassync/aliassync/pkg/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	configPath := flag.String("config", "/etc/aliassync/config.yaml", "Path to config")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = config.LoadConfig("")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Store)
	if err != nil {
		logger.Fatal("Store init failed", zap.Error(err), zap.String("backend", cfg.Store.Backend))
	}
	defer st.Close()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}
	auditLog := audit.NewLog(audit.WithMaxEntries(cfg.Audit.MaxEntries))

	syncer, err := buildSyncer(cfg, st, m, auditLog, logger)
	if err != nil {
		logger.Fatal("Failed to build sync pipeline", zap.Error(err))
	}

	reg := hook.NewRegistry()
	reg.Register(hook.EventUser2Email, syncer)

	mux := http.NewServeMux()
	api.SetupRoutes(mux, reg, syncer, auditLog, logger)
	if m != nil {
		mux.Handle(cfg.Metrics.Path, m.Handler())
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 40 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server",
			zap.String("addr", cfg.Server.Address),
			zap.String("directory", cfg.LDAP.Server),
			zap.String("store", cfg.Store.Backend),
			zap.Bool("dry_run", cfg.Reconcile.DryRun))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	sCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}

func buildSyncer(cfg *config.Config, st store.IdentityStore, m *metrics.Metrics, auditLog *audit.Log, logger *zap.Logger) (*hook.Syncer, error) {
	dir, err := directory.Create(cfg.LDAP.Driver, cfg.DirectoryOptions())
	if err != nil {
		return nil, err
	}

	attrs := identity.Attributes{
		Mail:         cfg.LDAP.Attributes.Mail,
		Name:         cfg.LDAP.Attributes.Name,
		Organization: cfg.LDAP.Attributes.Organization,
		ReplyTo:      cfg.LDAP.Attributes.ReplyTo,
		Bcc:          cfg.LDAP.Attributes.Bcc,
		Signature:    cfg.LDAP.Attributes.Signature,
	}

	var idOpts []identity.Option
	if cfg.Mail.SanitizeHTMLSignature {
		idOpts = append(idOpts, identity.WithSignatureSanitizer())
	}

	querier := directory.NewQuerier(dir, directory.QueryConfig{
		BaseDN:     cfg.LDAP.BaseDN,
		Filter:     cfg.LDAP.Filter,
		Attributes: attrs.List(),
	}, logger.With(zap.String("component", "directory")))

	engine := reconcile.NewEngine(st, reconcile.Options{
		Concurrency: cfg.Reconcile.Concurrency,
		DryRun:      cfg.Reconcile.DryRun,
	}, logger,
		reconcile.WithAudit(auditLog),
		reconcile.WithMetrics(m),
		reconcile.WithFingerprints(cache.NewStore()),
	)

	logins := login.NewNormalizer(login.Options{
		RemoveDomain:         cfg.Mail.RemoveDomain,
		DefaultDomain:        cfg.Mail.Domain,
		ImpersonateSeparator: cfg.Mail.ImpersonateSeparator,
	}, logger.With(zap.String("component", "login")))

	return hook.NewSyncer(
		logins,
		querier,
		identity.NewNormalizer(attrs, cfg.Mail.Domain, idOpts...),
		engine,
		m,
		logger,
	), nil
}

func initLogger(c config.LoggingConfig) *zap.Logger {
	lvl, _ := zapcore.ParseLevel(c.Level)
	cfg := zap.NewProductionConfig()
	if c.Format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	l, _ := cfg.Build()
	return l
}
