package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"citycore/internal/logging"
	"citycore/internal/persistence/indexdb"
	persistlog "citycore/internal/persistence/log"
	"citycore/internal/protocol"
	"citycore/internal/sim/tuning"
	"citycore/internal/sim/world"
)

type serverOptions struct {
	Addr        string
	TuningPath  string
	DataDir     string
	LogLevel    string
	LogFormat   string
	DisableDB   bool
	DisableLogs bool
	AdminHTTP   bool
	RemoteObs   bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &serverOptions{}
	cmd := &cobra.Command{
		Use:           "citycore-server",
		Short:         "Run the authoritative city world",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Addr, "addr", ":8080", "http listen address")
	f.StringVar(&opts.TuningPath, "tuning", "./configs/tuning.yaml", "path to tuning.yaml (built-in defaults when missing)")
	f.StringVar(&opts.DataDir, "data", "./data", "runtime data directory")
	f.StringVar(&opts.LogLevel, "log-level", envOr("CITY_LOG_LEVEL", "info"), "log level (debug|info|warn|error)")
	f.StringVar(&opts.LogFormat, "log-format", envOr("CITY_LOG_FORMAT", "text"), "log format (text|json)")
	f.BoolVar(&opts.DisableDB, "disable-db", false, "disable the sqlite index")
	f.BoolVar(&opts.DisableLogs, "disable-logs", false, "disable the tick and audit JSONL logs")
	f.BoolVar(&opts.AdminHTTP, "admin-http", true, "serve loopback-only /admin/v1 endpoints")
	f.BoolVar(&opts.RemoteObs, "remote-observers", false, "allow spectators from non-loopback addresses")
	return cmd
}

func run(parent context.Context, opts *serverOptions) error {
	logger := logging.New(opts.LogLevel, opts.LogFormat, os.Stdout)
	log := logging.Component(logger, "server")

	tune, err := loadTuning(opts.TuningPath, log)
	if err != nil {
		return err
	}
	worldDir := filepath.Join(opts.DataDir, "worlds", tune.WorldID)

	w, err := world.New(tune, nil, logger)
	if err != nil {
		return fmt.Errorf("world: %w", err)
	}
	validator, err := protocol.NewValidator()
	if err != nil {
		return fmt.Errorf("schemas: %w", err)
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var idx *indexdb.SQLiteIndex
	if !opts.DisableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"), logger)
		if err != nil {
			return fmt.Errorf("index db: %w", err)
		}
		defer idx.Close()
		if err := idx.UpsertTuning(ctx, tune); err != nil {
			log.WithError(err).Warn("index tuning")
		}
		w.SetStateRecorder(idx)
	}

	var ticks multiTickLogger
	var audits multiAuditLogger
	if !opts.DisableLogs {
		tickLog := persistlog.NewTickLogger(worldDir)
		auditLog := persistlog.NewAuditLogger(worldDir)
		defer tickLog.Close()
		defer auditLog.Close()
		ticks = append(ticks, tickLog)
		audits = append(audits, auditLog)
	}
	if idx != nil {
		ticks = append(ticks, idx)
		audits = append(audits, idx)
	}
	if len(ticks) > 0 {
		w.SetTickLogger(ticks)
	}
	if len(audits) > 0 {
		w.SetAuditLogger(audits)
	}

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("world stopped")
		}
	}()

	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           newMux(w, validator, idx, opts, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	log.WithFields(logrus.Fields{"addr": opts.Addr, "world": tune.WorldID, "data": worldDir}).Info("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cancel()
		<-worldDone
		return fmt.Errorf("listen: %w", err)
	}
	<-worldDone
	log.Info("stopped")
	return nil
}

func loadTuning(path string, log logrus.FieldLogger) (tuning.Tuning, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return tuning.Defaults(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		log.WithField("path", path).Warn("tuning file not found, using defaults")
		return tuning.Defaults(), nil
	}
	t, err := tuning.Load(path)
	if err != nil {
		return t, fmt.Errorf("load tuning: %w", err)
	}
	return t, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

type multiTickLogger []world.TickLogger

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	var errs []error
	for _, l := range m {
		if err := l.WriteTick(entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type multiAuditLogger []world.AuditLogger

func (m multiAuditLogger) WriteAudit(entry world.AuditEntry) error {
	var errs []error
	for _, l := range m {
		if err := l.WriteAudit(entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
