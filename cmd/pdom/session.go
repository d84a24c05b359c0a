package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"pdom/internal/config"
	"pdom/internal/db"
	"pdom/internal/linkage"
	"pdom/internal/logging"
	"pdom/internal/metrics"
	"pdom/internal/observ"
	"pdom/internal/pdom"
	"pdom/internal/prof"
	"pdom/internal/trace"
)

// session is the state shared by every command of one invocation.
type session struct {
	fs       afero.Fs
	cfg      config.Config
	cfgPath  string
	memory   bool
	log      *slog.Logger
	tracer   trace.Tracer
	span     *trace.Span
	registry *prometheus.Registry
	metrics  *metrics.Index
	timer    *observ.Timer
	timings  bool
	prof     *prof.Session
	ix       *pdom.Index
}

var current *session

// startSession loads pdom.toml, applies flag overrides and sets up logging,
// tracing and metrics. The index itself is opened lazily by openIndex.
func startSession(cmd *cobra.Command, args []string) error {
	s := &session{fs: afero.NewOsFs(), timer: observ.NewTimer()}
	flags := cmd.Root().PersistentFlags()

	colorMode, err := flags.GetString("color")
	if err != nil {
		return err
	}
	if err := setupColor(colorMode); err != nil {
		return err
	}
	if s.timings, err = flags.GetBool("timings"); err != nil {
		return err
	}

	phase := s.timer.Begin("config")
	if err := s.loadConfig(cmd); err != nil {
		return err
	}
	s.timer.End(phase, s.cfgPath)

	params, err := s.cfg.LogParameters()
	if err != nil {
		return fmt.Errorf("log settings: %w", err)
	}
	s.log = logging.New(cmd.ErrOrStderr(), params)

	tcfg, err := s.cfg.TraceConfig()
	if err != nil {
		return fmt.Errorf("trace settings: %w", err)
	}
	tcfg.Fs = s.fs
	if s.tracer, err = trace.New(tcfg); err != nil {
		return fmt.Errorf("failed to create tracer: %w", err)
	}
	s.span = trace.Begin(s.tracer, trace.ScopeCommand, cmd.CommandPath(), 0)
	ctx := trace.WithTracer(cmd.Context(), s.tracer)
	cmd.SetContext(trace.WithSpan(ctx, s.span))

	s.registry = prometheus.NewRegistry()
	if s.metrics, err = metrics.NewIndex(s.registry); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	var popts prof.Options
	for _, f := range []struct {
		name string
		dst  *string
	}{{"cpu-profile", &popts.CPU}, {"mem-profile", &popts.Heap}, {"runtime-trace", &popts.Trace}} {
		if *f.dst, err = flags.GetString(f.name); err != nil {
			return err
		}
	}
	if s.prof, err = prof.Start(s.fs, popts); err != nil {
		return err
	}

	current = s
	s.log.Debug("session started", "command", cmd.CommandPath(), "config", s.cfgPath, "log", params.String())
	return nil
}

func (s *session) loadConfig(cmd *cobra.Command) error {
	flags := cmd.Root().PersistentFlags()
	path, err := flags.GetString("config")
	if err != nil {
		return err
	}
	if path != "" {
		if s.cfg, err = config.Load(s.fs, path); err != nil {
			return err
		}
		s.cfgPath = path
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		if s.cfg, s.cfgPath, err = config.Discover(s.fs, wd); err != nil {
			return err
		}
	}

	overrides := []struct {
		flag string
		dst  *string
	}{
		{"store", &s.cfg.Store.Path},
		{"log-level", &s.cfg.Log.Level},
		{"log-format", &s.cfg.Log.Format},
		{"trace", &s.cfg.Trace.Output},
		{"trace-level", &s.cfg.Trace.Level},
		{"trace-mode", &s.cfg.Trace.Mode},
	}
	for _, o := range overrides {
		if !flags.Changed(o.flag) {
			continue
		}
		if *o.dst, err = flags.GetString(o.flag); err != nil {
			return err
		}
	}
	// naming an output without a level means the caller wants a trace
	if flags.Changed("trace") && !flags.Changed("trace-level") && s.cfg.Trace.Level == "off" {
		s.cfg.Trace.Level = "tx"
	}
	if s.memory, err = flags.GetBool("memory"); err != nil {
		return err
	}
	return s.cfg.Validate()
}

// openIndex opens the configured store and attaches an index to it.
func (s *session) openIndex() (*pdom.Index, error) {
	if s.ix != nil {
		return s.ix, nil
	}
	phase := s.timer.Begin("open")
	opts := db.Options{ChunkSize: s.cfg.Store.ChunkSize}
	var (
		d   *db.Database
		err error
	)
	if s.memory {
		d, err = db.OpenMemory(opts)
	} else {
		if dir := filepath.Dir(s.cfg.Store.Path); dir != "." {
			if err := s.fs.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		d, err = db.Open(s.fs, s.cfg.Store.Path, opts)
	}
	if err != nil {
		return nil, err
	}
	reg, err := linkage.NewRegistry()
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	ix, err := pdom.Open(d, pdom.Options{
		Registry: reg,
		Buckets:  s.cfg.Store.Buckets,
		Logger:   s.log,
		Tracer:   s.tracer,
		Metrics:  s.metrics,
	})
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	s.timer.End(phase, s.storeName())
	s.ix = ix
	return ix, nil
}

func (s *session) storeName() string {
	if s.memory {
		return "memory"
	}
	return s.cfg.Store.Path
}

// endSession closes the index and flushes the tracer. Timings go to stderr,
// and so does the in-memory trace when the command failed.
func endSession(cmd *cobra.Command, cmdErr error) error {
	s := current
	if s == nil {
		return nil
	}
	current = nil

	var errs []error
	if s.ix != nil {
		phase := s.timer.Begin("close")
		errs = append(errs, s.ix.Close())
		s.timer.End(phase, "")
	}
	if cmdErr != nil {
		s.span.End(cmdErr.Error())
		// a stream tracer already printed everything
		if d, ok := s.tracer.(trace.Dumper); ok && strings.EqualFold(s.cfg.Trace.Mode, "ring") {
			format, _ := trace.ParseFormat(s.cfg.Trace.Format)
			errs = append(errs, d.Dump(cmd.ErrOrStderr(), format))
		}
	} else {
		s.span.End("")
	}
	if err := s.tracer.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("trace: flush: %w", err))
	}
	if err := s.tracer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("trace: close: %w", err))
	}
	errs = append(errs, s.prof.Stop())
	if s.timings {
		fmt.Fprint(cmd.ErrOrStderr(), s.timer.Summary())
	}
	return errors.Join(errs...)
}

// withIndex opens the index for a command body.
func withIndex(fn func(s *session, ix *pdom.Index) error) error {
	s := current
	if s == nil {
		return errors.New("session not started")
	}
	ix, err := s.openIndex()
	if err != nil {
		return err
	}
	return fn(s, ix)
}
