// Package log builds structured loggers for secscan's services. It wraps
// zap behind logr so the rest of the codebase depends only on the logr
// interface, the way scan-local code depends on context.Context rather than
// a concrete goroutine.
package log

import (
	"io"
	"strconv"
	"time"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/getsentry/sentry-go"
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// level is the process-wide atomic verbosity level shared by every sink
// created without an explicit leveler. V(n) logs are enabled when n <= level.
var level = zap.NewAtomicLevelAt(zapLevel(0))

// SetLevel adjusts the process-wide default verbosity. 0 is Info; higher
// numbers enable increasingly verbose V(n) logs.
func SetLevel(v int8) { level.SetLevel(zapLevel(v)) }

func zapLevel(v int8) zapcore.Level { return zapcore.Level(-int8(v)) }

type options struct {
	cores       []zapcore.Core
	sentryCore  zapcore.Core
	sentryErr   error
	closers     []func() error
}

// Option configures a logger built with New.
type Option func(*options)

// WithConsoleSink writes human-readable, tab-separated lines to w.
func WithConsoleSink(w io.Writer, sinkOpts ...SinkOption) Option {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(levelName(l))
	}
	enc := zapcore.NewConsoleEncoder(cfg)
	return withCore(enc, w, sinkOpts...)
}

// WithJSONSink writes one JSON object per line to w.
func WithJSONSink(w io.Writer, sinkOpts ...SinkOption) Option {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeLevel = func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(levelName(l))
	}
	enc := zapcore.NewJSONEncoder(cfg)
	return withCore(enc, w, sinkOpts...)
}

func withCore(enc zapcore.Encoder, w io.Writer, sinkOpts ...SinkOption) Option {
	s := &sinkConfig{leveler: level}
	for _, o := range sinkOpts {
		o(s)
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(w), s.leveler)
	return func(o *options) { o.cores = append(o.cores, core) }
}

type sinkConfig struct {
	leveler zapcore.LevelEnabler
}

// SinkOption tunes an individual sink created by WithConsoleSink/WithJSONSink.
type SinkOption func(*sinkConfig)

// WithLevel pins a sink to a fixed verbosity instead of the process default.
func WithLevel(v int8) SinkOption {
	return func(s *sinkConfig) { s.leveler = zapLevel(v) }
}

// WithLeveler attaches a caller-owned, independently adjustable level.
func WithLeveler(l zap.AtomicLevel) SinkOption {
	return func(s *sinkConfig) { s.leveler = l }
}

// WithSentry forwards Error-level logs to Sentry. Misconfiguration (e.g. an
// invalid DSN) does not fail logger construction; it degrades to a no-op and
// the flush error is surfaced instead.
func WithSentry(clientOpts sentry.ClientOptions, tags map[string]string) Option {
	return func(o *options) {
		client, err := sentry.NewClient(clientOpts)
		if err != nil {
			o.sentryErr = err
			return
		}
		core, err := zapsentry.NewCore(
			zapsentry.Configuration{Level: zapcore.ErrorLevel, Tags: tags},
			zapsentry.NewSentryClientFromClient(client),
		)
		if err != nil {
			o.sentryErr = err
			return
		}
		o.sentryCore = core
		o.closers = append(o.closers, func() error {
			if !client.Flush(flushTimeout) {
				return errFlushTimedOut
			}
			return nil
		})
	}
}

// New builds a named logr.Logger from the given sinks. The returned flush
// function blocks until buffered entries (console/JSON/Sentry) are written
// and should be deferred by the process entry point.
func New(name string, opts ...Option) (logr.Logger, func() error) {
	var cfg options
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.cores) == 0 {
		cfg.cores = append(cfg.cores, withDiscardCore())
	}

	tee := zapcore.NewTee(cfg.cores...)
	zlog := zap.New(tee).Named(name)
	logger := zapr.NewLogger(zlog)

	if cfg.sentryErr != nil {
		logger.Error(cfg.sentryErr, "error configuring logger")
	} else if cfg.sentryCore != nil {
		zlog = zlog.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, cfg.sentryCore)
		}))
		logger = zapr.NewLogger(zlog)
	}

	flush := func() error {
		_ = zlog.Sync()
		var firstErr error
		for _, c := range cfg.closers {
			if err := c(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
	return logger, flush
}

// AddSink returns a new logger that writes to the union of an existing
// logger's sinks plus the newly supplied ones. Used when a component (e.g. a
// scan) wants its own rotating log file in addition to the process logger.
func AddSink(existing logr.Logger, opts ...Option) (logr.Logger, func() error, error) {
	sink, ok := existing.GetSink().(zapr.Underlier)
	if !ok {
		l, flush := New("", opts...)
		return l, flush, errNotAZapLogger
	}
	zlog := sink.GetUnderlying()

	var cfg options
	for _, opt := range opts {
		opt(&cfg)
	}
	zlog = zlog.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(append([]zapcore.Core{c}, cfg.cores...)...)
	}))
	return zapr.NewLogger(zlog), func() error { return zlog.Sync() }, cfg.sentryErr
}

func withDiscardCore() zapcore.Core {
	return zapcore.NewNopCore()
}

func levelName(l zapcore.Level) string {
	switch {
	case l < 0:
		return "info-" + strconv.Itoa(int(-l))
	case l == zapcore.ErrorLevel:
		return "error"
	case l == zapcore.WarnLevel:
		return "warn"
	default:
		return l.String()
	}
}

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

const (
	errFlushTimedOut sentinelError = "sentry flush timed out"
	errNotAZapLogger sentinelError = "logger is not backed by zap; cannot add sink"

	flushTimeout = 2 * time.Second
)
