// Package observability provides structured logging for the world server.
package observability

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/nosgate/internal/config"
)

// NewLogger creates a structured logger from the given logging configuration.
//
// Precondition: cfg.Level must be one of "debug", "info", "warn", "error".
// Precondition: cfg.Format must be "json" or "console".
// Postcondition: Returns a configured zap.Logger or a non-nil error.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	var zapCfg zap.Config
	switch cfg.Format {
	case "json":
		zapCfg = zap.NewProductionConfig()
	case "console":
		zapCfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.Sampling = nil

	logger, err := zapCfg.Build(zap.WrapCore(sampleDebug))
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}

// Debug sampling: the first debugInitial identical entries per second are
// kept, then every debugThereafter-th.
const (
	debugInitial    = 100
	debugThereafter = 100
)

// sampleDebug samples debug entries only. Info and above are always written.
func sampleDebug(core zapcore.Core) zapcore.Core {
	debug := levelRange{Core: core, enabled: zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l == zapcore.DebugLevel
	})}
	rest := levelRange{Core: core, enabled: zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l > zapcore.DebugLevel
	})}
	return zapcore.NewTee(
		zapcore.NewSamplerWithOptions(debug, time.Second, debugInitial, debugThereafter),
		rest,
	)
}

// levelRange passes only the levels enabled admits to the wrapped core.
type levelRange struct {
	zapcore.Core
	enabled zapcore.LevelEnabler
}

func (c levelRange) Enabled(l zapcore.Level) bool {
	return c.enabled.Enabled(l) && c.Core.Enabled(l)
}

func (c levelRange) With(fields []zapcore.Field) zapcore.Core {
	return levelRange{Core: c.Core.With(fields), enabled: c.enabled}
}

func (c levelRange) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(e.Level) {
		return ce.AddCore(e, c)
	}
	return ce
}

// SessionFields returns the fields that identify a player connection in logs.
// Zero ids are omitted so pre-login log lines stay short.
func SessionFields(sessionID string, accountID, characterID int64) []zap.Field {
	fields := []zap.Field{zap.String("session_id", sessionID)}
	if accountID != 0 {
		fields = append(fields, zap.Int64("account_id", accountID))
	}
	if characterID != 0 {
		fields = append(fields, zap.Int64("character_id", characterID))
	}
	return fields
}
