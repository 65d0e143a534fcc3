// Copyright 2026 The ProtectBackup Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package logger provides the structured, rotating logger shared by every
// component of the backup daemon. Call sites attach the {component,
// event_id, target, kind} fields the error-handling design (spec §7)
// requires via context fields rather than interpolating them into the
// message string.
package logger

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Option configures the rotating file sink and verbosity gate.
type Option struct {
	Filename   string
	MaxSize    int
	MaxAge     int
	MaxBackups int
	Level      int
}

var (
	zapLogger *zap.Logger
	maxLevel  int
)

// Until InitLogger is called, log calls write to stderr, so code that runs
// before the logging config is known (config parsing) can log.
func init() {
	zapLogger = zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(os.Stderr),
		zap.InfoLevel,
	))
	maxLevel = 2
}

// InitLogger initializes the global zap logger over a lumberjack rotating
// file plus stdout (stdout only when op.Filename is empty). Call it once the
// logging config is known; it replaces the stderr logger set up by init.
func InitLogger(op *Option) {
	if op.Level <= 0 {
		maxLevel = 2
	} else {
		maxLevel = op.Level
	}
	var syncer zapcore.WriteSyncer
	if op.Filename == "" {
		syncer = zapcore.AddSync(os.Stdout)
	} else {
		lumberjackLogger := &lumberjack.Logger{
			Filename:   op.Filename,
			MaxSize:    op.MaxSize,
			MaxAge:     op.MaxAge,
			MaxBackups: op.MaxBackups,
			Compress:   true,
		}
		syncer = zapcore.NewMultiWriteSyncer(zapcore.AddSync(lumberjackLogger), zapcore.AddSync(os.Stdout))
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
			TimeKey:      "time",
			LevelKey:     "level",
			MessageKey:   "msg",
			CallerKey:    "C",
			EncodeTime:   zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000"),
			EncodeLevel:  zapcore.CapitalLevelEncoder,
			EncodeCaller: zapcore.ShortCallerEncoder,
		}),
		syncer,
		zap.InfoLevel,
	)
	zapLogger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
}

// Sync flushes any buffered log entries. Call during graceful shutdown.
func Sync() {
	if zapLogger != nil {
		_ = zapLogger.Sync()
	}
}

func Infof(format string, args ...interface{}) {
	zapLogger.Info(fmt.Sprintf(format, args...))
}

func InfoContextf(ctx context.Context, format string, args ...interface{}) {
	zapLogger.Info(fmt.Sprintf(format, args...), contextFields(ctx)...)
}

func Warnf(format string, args ...interface{}) {
	zapLogger.Warn(fmt.Sprintf(format, args...))
}

func WarnContextf(ctx context.Context, format string, args ...interface{}) {
	zapLogger.Warn(fmt.Sprintf(format, args...), contextFields(ctx)...)
}

func Errorf(format string, args ...interface{}) {
	zapLogger.Error(fmt.Sprintf(format, args...))
}

func ErrorContextf(ctx context.Context, format string, args ...interface{}) {
	zapLogger.Error(fmt.Sprintf(format, args...), contextFields(ctx)...)
}

func Fatalf(format string, args ...interface{}) {
	zapLogger.Fatal(fmt.Sprintf(format, args...))
}

func FatalContextf(ctx context.Context, format string, args ...interface{}) {
	zapLogger.Fatal(fmt.Sprintf(format, args...), contextFields(ctx)...)
}
