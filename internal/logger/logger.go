// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger provides goux's leveled, structured logging, built
// the way the teacher's internal/logger is: log/slog for the
// structured core, a text or JSON handler selectable at runtime, and
// gopkg.in/natefinch/lumberjack.v2 for on-disk rotation.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/huxgo/kernel/cfg"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Severity levels, extending slog's four built-in levels with a
// below-Debug TRACE and an above-Error OFF so every config severity
// (spec.md's ambient logging stack) maps onto a distinct slog.Level.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelOff   = slog.Level(12)
)

const timeLayout = "2006/01/02 15:04:05.000000"

// loggerFactory holds everything needed to rebuild the default
// logger's handler whenever the format, level, or output target
// changes at runtime.
type loggerFactory struct {
	file            *os.File
	sysWriter       io.Writer
	format          string
	level           string
	logRotateConfig cfg.LogRotateLoggingConfig
}

var defaultLoggerFactory = &loggerFactory{
	format:          "text",
	level:           "INFO",
	logRotateConfig: cfg.GetDefaultLoggingConfig().LogRotate,
}

var programLevel = new(slog.LevelVar)

var defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, programLevel, ""))

// Init builds the default logger from cfg.LoggingConfig — stderr (or
// a rotating log file if FilePath is set), at the configured severity
// and format (spec.md's ambient logging stack, carried regardless of
// any feature Non-goal).
func Init(cfg cfg.LoggingConfig) error {
	if cfg.FilePath == "" {
		return initWriter(os.Stderr, nil, cfg)
	}
	return InitLogFile(cfg)
}

// InitLogFile points the default logger at a lumberjack-rotated file.
func InitLogFile(logCfg cfg.LoggingConfig) error {
	rotate := logCfg.LogRotate
	if rotate == (cfg.LogRotateLoggingConfig{}) {
		rotate = cfg.GetDefaultLoggingConfig().LogRotate
	}
	writer := &lumberjack.Logger{
		Filename:   string(logCfg.FilePath),
		MaxSize:    rotate.MaxFileSizeMb,
		MaxBackups: rotate.BackupFileCount,
		Compress:   rotate.Compress,
	}
	return initWriter(writer, writer, logCfg)
}

func initWriter(w io.Writer, sysWriter io.Writer, logCfg cfg.LoggingConfig) error {
	format := logCfg.Format
	if format == "" {
		format = "json"
	}
	defaultLoggerFactory = &loggerFactory{
		sysWriter:       sysWriter,
		format:          format,
		level:           logCfg.Severity,
		logRotateConfig: logCfg.LogRotate,
	}
	setLoggingLevel(logCfg.Severity, programLevel)
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(w, programLevel, ""))
	return nil
}

// SetLogFormat switches the default logger between "text" and "json"
// without touching its output target or level.
func SetLogFormat(format string) {
	defaultLoggerFactory.format = format
	var w io.Writer = os.Stderr
	if defaultLoggerFactory.sysWriter != nil {
		w = defaultLoggerFactory.sysWriter
	}
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(w, programLevel, ""))
}

func setLoggingLevel(level string, lv *slog.LevelVar) {
	switch strings.ToUpper(level) {
	case "TRACE":
		lv.Set(LevelTrace)
	case "DEBUG":
		lv.Set(LevelDebug)
	case "WARNING":
		lv.Set(LevelWarn)
	case "ERROR":
		lv.Set(LevelError)
	case "OFF":
		lv.Set(LevelOff)
	default:
		lv.Set(LevelInfo)
	}
}

// createJsonOrTextHandler builds a slog.Handler that renames slog's
// built-in "level"/"msg" keys to "severity"/"message" (matching the
// wire shape ops tooling expects) and spells out custom level names
// for TRACE and OFF, which slog has no built-in name for. The JSON
// handler replaces "time" with a "timestamp" group of seconds and
// nanos; the text handler keeps the "time" key, formatted with
// timeLayout.
func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, lv *slog.LevelVar, prefix string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: lv,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey:
				t := a.Value.Time()
				return slog.Group("timestamp",
					slog.Int64("seconds", t.Unix()),
					slog.Int64("nanos", int64(t.Nanosecond())))
			case slog.LevelKey:
				return slog.String("severity", levelName(a.Value.Any().(slog.Level)))
			case slog.MessageKey:
				return slog.String("message", prefix+a.Value.String())
			}
			return a
		},
	}
	if f.format == "text" {
		opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey:
				return slog.String(slog.TimeKey, a.Value.Time().Format(timeLayout))
			case slog.LevelKey:
				return slog.String("severity", levelName(a.Value.Any().(slog.Level)))
			case slog.MessageKey:
				return slog.String("message", prefix+a.Value.String())
			}
			return a
		}
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func levelName(l slog.Level) string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARNING"
	case LevelError:
		return "ERROR"
	case LevelOff:
		return "OFF"
	default:
		return l.String()
	}
}

func Tracef(format string, v ...interface{}) {
	defaultLogger.Log(context.Background(), LevelTrace, fmt.Sprintf(format, v...))
}
func Debugf(format string, v ...interface{}) { defaultLogger.Debug(fmt.Sprintf(format, v...)) }
func Infof(format string, v ...interface{})  { defaultLogger.Info(fmt.Sprintf(format, v...)) }
func Warnf(format string, v ...interface{})  { defaultLogger.Warn(fmt.Sprintf(format, v...)) }
func Errorf(format string, v ...interface{}) { defaultLogger.Error(fmt.Sprintf(format, v...)) }

// Tick logs a DEBUG-level scheduler heartbeat carrying the tick count
// and the running process's name. No code in this module calls it:
// the scheduler loops in internal/proc and internal/kernel tick
// without logging.
func Tick(tick int64, running string) {
	defaultLogger.Debug("tick", slog.Int64("tick", tick), slog.String("running", running))
}
