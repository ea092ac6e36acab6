// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package system

import (
	"io"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewCLILogger returns a console logger writing to w. Only warnings and errors
// are shown unless verbose is set, so diagnostics never interleave with the
// operator-facing prompts on stdout.
func NewCLILogger(verbose bool, w io.Writer) *zap.SugaredLogger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339))
	}
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(zapcore.AddSync(w)), level)
	return zap.New(core).Sugar()
}

// NamedFields returns key/value pairs for SugaredLogger.With identifying a
// registry and the configuration file it was declared in.
func NamedFields(registry, source string) []interface{} {
	if source == "" {
		return []interface{}{"registry", registry}
	}
	return []interface{}{"registry", registry, "source", source}
}
