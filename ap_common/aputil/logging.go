/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

// Package aputil holds the small pieces shared by the ACS tools.
package aputil

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/crypto/ssh/terminal"
)

// LogType chooses between the console and JSON encodings.
type LogType string

// Log types
const (
	LogTypeAuto LogType = ""
	LogTypeDev  LogType = "dev"
	LogTypeProd LogType = "prod"
)

func (l *LogType) String() string {
	switch *l {
	case LogTypeDev:
		return "development"
	case LogTypeProd:
		return "production"
	}
	return "auto"
}

// Set implements pflag.Value.
func (l *LogType) Set(s string) error {
	ss := strings.ToLower(s)
	if len(ss) > 3 {
		ss = ss[0:3]
	}
	switch ss {
	case "dev":
		*l = LogTypeDev
	case "pro":
		*l = LogTypeProd
	case "aut":
		*l = LogTypeAuto
	default:
		return fmt.Errorf("unknown log type '%s'.  Try [dev|prod]", s)
	}
	return nil
}

// Type implements pflag.Value.
func (l *LogType) Type() string {
	return "logtype"
}

type levelValue struct {
	*zapcore.Level
}

func (v levelValue) Type() string {
	return "level"
}

// LogOptions are the logging settings common to every command.
type LogOptions struct {
	Level zapcore.Level
	Type  LogType
}

// AddFlags registers --log-level and --log-type.
func (o *LogOptions) AddFlags(fs *pflag.FlagSet) {
	fs.Var(levelValue{&o.Level}, "log-level",
		"Log level [debug,info,warn,error,panic,fatal]")
	fs.Var(&o.Type, "log-type", "Logging style [dev|prod]")
}

func zapTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006/01/02 15:04:05"))
}

// resolve picks the encoding for an automatic log type: a human reading a
// terminal gets the console style, anything else gets JSON.
func (o *LogOptions) resolve() LogType {
	if o.Type != LogTypeAuto {
		return o.Type
	}
	if terminal.IsTerminal(int(os.Stderr.Fd())) {
		return LogTypeDev
	}
	return LogTypeProd
}

func (o *LogOptions) config() zap.Config {
	var config zap.Config

	if o.resolve() == LogTypeDev {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeTime = zapTimeEncoder
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	config.Level = zap.NewAtomicLevelAt(o.Level)
	config.DisableStacktrace = true
	return config
}

// NewLogger returns a 'sugared' zap logger.  In the console style each line
// has a timestamp, the log level, and the caller before the message.  e.g.:
//	2020/06/01 10:23:27     INFO    ap-acs/select.go:82   selected 36 ...
func (o *LogOptions) NewLogger() (*zap.SugaredLogger, error) {
	logger, err := o.config().Build()
	if err != nil {
		return nil, fmt.Errorf("can't zap: %v", err)
	}
	_ = zap.RedirectStdLog(logger)

	return logger.Sugar(), nil
}
