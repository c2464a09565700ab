// Package logging builds the logrus logger used by the reservo binaries and
// adapts it to reservo.Logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/AshkanYarmoradi/go-reservo"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// New returns a logger writing to stderr at level in the given format.
func New(level, format string) (*log.Logger, error) {
	return NewWithWriter(os.Stderr, level, format)
}

// NewWithWriter is New with an explicit output.
func NewWithWriter(w io.Writer, level, format string) (*log.Logger, error) {
	logger := log.New()
	logger.SetOutput(w)

	if level == "" {
		level = "info"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	logger.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", FormatText:
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case FormatJSON:
		logger.SetFormatter(&log.JSONFormatter{})
	default:
		return nil, fmt.Errorf("logging: unknown format %q", format)
	}
	return logger, nil
}

type adapter struct {
	entry log.FieldLogger
}

// Adapt wraps l as a reservo.Logger. Key/value args become logrus fields;
// a trailing key without a value is logged under "extra".
func Adapt(l log.FieldLogger) reservo.Logger {
	return &adapter{entry: l}
}

func (a *adapter) with(args []interface{}) log.FieldLogger {
	if len(args) == 0 {
		return a.entry
	}
	fields := make(log.Fields, (len(args)+1)/2)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			fields["extra"] = args[i]
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		if err, ok := args[i+1].(error); ok {
			fields[key] = err.Error()
			continue
		}
		fields[key] = args[i+1]
	}
	return a.entry.WithFields(fields)
}

func (a *adapter) Debug(msg string, args ...interface{}) { a.with(args).Debug(msg) }
func (a *adapter) Info(msg string, args ...interface{})  { a.with(args).Info(msg) }
func (a *adapter) Warn(msg string, args ...interface{})  { a.with(args).Warn(msg) }
func (a *adapter) Error(msg string, args ...interface{}) { a.with(args).Error(msg) }
