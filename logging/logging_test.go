package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		want    log.Level
		wantErr bool
	}{
		{"defaults", "", "", log.InfoLevel, false},
		{"debug json", "debug", "json", log.DebugLevel, false},
		{"warn text", "warn", "TEXT", log.WarnLevel, false},
		{"bad level", "loud", "", 0, true},
		{"bad format", "info", "xml", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.level, tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, logger.GetLevel())
		})
	}
}

func TestAdapt_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "debug", FormatJSON)
	require.NoError(t, err)

	Adapt(logger).Info("Command handled", "kind", "CreateUser", "error", errors.New("boom"), 42)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "Command handled", line["msg"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "CreateUser", line["kind"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, float64(42), line["extra"])
}

func TestAdapt_Levels(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	l := Adapt(logger)

	l.Debug("d")
	l.Info("i", "k", 1)
	l.Warn("w")
	l.Error("e")

	entries := hook.AllEntries()
	require.Len(t, entries, 4)
	assert.Equal(t, log.DebugLevel, entries[0].Level)
	assert.Equal(t, 1, entries[1].Data["k"])
	assert.Equal(t, log.WarnLevel, entries[2].Level)
	assert.Equal(t, log.ErrorLevel, entries[3].Level)
}
