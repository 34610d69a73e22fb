package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCLIFormatter_SortedFields(t *testing.T) {
	f := &CLIFormatter{DisableColors: true}
	entry := logrus.NewEntry(logrus.New())
	entry.Level = logrus.WarnLevel
	entry.Message = "recompute failed"
	entry.Data = logrus.Fields{"tasks": 3, "edges": 2}

	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "WARNING: recompute failed edges=2 tasks=3\n", string(out))
}

func TestSetupWriter_Levels(t *testing.T) {
	t.Setenv("LOG_MODE", "")
	t.Setenv("LOG_FORMAT", "")

	var buf bytes.Buffer
	SetupWriter(&buf, false, false, true)
	assert.Equal(t, logrus.ErrorLevel, L().GetLevel())

	SetupWriter(&buf, true, false, false)
	assert.Equal(t, logrus.DebugLevel, L().GetLevel())

	SetupWriter(&buf, false, false, false)
	assert.Equal(t, logrus.InfoLevel, L().GetLevel())

	L().Debug("hidden")
	assert.Empty(t, buf.String())
}

func TestSetupWriter_EnvOverrides(t *testing.T) {
	t.Setenv("LOG_MODE", "debug")
	t.Setenv("LOG_FORMAT", "json")

	var buf bytes.Buffer
	SetupWriter(&buf, false, false, true)
	assert.Equal(t, logrus.DebugLevel, L().GetLevel())

	WithField("task", "abc").Info("created")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "created", line["msg"])
	assert.Equal(t, "abc", line["task"])
}
