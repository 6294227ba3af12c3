package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	l, err := New(Options{})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}

func TestNew_Verbose(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Verbose: true, Output: &buf})
	require.NoError(t, err)

	l.Debug("test message")
	assert.Contains(t, buf.String(), "test message")
}

func TestNew_NotVerbose(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Output: &buf})
	require.NoError(t, err)

	l.Debug("test message")
	assert.Zero(t, buf.Len())
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Format: "json", Output: &buf})
	require.NoError(t, err)

	l.WithField("owner", "123").Info("collected")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "collected", line["msg"])
	assert.Equal(t, "123", line["owner"])
}

func TestNew_AutoUsesJSONOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Format: "auto", Output: &buf})
	require.NoError(t, err)

	l.Info("collected")

	assert.IsType(t, &logrus.JSONFormatter{}, l.Formatter)
	assert.True(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestNew_UnknownFormat(t *testing.T) {
	_, err := New(Options{Format: "xml"})
	assert.Error(t, err)
}

func TestSection(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Verbose: true, Output: &buf})
	require.NoError(t, err)

	Section(l, "Upload")
	assert.Contains(t, buf.String(), "=== Upload ===")
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Info("nothing")
	assert.NotNil(t, l)
}
