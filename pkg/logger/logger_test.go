package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Component: "registry", Format: "json", Output: &buf})

	log.WithField("operator", "A").Info("operator registered")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "registry", entry["component"])
	assert.Equal(t, "A", entry["operator"])
	assert.Equal(t, "operator registered", entry["msg"])
	assert.Equal(t, "info", entry["level"])
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Format: "json", Output: &buf})

	log.WithField("k", "v").Info("dropped")
	assert.Zero(t, buf.Len())

	log.WithError(errors.New("boom")).Warn("kept")
	assert.Contains(t, buf.String(), "boom")
}

func TestNew_UnknownLevelDefaultsToInfo(t *testing.T) {
	log := New(Config{Level: "chatty", Output: &bytes.Buffer{}})
	assert.Equal(t, "info", log.GetLevel().String())
}

func TestNamed_SharesSink(t *testing.T) {
	var buf bytes.Buffer
	root := New(Config{Component: "poolctl", Format: "json", Output: &buf})
	child := root.Named("engine")

	assert.Equal(t, "engine", child.Component())
	child.WithFields(nil).Info("hello")
	assert.Contains(t, buf.String(), `"component":"engine"`)
}
