package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := New("debug", &buf)

	log.WithField("sticker_id", "01ABC").Debug("committed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "committed", entry["msg"])
	require.Equal(t, "01ABC", entry["sticker_id"])
	require.Equal(t, "debug", entry["level"])
}

func TestNew_UnknownLevelFallsBack(t *testing.T) {
	log := New("loud", &bytes.Buffer{})
	require.Equal(t, logrus.InfoLevel, log.GetLevel())
}

func TestDiscard(t *testing.T) {
	log := Discard()
	require.False(t, log.IsLevelEnabled(logrus.ErrorLevel))
}
