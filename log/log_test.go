package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(zapcore.AddSync(&buf))
	l.SetLevelByString("warn")

	l.Infof("hidden %d", 1)
	l.Warningf("shown %d", 2)
	assert.NotContains(t, buf.String(), "hidden 1")
	assert.Contains(t, buf.String(), "shown 2")

	l.SetLevelByString("debug")
	l.Debugf("now %s", "visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(zapcore.AddSync(&buf)).With(zap.String("action", "saveOverlays"))
	l.Info("committed")
	assert.Contains(t, buf.String(), "saveOverlays")
}

func TestStringToLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, StringToLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, StringToLevel("ERROR"))
	assert.Equal(t, zapcore.DebugLevel, StringToLevel("bogus"))
}
