package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stdout)
		SetLevel("info")
	})

	t.Run("level gate", func(t *testing.T) {
		buf.Reset()
		SetLevel("warn")
		Infof("hidden %d", 1)
		Warnf("shown %d", 2)
		out := buf.String()
		assert.NotContains(t, out, "hidden 1")
		assert.Contains(t, out, "shown 2")
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		buf.Reset()
		SetLevel("verbose")
		Debugf("quiet")
		Infof("loud")
		out := buf.String()
		assert.NotContains(t, out, "quiet")
		assert.Contains(t, out, "loud")
	})

	t.Run("info block keeps one record per line", func(t *testing.T) {
		buf.Reset()
		SetLevel("info")
		InfoBlock("first\nsecond\n")
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		assert.Len(t, lines, 2)
		assert.Contains(t, lines[0], "first")
		assert.Contains(t, lines[1], "second")
	})
}
