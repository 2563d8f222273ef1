package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressPrinter(t *testing.T) {
	t.Run("stop without start", func(t *testing.T) {
		out := &syncBuffer{}
		p := NewProgressPrinter(out, "Scanning", time.Second)

		p.Stop()
		p.Stop()

		assert.Equal(t, clearLineSequence, out.String())
	})

	t.Run("countdown then stop phase", func(t *testing.T) {
		out := &syncBuffer{}
		p := NewProgressPrinter(out, "Scanning", 3*time.Second, "Processing results")
		p.Start()

		cb := p.Callback()
		cb("Scanning")
		cb("Processing results")

		text := out.String()
		assert.True(t, strings.HasPrefix(text, "\rScanning (Starting 3s)   "), text)
		assert.True(t, strings.HasSuffix(text, clearLineSequence), text)

		p.Stop()
		assert.Equal(t, text, out.String(), "a stopped printer writes nothing more")
	})

	t.Run("no duration shows phase only", func(t *testing.T) {
		out := &syncBuffer{}
		p := NewProgressPrinter(out, "Connecting", 0)
		p.Start()
		p.Stop()

		assert.Contains(t, out.String(), "\rConnecting (Starting...)   ")
	})
}
