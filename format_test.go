package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTime(t *testing.T) {
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 10, 30, 5, 0, time.Local)
	diffYear := time.Date(2020, time.December, 25, 8, 0, 0, 0, time.Local)

	t.Run("same day", func(t *testing.T) {
		assert.Equal(t, "10:30:05", formatTime(today))
	})

	t.Run("different year", func(t *testing.T) {
		result := formatTime(diffYear)
		assert.Contains(t, result, "Dec")
		assert.Contains(t, result, "25")
		assert.Contains(t, result, "2020")
	})
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer

	headers := []string{"ID", "CLIENT", "PORT"}
	rows := [][]string{
		{"1", "system", "capture_1"},
		{"12", "synth", "out_left"},
	}

	printTable(&buf, headers, rows)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)

	assert.True(t, strings.HasPrefix(lines[0], "ID  CLIENT  PORT"))
	assert.Contains(t, lines[1], "system")
	assert.Contains(t, lines[2], "out_left")

	// The last column is never padded.
	for _, line := range lines {
		assert.Equal(t, strings.TrimRight(line, " "), line)
	}
}

func TestUseColor(t *testing.T) {
	var buf bytes.Buffer

	assert.True(t, useColor(colorAlways, &buf))
	assert.False(t, useColor(colorNever, &buf))
	// A buffer is never a terminal.
	assert.False(t, useColor(colorAuto, &buf))
}

func TestNewPalette_NoColorLeavesTextUnchanged(t *testing.T) {
	var buf bytes.Buffer

	pal := newPalette(&buf, false)

	assert.Equal(t, "client+", pal.Added.Render("client+"))
	assert.Equal(t, "ID", pal.Header.Render("ID"))
}

func TestNewPalette_ColorAddsEscapes(t *testing.T) {
	var buf bytes.Buffer

	pal := newPalette(&buf, true)

	assert.Contains(t, pal.Added.Render("client+"), "\x1b[")
}
