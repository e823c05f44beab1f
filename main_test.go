package main

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convanalyzer/internal/analyzer"
)

func TestPromptSelectionRetriesUntilValid(t *testing.T) {
	in := bufio.NewReader(strings.NewReader("\n0\n5-2\nabc\n11-50\n"))
	var out strings.Builder

	sel, err := promptSelection(in, &out)
	require.NoError(t, err)
	assert.Equal(t, analyzer.Selection{Start: 11, End: 50}, sel)
	assert.Equal(t, 5, strings.Count(out.String(), "Enter conversations to analyze"))
	assert.Equal(t, 4, strings.Count(out.String(), "Please enter a valid number"))
}

func TestPromptSelectionAcceptsAllWithoutTrailingNewline(t *testing.T) {
	sel, err := promptSelection(bufio.NewReader(strings.NewReader("A")), io.Discard)
	require.NoError(t, err)
	assert.True(t, sel.All)
}

func TestPromptSelectionEOF(t *testing.T) {
	_, err := promptSelection(bufio.NewReader(strings.NewReader("")), io.Discard)
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.EOF))

	_, err = promptSelection(bufio.NewReader(strings.NewReader("nope")), io.Discard)
	assert.True(t, errors.Is(err, io.EOF))
}

func TestConfirm(t *testing.T) {
	cases := map[string]bool{
		"y\n":   true,
		"YES\n": true,
		" yes ": true,
		"n\n":   false,
		"\n":    false,
		"":      false,
		"yep\n": false,
	}
	for input, want := range cases {
		got := confirm(bufio.NewReader(strings.NewReader(input)), io.Discard, "Continue? (y/n): ")
		assert.Equal(t, want, got, "input %q", input)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "  ", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", " "))
}
