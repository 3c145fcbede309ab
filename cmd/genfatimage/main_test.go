package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountFlagOccurrences(t *testing.T) {
	args := []string{"--preset", "1440", "src"}
	assert.Equal(t, 1, countFlagOccurrences(args, "preset"))
	assert.Equal(t, 0, countFlagOccurrences(args, "fat-width"))
}

func TestCountFlagOccurrencesRepeated(t *testing.T) {
	args := []string{"--fat-width=12", "--fat-width", "16", "src"}
	assert.Equal(t, 2, countFlagOccurrences(args, "fat-width"))
}

func TestCountFlagOccurrencesShortForm(t *testing.T) {
	args := []string{"-preset=360", "-preset=720"}
	assert.Equal(t, 2, countFlagOccurrences(args, "preset"))
}
