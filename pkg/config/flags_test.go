package config

import (
	"flag"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/perbu/vidmem/pkg/vidmem"
)

func TestMetadataFlag(t *testing.T) {
	var meta MetadataFlag
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Var(&meta, "meta", "")

	require.NoError(t, fs.Parse([]string{"-meta", "lang=en", "-meta", "team = docs", "-meta", "empty="}))
	require.Equal(t, vidmem.Metadata{"lang": "en", "team": " docs", "empty": ""}, meta.Metadata())
	require.Equal(t, "empty=,lang=en,team= docs", meta.String())

	require.Error(t, fs.Parse([]string{"-meta", "novalue"}))
	require.Error(t, fs.Parse([]string{"-meta", "=x"}))
}

func TestMetadataFlag_Matches(t *testing.T) {
	filter := MetadataFlag{"source": "a.md", "year": "2024"}

	require.True(t, filter.Matches(vidmem.Metadata{"source": "a.md", "year": float64(2024), "extra": true}))
	require.False(t, filter.Matches(vidmem.Metadata{"source": "b.md", "year": "2024"}))
	require.False(t, filter.Matches(vidmem.Metadata{"source": "a.md"}))
	require.True(t, MetadataFlag(nil).Matches(vidmem.Metadata{"x": 1}))
}
