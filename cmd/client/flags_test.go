package main

import (
	"testing"

	"github.com/akkalaj75/hostelhub-v40/internal/config"
	"github.com/akkalaj75/hostelhub-v40/internal/models"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	opts, _, err := parseFlags([]string{
		"--user", "alice", "--memory", "--listen", "127.0.0.1:9000",
		"--find", "--gender", "female", "--comm", "VIDEO", "--interests", "music, travel,,coding",
	})
	require.NoError(t, err)

	cfg := config.Default()
	opts.apply(cfg)
	assert.Equal(t, "alice", cfg.UserID)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)

	assert.True(t, opts.find)
	assert.Equal(t, models.Preferences{
		Gender:    "female",
		College:   models.AnyCollege,
		CommType:  models.CommVideo,
		Interests: []string{"music", "travel", "coding"},
	}, opts.preferences())
}

func TestParseFlags_Defaults(t *testing.T) {
	opts, _, err := parseFlags(nil)
	require.NoError(t, err)

	cfg := config.Default()
	before := *cfg
	opts.apply(cfg)
	assert.Equal(t, before.UserID, cfg.UserID)
	assert.Equal(t, "redis", cfg.StoreBackend)
	assert.Equal(t, models.CommChat, opts.preferences().CommType)
}

func TestParseFlags_Help(t *testing.T) {
	opts, _, err := parseFlags([]string{"-h"})
	require.NoError(t, err)
	assert.True(t, opts.help)

	_, _, err = parseFlags([]string{"--bogus"})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, pflag.ErrHelp)
}
