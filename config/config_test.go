package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucext/citizenconnect/internal/constants"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(constants.EnvMediaStorage, StorageLocal)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPollIntervalImage, cfg.Pipeline.ImageInterval)
	assert.Equal(t, DefaultPollCeilingImage, cfg.Pipeline.ImageCeiling)
	assert.Equal(t, DefaultPollIntervalVideo, cfg.Pipeline.VideoInterval)
	assert.Equal(t, DefaultPollCeilingVideo, cfg.Pipeline.VideoCeiling)
	assert.Equal(t, time.Duration(0), cfg.Pipeline.CleanupDelay)
	assert.Equal(t, DefaultOAuthTicketTTL, cfg.OAuth.TicketTTL)
	assert.Equal(t, DefaultGraphAPIURL, cfg.Platform.GraphAPIURL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv(constants.EnvMediaStorage, StorageLocal)
	t.Setenv(constants.EnvPollIntervalVideo, "5s")
	t.Setenv(constants.EnvPollCeilingVideo, "10m")
	t.Setenv(constants.EnvWorkerCount, "8")
	t.Setenv(constants.EnvPublicBaseURL, "https://api.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Pipeline.VideoInterval)
	assert.Equal(t, 10*time.Minute, cfg.Pipeline.VideoCeiling)
	assert.Equal(t, 8, cfg.Pipeline.Workers)
	assert.Equal(t, "https://api.example.com", cfg.Storage.PublicBaseURL)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "bad duration", key: constants.EnvPollIntervalImage, val: "soon"},
		{name: "negative duration", key: constants.EnvPollCeilingImage, val: "-1s"},
		{name: "bad int", key: constants.EnvWorkerCount, val: "many"},
		{name: "zero workers", key: constants.EnvWorkerCount, val: "0"},
		{name: "unknown storage", key: constants.EnvMediaStorage, val: "ftp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(constants.EnvMediaStorage, StorageLocal)
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestS3RequiresBucket(t *testing.T) {
	t.Setenv(constants.EnvMediaStorage, StorageS3)
	t.Setenv(constants.EnvS3Bucket, "")

	_, err := Load()
	assert.ErrorContains(t, err, constants.EnvS3Bucket)
}
