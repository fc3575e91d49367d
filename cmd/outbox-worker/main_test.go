package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/bitecare-clinic/internal/config"
	"github.com/wolfman30/bitecare-clinic/pkg/logging"
)

func TestValidateConfig(t *testing.T) {
	cases := []struct {
		name    string
		cfg     *appconfig.Config
		wantErr string
	}{
		{name: "nil config", cfg: nil, wantErr: "config is required"},
		{name: "missing database", cfg: &appconfig.Config{EventsQueueURL: "http://localhost:4566/000000000000/events"}, wantErr: "DATABASE_URL"},
		{name: "missing queue", cfg: &appconfig.Config{DatabaseURL: "postgres://localhost/bitecare"}, wantErr: "EVENTS_QUEUE_URL"},
		{name: "blank queue", cfg: &appconfig.Config{DatabaseURL: "postgres://localhost/bitecare", EventsQueueURL: "  "}, wantErr: "EVENTS_QUEUE_URL"},
		{name: "complete", cfg: &appconfig.Config{DatabaseURL: "postgres://localhost/bitecare", EventsQueueURL: "http://localhost:4566/000000000000/events"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateConfig(tc.cfg)
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestRunStopsOnInvalidConfigBeforeConnecting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := run(ctx, &appconfig.Config{EventsQueueURL: "http://localhost:4566/000000000000/events"}, logging.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}
