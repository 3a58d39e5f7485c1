package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"lectureattend/internal/config"
)

func TestCheckBackends(t *testing.T) {
	tests := []struct {
		name    string
		store   string
		queue   string
		wantErr string
	}{
		{"postgres and redis", "postgres", "redis", ""},
		{"memory queue", "postgres", "memory", "QUEUE_BACKEND"},
		{"memory store", "memory", "redis", "STORE_BACKEND"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := checkBackends(config.App{StoreBackend: tc.store, QueueBackend: tc.queue})
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}
