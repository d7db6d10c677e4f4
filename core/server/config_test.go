package server_test

import (
	"testing"

	"receipt-ledger/core/server"

	"github.com/stretchr/testify/assert"
)

func TestConfig_MaxUploadBytes(t *testing.T) {
	tests := []struct {
		name string
		mb   int
		want int64
	}{
		{"Default", 0, 5 << 20},
		{"Negative", -1, 5 << 20},
		{"Ten", 10, 10 << 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := server.Config{MaxUploadMB: tt.mb}
			assert.Equal(t, tt.want, c.MaxUploadBytes())
			assert.Equal(t, int(tt.want)+1<<20, c.BodyLimit())
		})
	}
}
