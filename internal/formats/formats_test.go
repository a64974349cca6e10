package formats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/config"
	perrors "github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/errors"
)

func TestNew(t *testing.T) {
	tests := []struct {
		cfg     config.FormatConfig
		name    string
		offsets bool
	}{
		{config.FormatConfig{Name: "segment", Compression: "zstd", SkipInterval: 8}, "segment-zstd", true},
		{config.FormatConfig{Name: "segment", Compression: "none"}, "segment-none", true},
		{config.FormatConfig{Name: "memory"}, "memory", false},
	}
	for _, tt := range tests {
		f, err := New(tt.cfg)
		require.NoError(t, err)
		assert.Equal(t, tt.name, f.Name())
		assert.Equal(t, tt.offsets, f.SupportsOffsets())
	}

	_, err := New(config.FormatConfig{Name: "segment", Compression: "gzip"})
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
	_, err = New(config.FormatConfig{Name: "btree"})
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
}
