// Package formats resolves the configured postings format under test.
package formats

import (
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/formats/memory"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/formats/segment"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/postings"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/config"
	perrors "github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/errors"
)

func New(cfg config.FormatConfig) (postings.Format, error) {
	switch cfg.Name {
	case "segment":
		compression, err := segment.ParseCompression(cfg.Compression)
		if err != nil {
			return nil, err
		}
		return segment.New(segment.Options{
			Compression:  compression,
			SkipInterval: cfg.SkipInterval,
		}), nil
	case "memory":
		return memory.New(), nil
	default:
		return nil, perrors.Newf(perrors.ErrInvalidInput, "unknown postings format %q", cfg.Name)
	}
}
