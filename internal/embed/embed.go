// Package embed attaches vector embeddings to features. Only a deterministic
// mock provider ships; a real provider plugs in behind Embedder without
// changes to callers.
package embed

import (
	"context"
	"crypto/md5"
	"fmt"
	"log/slog"

	"feature-monitor/internal/feature"
)

// DefaultDimensions matches the size of common text-embedding models.
const DefaultDimensions = 1536

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Mock derives a stable vector from the md5 of the text: each digest byte
// maps to [-1, 1] and the 16 values repeat up to Dimensions.
type Mock struct {
	Dimensions int
}

// Embed implements Embedder.
func (m Mock) Embed(_ context.Context, text string) ([]float64, error) {
	dims := m.Dimensions
	if dims <= 0 {
		dims = DefaultDimensions
	}
	sum := md5.Sum([]byte(text))
	out := make([]float64, dims)
	for i := range out {
		out[i] = float64(sum[i%len(sum)])/255.0*2.0 - 1.0
	}
	return out, nil
}

// New returns the embedder for a provider name.
func New(provider string, dims int) (Embedder, error) {
	switch provider {
	case "", "mock":
		return Mock{Dimensions: dims}, nil
	default:
		return nil, fmt.Errorf("embed: unknown provider %q", provider)
	}
}

// Text is what gets embedded for a feature.
func Text(f feature.Feature) string {
	return f.Title + "\n" + f.Description
}

// Generate returns a copy of list with Embedding set on every feature.
// A failure on one feature is logged and leaves that feature without one.
func Generate(ctx context.Context, e Embedder, list []feature.Feature, log *slog.Logger) ([]feature.Feature, int) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	out := make([]feature.Feature, len(list))
	done := 0
	for i, f := range list {
		v, err := e.Embed(ctx, Text(f))
		if err != nil {
			log.Warn("embedding failed", "id", f.ID, "err", err)
			f.Embedding = nil
		} else {
			f.Embedding = v
			done++
		}
		out[i] = f
	}
	log.Info("generated embeddings", "features", len(list), "embedded", done)
	return out, done
}
