package tts

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Chain tries providers in order until one succeeds. Unavailable providers
// are skipped; a failed synthesis falls through to the next provider so a
// dead network connection degrades to the local voice instead of silence.
type Chain struct {
	logger    zerolog.Logger
	providers []Provider
}

// NewChain builds a fallback chain over the given providers.
func NewChain(logger zerolog.Logger, providers ...Provider) *Chain {
	return &Chain{
		logger:    logger.With().Str("provider", "tts-chain").Logger(),
		providers: providers,
	}
}

func (c *Chain) Name() string {
	return "chain"
}

// IsAvailable reports whether any provider in the chain is available.
func (c *Chain) IsAvailable() bool {
	for _, p := range c.providers {
		if p.IsAvailable() {
			return true
		}
	}
	return false
}

// Synthesize runs the chain. It returns the first successful response, or
// ErrNoProvider joined with every provider's error when all fail.
func (c *Chain) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
	errs := []error{ErrNoProvider}

	for _, p := range c.providers {
		if !p.IsAvailable() {
			c.logger.Debug().Str("tts", p.Name()).Msg("provider unavailable, skipping")
			continue
		}

		resp, err := p.Synthesize(ctx, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		c.logger.Warn().Err(err).Str("tts", p.Name()).Msg("synthesis failed, trying next provider")
		errs = append(errs, err)
	}

	return nil, errors.Join(errs...)
}
