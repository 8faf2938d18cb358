// Package token generates the opaque access key strings handed to schools.
package token

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// Alphabet is the character set tokens are drawn from: letters and digits,
// case-sensitive.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// DefaultLength is the token length used when none is configured.
const DefaultLength = 20

// maxAttempts bounds the collision re-draw loop. With a 62-character
// alphabet at length 20 a collision is effectively impossible, but the loop
// must terminate with a reportable error rather than spin.
const maxAttempts = 10

// ErrSpaceExhausted is returned when repeated draws keep colliding with
// existing tokens. Seeing this in practice means the configured length is
// far too short for the number of issued keys.
var ErrSpaceExhausted = errors.New("token space exhausted: could not generate a unique token")

// ExistsFunc reports whether a candidate token is already assigned.
type ExistsFunc func(ctx context.Context, token string) (bool, error)

// Generator produces unique random tokens.
type Generator struct {
	length int
	exists ExistsFunc
	random io.Reader
}

// Option configures a Generator.
type Option func(*Generator)

// WithRandom sets a custom random source. Tests use this to force
// collisions deterministically.
func WithRandom(r io.Reader) Option {
	return func(g *Generator) {
		g.random = r
	}
}

// NewGenerator creates a Generator drawing length characters per token and
// checking candidates against exists before accepting them.
func NewGenerator(length int, exists ExistsFunc, opts ...Option) *Generator {
	if length <= 0 {
		length = DefaultLength
	}
	g := &Generator{
		length: length,
		exists: exists,
		random: rand.Reader,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate draws a token uniformly from the alphabet using the generator's
// cryptographic random source, re-drawing on collision until a unique value
// is found or the attempt budget runs out.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate, err := g.draw()
		if err != nil {
			return "", fmt.Errorf("failed to draw token: %w", err)
		}

		taken, err := g.exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check token uniqueness: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", ErrSpaceExhausted
}

// draw produces one candidate token. Bytes from the random source are
// rejection-sampled so every alphabet character is equally likely: 256 is
// not a multiple of 62, so values of 248 and above are discarded.
func (g *Generator) draw() (string, error) {
	limit := byte(256 - (256 % len(Alphabet)))
	out := make([]byte, 0, g.length)
	buf := make([]byte, 1)

	for len(out) < g.length {
		if _, err := io.ReadFull(g.random, buf); err != nil {
			return "", err
		}
		if buf[0] >= limit {
			continue
		}
		out = append(out, Alphabet[int(buf[0])%len(Alphabet)])
	}
	return string(out), nil
}
