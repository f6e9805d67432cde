// Package humanoid drives resolved elements through scripted event sequences
// so frameworks relying on synthetic input detection treat the value as
// user-entered. Programmatic value assignment alone is ignored by most
// client-side form libraries; the per-keystroke input events are the point.
package humanoid

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/crosslister/postflow/internal/dom"
)

// commonDigraphs are letter pairs typed faster than average; they give the
// cadence a rhythmic, human profile.
var commonDigraphs = map[string]bool{
	"th": true, "he": true, "in": true, "er": true, "an": true, "re": true,
	"es": true, "on": true, "st": true, "nt": true,
}

// Config tunes the inter-keystroke cadence.
type Config struct {
	KeyPauseMeanMs   float64
	KeyPauseStdDevMs float64
	KeyPauseMinMs    float64
	// DigraphFactor scales the pause down for common digraphs.
	DigraphFactor float64
}

// DefaultConfig returns a cadence in the range of a moderately fast typist.
func DefaultConfig() Config {
	return Config{
		KeyPauseMeanMs:   120,
		KeyPauseStdDevMs: 40,
		KeyPauseMinMs:    30,
		DigraphFactor:    0.7,
	}
}

// Instant returns a zero-delay cadence for tests.
func Instant() Config {
	return Config{DigraphFactor: 1.0}
}

// Typist simulates human text entry against a dom.Page.
type Typist struct {
	cfg Config
	log *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewTypist creates a typist with the given cadence.
func NewTypist(log *zap.Logger, cfg Config) *Typist {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.DigraphFactor == 0 {
		cfg.DigraphFactor = 1.0
	}
	return &Typist{
		cfg: cfg,
		log: log.Named("typist"),
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Type fills the element with the value through a user-like event sequence:
// focus, click, clear, then one input event per appended character with a
// human inter-key delay, followed by change and blur. It returns whether the
// final value equals the requested one; target forms sometimes reformat
// input (currency masking), and callers need to know.
func (t *Typist) Type(ctx context.Context, page dom.Page, el *dom.Element, value string) (bool, error) {
	xpath := el.XPath

	if err := page.Focus(ctx, xpath); err != nil {
		return false, err
	}
	if err := page.Click(ctx, xpath); err != nil {
		return false, err
	}
	if err := page.SetValue(ctx, xpath, ""); err != nil {
		return false, err
	}
	if err := page.DispatchInput(ctx, xpath); err != nil {
		return false, err
	}

	runes := []rune(value)
	for i := range runes {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if err := page.SetValue(ctx, xpath, string(runes[:i+1])); err != nil {
			return false, err
		}
		if err := page.DispatchInput(ctx, xpath); err != nil {
			return false, err
		}
		if err := t.keyPause(ctx, runes, i); err != nil {
			return false, err
		}
	}

	if err := page.DispatchChange(ctx, xpath); err != nil {
		return false, err
	}
	if err := page.Blur(ctx, xpath); err != nil {
		return false, err
	}

	final, err := page.Value(ctx, xpath)
	if err != nil {
		return false, err
	}
	matched := final == value
	if !matched {
		t.log.Debug("Typed value was reformatted by the page.",
			zap.String("requested", value),
			zap.String("final", final))
	}
	return matched, nil
}

// keyPause sleeps for a normally distributed inter-key delay, sped up for
// common digraphs and clamped to the configured minimum.
func (t *Typist) keyPause(ctx context.Context, runes []rune, index int) error {
	t.mu.Lock()
	randNorm := t.rng.NormFloat64()
	t.mu.Unlock()

	mean := t.cfg.KeyPauseMeanMs
	minDelay := t.cfg.KeyPauseMinMs
	if index > 0 {
		digraph := strings.ToLower(string(runes[index-1 : index+1]))
		if commonDigraphs[digraph] {
			mean *= t.cfg.DigraphFactor
			minDelay *= t.cfg.DigraphFactor
		}
	}

	delay := math.Max(minDelay, randNorm*t.cfg.KeyPauseStdDevMs+mean)
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(time.Duration(delay) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
