package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"identity-forge/internal/catalog"
	"identity-forge/internal/portrait"
	"identity-forge/internal/prompt"
)

var (
	// ErrNoTargets means the category resolved to no styles. No request is made.
	ErrNoTargets = errors.New("no roles defined for this category")
	// ErrAllFailed means every request in the batch failed.
	ErrAllFailed = errors.New("failed to generate any images")
)

// Generator submits one prompt plus the source portrait to the image model.
type Generator interface {
	GenerateImage(ctx context.Context, prompt string, input portrait.Image) (portrait.Image, error)
}

// Observer receives per-attempt and per-batch outcomes.
type Observer interface {
	ObserveAttempt(styleID string, err error, d time.Duration)
	ObserveBatch(category catalog.Category, succeeded, total int)
}

type Options struct {
	Generator Generator
	Observer  Observer
	Logger    *slog.Logger

	// MaxParallel caps in-flight requests. Zero issues every target at once.
	MaxParallel int
	// Interval paces request starts. Zero disables pacing.
	Interval time.Duration

	// Targets overrides catalog.StyleIDs; tests use it.
	Targets func(catalog.Category) []string
}

type Client struct {
	gen         Generator
	observer    Observer
	logger      *slog.Logger
	maxParallel int
	interval    time.Duration
	targets     func(catalog.Category) []string
}

func New(opts Options) (*Client, error) {
	if opts.Generator == nil {
		return nil, errors.New("generator is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	targets := opts.Targets
	if targets == nil {
		targets = catalog.StyleIDs
	}

	maxParallel := opts.MaxParallel
	if maxParallel < 0 {
		maxParallel = 0
	}

	return &Client{
		gen:         opts.Generator,
		observer:    opts.Observer,
		logger:      logger,
		maxParallel: maxParallel,
		interval:    opts.Interval,
		targets:     targets,
	}, nil
}

type outcome struct {
	img portrait.Image
	ok  bool
}

// GenerateBatch renders every style of category from input. Failed styles are
// left out of the result; the call itself fails only when nothing succeeded.
func (c *Client) GenerateBatch(ctx context.Context, input portrait.Image, category catalog.Category) (portrait.Results, error) {
	ids := c.targets(category)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoTargets, category)
	}

	var limiter *rate.Limiter
	if c.interval > 0 {
		limiter = rate.NewLimiter(rate.Every(c.interval), 1)
	}

	outcomes := make([]outcome, len(ids))
	var eg errgroup.Group
	if c.maxParallel > 0 {
		eg.SetLimit(c.maxParallel)
	}

	started := time.Now()
	for i, id := range ids {
		eg.Go(func() error {
			img, err := c.generateOne(ctx, limiter, id, input)
			if err != nil {
				c.logger.WarnContext(ctx, "style generation failed", "style", id, "category", category, "err", err)
				return nil
			}
			outcomes[i] = outcome{img: img, ok: true}
			return nil
		})
	}
	_ = eg.Wait()

	results := make(portrait.Results, len(ids))
	for i, o := range outcomes {
		if o.ok {
			results[ids[i]] = o.img
		}
	}

	if c.observer != nil {
		c.observer.ObserveBatch(category, len(results), len(ids))
	}

	if len(results) == 0 {
		c.logger.ErrorContext(ctx, "batch produced no images", "category", category, "targets", len(ids), "dur_ms", time.Since(started).Milliseconds())
		if err := ctx.Err(); err != nil {
			return nil, errors.Join(ErrAllFailed, err)
		}
		return nil, ErrAllFailed
	}

	c.logger.InfoContext(ctx, "batch finished", "category", category, "generated", len(results), "targets", len(ids), "dur_ms", time.Since(started).Milliseconds())
	return results, nil
}

func (c *Client) generateOne(ctx context.Context, limiter *rate.Limiter, styleID string, input portrait.Image) (img portrait.Image, err error) {
	start := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveAttempt(styleID, err, time.Since(start))
		}
	}()

	text, err := prompt.Strict(styleID)
	if err != nil {
		return portrait.Image{}, err
	}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return portrait.Image{}, fmt.Errorf("wait for rate limit: %w", err)
		}
	}

	img, err = c.gen.GenerateImage(ctx, text, input)
	if err != nil {
		return portrait.Image{}, err
	}
	if img.Empty() {
		return portrait.Image{}, portrait.ErrNoImage
	}
	return img, nil
}
