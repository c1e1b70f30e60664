package copier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bakkerme/selfpost-copier/internal/core"
	"github.com/bakkerme/selfpost-copier/internal/reddit"
)

// Approver asks an operator whether a post may be submitted.
type Approver interface {
	Approve(ctx context.Context, sub reddit.Submission) (bool, error)
}

type Config struct {
	Sources []string
	Target  string
	Limit   int
	// SubmitDelay is slept before every submission.
	SubmitDelay time.Duration
	// Schedule decides when the next poll happens.
	Schedule Schedule
	Filter   *Filter
	// Approver is consulted before each submission when set.
	Approver Approver
	DryRun   bool
	// OnAuthenticated runs once after a successful login.
	OnAuthenticated func()
}

// CycleStats summarizes one poll/submit cycle.
type CycleStats struct {
	ID         string
	Polled     int
	Qualifying int
	Outcomes   map[reddit.Outcome]int
}

// Copier owns the client, the seen set and the loop. It is not safe for
// concurrent use; everything runs on the goroutine that calls Run.
type Copier struct {
	client reddit.Client
	seen   *SeenSet
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func New(client reddit.Client, seen *SeenSet, cfg Config, logger *slog.Logger) (*Copier, error) {
	if client == nil {
		return nil, fmt.Errorf("reddit client is required")
	}
	if seen == nil {
		return nil, fmt.Errorf("seen set is required")
	}
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("at least one source subreddit is required")
	}
	if strings.TrimSpace(cfg.Target) == "" {
		return nil, fmt.Errorf("target subreddit is required")
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 25
	}
	if cfg.Schedule == nil {
		cfg.Schedule = Every(120 * time.Second)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Copier{
		client: client,
		seen:   seen,
		cfg:    cfg,
		logger: logger,
		tracer: otel.Tracer("selfpost-copier/copier"),
		sleep:  sleepContext,
		now:    time.Now,
	}, nil
}

// Seen exposes the copier's seen set.
func (c *Copier) Seen() *SeenSet {
	return c.seen
}

// Authenticate logs in once. A failure here is fatal for Run.
func (c *Copier) Authenticate(ctx context.Context) error {
	if err := c.client.Login(ctx); err != nil {
		return err
	}
	if c.cfg.OnAuthenticated != nil {
		c.cfg.OnAuthenticated()
	}
	return nil
}

// Run authenticates, then polls and submits until ctx is cancelled. On
// cancellation it flushes pending seen ids and releases the client before
// returning nil. Only authentication errors are returned.
func (c *Copier) Run(ctx context.Context) error {
	if err := c.Authenticate(ctx); err != nil {
		_ = c.client.Close()
		return err
	}
	c.logger.Info("Copier started",
		slog.String("sources", strings.Join(c.cfg.Sources, "+")),
		slog.String("target", c.cfg.Target),
		slog.Int("seen", c.seen.Len()),
	)

	for {
		if _, err := c.Cycle(ctx); err != nil {
			break
		}
		next := c.cfg.Schedule.Next(c.now())
		wait := next.Sub(c.now())
		c.logger.Debug("Waiting for next poll", slog.Duration("wait", wait))
		if err := c.sleep(ctx, wait); err != nil {
			break
		}
	}
	return c.Shutdown(context.WithoutCancel(ctx))
}

// Shutdown flushes pending seen ids and releases the client.
func (c *Copier) Shutdown(ctx context.Context) error {
	if pending := c.seen.Pending(); len(pending) > 0 {
		c.logger.Info("Saving seen submissions", slog.Int("count", len(pending)))
		if err := c.seen.Flush(ctx); err != nil {
			c.logger.Error("Failed to save seen submissions", slog.String("error", err.Error()))
		}
	}
	if err := c.client.Close(); err != nil {
		c.logger.Warn("Failed to close client", slog.String("error", err.Error()))
	}
	return nil
}

// Cycle polls once and submits every qualifying post. The returned error is
// non-nil only when ctx was cancelled mid-cycle.
func (c *Copier) Cycle(ctx context.Context) (CycleStats, error) {
	stats := CycleStats{ID: uuid.NewString(), Outcomes: map[reddit.Outcome]int{}}
	ctx, _ = core.StartCycle(ctx, c.logger, stats.ID)

	ctx, span := c.tracer.Start(ctx, "copier.cycle", trace.WithAttributes(attribute.String("cycle.id", stats.ID)))
	defer span.End()
	c.annotate(span)

	listing := c.Poll(ctx)
	stats.Polled = len(listing.Submissions)

	for _, sub := range c.Qualifying(ctx, listing) {
		stats.Qualifying++
		if err := c.sleep(ctx, c.cfg.SubmitDelay); err != nil {
			span.SetAttributes(attribute.Bool("cycle.interrupted", true))
			return stats, err
		}
		outcome := c.Submit(ctx, sub, listing.Modhash)
		stats.Outcomes[outcome]++
	}

	span.SetAttributes(
		attribute.Int("cycle.polled", stats.Polled),
		attribute.Int("cycle.qualifying", stats.Qualifying),
	)
	return stats, ctx.Err()
}

// Poll fetches the hot listing. Any failure is logged and yields an empty
// listing: the caller treats it as nothing new this cycle.
func (c *Copier) Poll(ctx context.Context) reddit.Listing {
	logger := core.LoggerFromContext(ctx)
	ctx, span := c.tracer.Start(ctx, "copier.poll")
	defer span.End()

	logger.Info("Polling for new submissions")
	listing, err := c.client.Poll(ctx, reddit.ListingRequest{Subreddits: c.cfg.Sources, Limit: c.cfg.Limit})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "poll failed")
		switch {
		case errors.Is(err, context.Canceled):
			logger.Debug("Poll cancelled")
		case errors.Is(err, reddit.ErrMalformedResponse):
			logger.Warn("The JSON returned was incomplete. Perhaps the connection was interrupted or the site is down.", slog.String("error", err.Error()))
		default:
			logger.Warn("Problem polling for submissions", slog.String("error", err.Error()))
		}
		return reddit.Listing{}
	}
	span.SetAttributes(attribute.Int("listing.size", len(listing.Submissions)))
	return listing
}

// Qualifying returns the self posts of listing that have not been seen and
// pass the filter, each id at most once.
func (c *Copier) Qualifying(ctx context.Context, listing reddit.Listing) []reddit.Submission {
	logger := core.LoggerFromContext(ctx)
	out := make([]reddit.Submission, 0, len(listing.Submissions))
	offered := map[string]struct{}{}
	for _, sub := range listing.Submissions {
		if !sub.IsSelf || sub.ID == "" || c.seen.Contains(sub.ID) {
			continue
		}
		if _, ok := offered[sub.ID]; ok {
			continue
		}
		allowed, err := c.cfg.Filter.Allow(sub)
		if err != nil {
			logger.Warn("Filter rule failed", slog.String("post_id", sub.ID), slog.String("error", err.Error()))
			continue
		}
		if !allowed {
			logger.Debug("Filtered out", slog.String("post_id", sub.ID), slog.String("rule", c.cfg.Filter.String()))
			continue
		}
		offered[sub.ID] = struct{}{}
		out = append(out, sub)
	}
	return out
}

// Submit copies sub to the target board. The id is recorded as seen before
// anything else happens, so a post is attempted at most once whatever the
// outcome. Failures are classified and logged, never returned. Link posts
// and ids already seen are skipped without touching the seen set.
func (c *Copier) Submit(ctx context.Context, sub reddit.Submission, modhash string) reddit.Outcome {
	logger := core.LoggerFromContext(ctx).With(
		slog.String("post_id", sub.ID),
		slog.String("subreddit", sub.Subreddit),
	)
	if !sub.IsSelf || sub.ID == "" || c.seen.Contains(sub.ID) {
		logger.Debug("Not submitting", slog.Bool("is_self", sub.IsSelf))
		return reddit.OutcomeSkipped
	}
	ctx, span := c.tracer.Start(ctx, "copier.submit", trace.WithAttributes(
		attribute.String("cycle.id", core.CycleIDFromContext(ctx)),
		attribute.String("post.id", sub.ID),
		attribute.String("post.subreddit", sub.Subreddit),
	))
	defer span.End()

	if err := c.seen.Record(ctx, sub.ID); err != nil {
		logger.Warn("Failed to persist seen submission", slog.String("error", err.Error()))
	}

	title := Unescape(sub.Title)
	body := Unescape(sub.Body)
	logger.Info("Submitting", slog.String("title", title))

	outcome := c.send(ctx, logger, sub, title, body, modhash)
	span.SetAttributes(attribute.String("submit.outcome", outcome.String()))
	switch outcome {
	case reddit.OutcomeSubmitted:
		logger.Info("Submitted", slog.String("outcome", outcome.String()))
	case reddit.OutcomeDeclined, reddit.OutcomeDryRun:
		logger.Info("Skipped", slog.String("outcome", outcome.String()))
	case reddit.OutcomeCaptchaRequired:
		span.SetStatus(codes.Error, outcome.String())
		logger.Warn("Could not submit the post because a CAPTCHA was required", slog.String("outcome", outcome.String()))
	case reddit.OutcomeRateLimited:
		span.SetStatus(codes.Error, outcome.String())
		logger.Warn("Could not submit the post because of rate limiting", slog.String("outcome", outcome.String()))
	default:
		span.SetStatus(codes.Error, outcome.String())
	}
	return outcome
}

func (c *Copier) send(ctx context.Context, logger *slog.Logger, sub reddit.Submission, title, body, modhash string) reddit.Outcome {
	if c.cfg.Approver != nil {
		approved := sub
		approved.Title = title
		approved.Body = body
		ok, err := c.cfg.Approver.Approve(ctx, approved)
		if err != nil {
			logger.Warn("Approval prompt failed", slog.String("error", err.Error()))
			return reddit.OutcomeDeclined
		}
		if !ok {
			return reddit.OutcomeDeclined
		}
	}
	if c.cfg.DryRun {
		return reddit.OutcomeDryRun
	}

	submitted, err := c.client.Submit(ctx, reddit.SubmitRequest{
		Title:   title,
		Text:    body,
		Target:  c.cfg.Target,
		Modhash: modhash,
	})
	if err != nil {
		outcome := reddit.ClassifySubmitError(err)
		if outcome == reddit.OutcomeFailed {
			logger.Warn("Problem submitting the post. Perhaps the connection was interrupted or the site is down.", slog.String("error", err.Error()))
		}
		return outcome
	}
	if submitted.URL != "" {
		logger.Debug("Created post", slog.String("url", submitted.URL))
	}
	return reddit.OutcomeSubmitted
}

func (c *Copier) annotate(span trace.Span) {
	type describer interface {
		SpanAttributes() []attribute.KeyValue
	}
	if d, ok := c.client.(describer); ok {
		span.SetAttributes(d.SpanAttributes()...)
	}
	span.SetAttributes(attribute.String("copier.target", c.cfg.Target))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
