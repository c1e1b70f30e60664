package mock

import (
	"context"
	"sync"

	"github.com/bakkerme/selfpost-copier/internal/reddit"
)

// Client replays scripted listings and records submissions.
type Client struct {
	mu sync.Mutex

	LoginErr error
	// Listings are returned in order, one per Poll; the last one repeats.
	Listings []reddit.Listing
	PollErrs []error
	// SubmitErrs maps a title to the error Submit should return for it.
	SubmitErrs map[string]error

	Polls     int
	Submitted []reddit.SubmitRequest
	Closed    bool
	// OnSubmit runs after a submission is recorded.
	OnSubmit func(reddit.SubmitRequest)
}

func (c *Client) Login(ctx context.Context) error {
	_ = ctx
	return c.LoginErr
}

func (c *Client) Poll(ctx context.Context, req reddit.ListingRequest) (reddit.Listing, error) {
	_ = ctx
	_ = req
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.Polls
	c.Polls++
	if i < len(c.PollErrs) && c.PollErrs[i] != nil {
		return reddit.Listing{}, c.PollErrs[i]
	}
	if len(c.Listings) == 0 {
		return reddit.Listing{}, nil
	}
	if i >= len(c.Listings) {
		i = len(c.Listings) - 1
	}
	return c.Listings[i], nil
}

func (c *Client) Submit(ctx context.Context, req reddit.SubmitRequest) (reddit.Submitted, error) {
	_ = ctx
	c.mu.Lock()
	c.Submitted = append(c.Submitted, req)
	hook := c.OnSubmit
	err := c.SubmitErrs[req.Title]
	c.mu.Unlock()
	if hook != nil {
		hook(req)
	}
	if err != nil {
		return reddit.Submitted{}, err
	}
	return reddit.Submitted{ID: "new_" + req.Title}, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

// SubmittedTitles returns the titles passed to Submit so far.
func (c *Client) SubmittedTitles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.Submitted))
	for _, s := range c.Submitted {
		out = append(out, s.Title)
	}
	return out
}
