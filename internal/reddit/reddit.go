package reddit

import (
	"context"
	"errors"
	"fmt"
)

const (
	AppTitle   = "Reddit Self Posts Copier"
	AppVersion = "1.1"
)

// DefaultUserAgent identifies the copier to the remote site.
var DefaultUserAgent = AppTitle + "/" + AppVersion

// Submission is a post read from a source board. Title and Body arrive
// HTML-entity-escaped, exactly as the listing returns them.
type Submission struct {
	ID        string
	Title     string
	Body      string
	Subreddit string
	IsSelf    bool
}

// Listing is one page of the hot listing together with the modhash
// returned alongside it.
type Listing struct {
	Modhash     string
	Submissions []Submission
}

// ListingRequest selects what Poll fetches.
type ListingRequest struct {
	Subreddits []string
	Limit      int
}

// SubmitRequest describes a self post to create on the target board.
type SubmitRequest struct {
	Title   string
	Text    string
	Target  string
	Modhash string
}

// Submitted is what the site reports back for an accepted post.
type Submitted struct {
	ID  string
	URL string
}

// Client is the authenticated site API used by the copier.
type Client interface {
	Login(ctx context.Context) error
	Poll(ctx context.Context, req ListingRequest) (Listing, error)
	Submit(ctx context.Context, req SubmitRequest) (Submitted, error)
	Close() error
}

var (
	// ErrAuth is fatal: credentials were rejected or the login endpoint was unreachable.
	ErrAuth = errors.New("login failed, please ensure that your username and password are correct")
	// ErrTransientFetch covers network failures and unexpected HTTP statuses.
	ErrTransientFetch = errors.New("transient fetch error")
	// ErrMalformedResponse covers invalid or incomplete JSON.
	ErrMalformedResponse = errors.New("malformed response")
	ErrCaptchaRequired   = errors.New("captcha required")
	ErrRateLimited       = errors.New("rate limited")
	ErrSubmitFailed      = errors.New("submission failed")
)

// Outcome classifies a single submission attempt.
type Outcome int

const (
	OutcomeSubmitted Outcome = iota
	OutcomeCaptchaRequired
	OutcomeRateLimited
	OutcomeFailed
	OutcomeDeclined
	OutcomeDryRun
	// OutcomeSkipped means the post was a link post or already seen.
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSubmitted:
		return "submitted"
	case OutcomeCaptchaRequired:
		return "captcha_required"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeFailed:
		return "failed"
	case OutcomeDeclined:
		return "declined"
	case OutcomeDryRun:
		return "dry_run"
	case OutcomeSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ClassifySubmitError maps an error returned by Client.Submit to an Outcome.
func ClassifySubmitError(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSubmitted
	case errors.Is(err, ErrCaptchaRequired):
		return OutcomeCaptchaRequired
	case errors.Is(err, ErrRateLimited):
		return OutcomeRateLimited
	default:
		return OutcomeFailed
	}
}
