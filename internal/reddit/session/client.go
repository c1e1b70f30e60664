package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/bakkerme/selfpost-copier/internal/reddit"
)

const maxBodyBytes = 4 << 20

type Config struct {
	Site            string
	Username        string
	Password        string
	UserAgent       string
	Timeout         time.Duration
	RequestInterval time.Duration
}

// Client talks to the cookie-authenticated endpoints of a reddit-powered
// site. The session cookie lives in the http.Client's jar and is attached
// to every request after Login.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	site      *url.URL
	username  string
	password  string
	userAgent string
	modhash   string
	logger    *slog.Logger
}

func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	site, err := parseSite(cfg.Site)
	if err != nil {
		return nil, err
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = reddit.DefaultUserAgent
	}
	limit := rate.Inf
	if cfg.RequestInterval > 0 {
		limit = rate.Every(cfg.RequestInterval)
	}
	return &Client{
		http:      &http.Client{Timeout: timeout, Jar: jar},
		limiter:   rate.NewLimiter(limit, 1),
		site:      site,
		username:  cfg.Username,
		password:  cfg.Password,
		userAgent: userAgent,
		logger:    logger,
	}, nil
}

func parseSite(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("site url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse site url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("site url %q must be http or https", raw)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, nil
}

func (c *Client) endpoint(path string) *url.URL {
	return c.site.ResolveReference(&url.URL{Path: path})
}

func (c *Client) Login(ctx context.Context) error {
	ctx, span := otel.Tracer("selfpost-copier/reddit").Start(ctx, "reddit.login")
	defer span.End()

	form := url.Values{}
	form.Set("user", c.username)
	form.Set("passwd", c.password)
	form.Set("api_type", "json")

	c.logger.Info("Logging in", slog.String("username", c.username))
	body, _, err := c.postForm(ctx, c.endpoint("api/login").String(), form)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login request failed")
		return fmt.Errorf("%w: %v", reddit.ErrAuth, err)
	}
	resp, err := reddit.CheckLogin(body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login rejected")
		return err
	}
	c.modhash = resp.JSON.Data.Modhash
	return nil
}

// Modhash returns the token received at login, if any.
func (c *Client) Modhash() string {
	return c.modhash
}

func (c *Client) Poll(ctx context.Context, req reddit.ListingRequest) (reddit.Listing, error) {
	if len(req.Subreddits) == 0 {
		return reddit.Listing{}, fmt.Errorf("no subreddits configured")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 25
	}

	endpoint := c.endpoint("r/" + strings.Join(req.Subreddits, "+") + "/hot.json")
	query := endpoint.Query()
	query.Set("limit", strconv.Itoa(limit))
	endpoint.RawQuery = query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return reddit.Listing{}, err
	}
	body, _, err := c.do(httpReq)
	if err != nil {
		return reddit.Listing{}, err
	}

	var payload listingResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return reddit.Listing{}, fmt.Errorf("%w: decode listing: %v", reddit.ErrMalformedResponse, err)
	}
	if payload.Data == nil || payload.Data.Children == nil {
		return reddit.Listing{}, fmt.Errorf("%w: listing has no data.children", reddit.ErrMalformedResponse)
	}

	listing := reddit.Listing{
		Modhash:     payload.Data.Modhash,
		Submissions: make([]reddit.Submission, 0, len(payload.Data.Children)),
	}
	for _, child := range payload.Data.Children {
		if child.Data == nil || child.Data.ID == "" {
			return reddit.Listing{}, fmt.Errorf("%w: listing child without id", reddit.ErrMalformedResponse)
		}
		listing.Submissions = append(listing.Submissions, reddit.Submission{
			ID:        child.Data.ID,
			Title:     child.Data.Title,
			Body:      child.Data.SelfText,
			Subreddit: child.Data.Subreddit,
			IsSelf:    child.Data.IsSelf,
		})
	}
	if listing.Modhash == "" {
		listing.Modhash = c.modhash
	}
	return listing, nil
}

func (c *Client) Submit(ctx context.Context, req reddit.SubmitRequest) (reddit.Submitted, error) {
	form := url.Values{}
	form.Set("title", req.Title)
	form.Set("text", req.Text)
	form.Set("kind", "self")
	form.Set("sr", req.Target)
	form.Set("uh", req.Modhash)
	form.Set("api_type", "json")

	body, status, err := c.postForm(ctx, c.endpoint("api/submit").String(), form)
	if err != nil {
		if status == http.StatusTooManyRequests {
			return reddit.Submitted{}, fmt.Errorf("%w: %v", reddit.ErrRateLimited, err)
		}
		return reddit.Submitted{}, fmt.Errorf("%w: %w", reddit.ErrSubmitFailed, err)
	}
	return reddit.CheckSubmit(body)
}

func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

// do waits for the request limiter, sends req and returns the body. Non-2xx
// statuses and transport failures are wrapped in ErrTransientFetch.
func (c *Client) do(req *http.Request) ([]byte, int, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("Problem requesting", slog.String("url", req.URL.String()), slog.String("error", err.Error()))
		return nil, 0, fmt.Errorf("%w: %s %s: %v", reddit.ErrTransientFetch, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read %s: %v", reddit.ErrTransientFetch, req.URL.Path, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return body, resp.StatusCode, fmt.Errorf("%w: %s %s: %s", reddit.ErrTransientFetch, req.Method, req.URL.Path, resp.Status)
	}
	return bytes.TrimSpace(body), resp.StatusCode, nil
}

type listingResponse struct {
	Data *struct {
		Modhash  string `json:"modhash"`
		Children []struct {
			Data *struct {
				ID        string `json:"id"`
				Title     string `json:"title"`
				SelfText  string `json:"selftext"`
				Subreddit string `json:"subreddit"`
				IsSelf    bool   `json:"is_self"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

var _ reddit.Client = (*Client)(nil)

// SpanAttributes describes the client for tracing.
func (c *Client) SpanAttributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("reddit.site", c.site.String()),
		attribute.String("reddit.backend", "session"),
	}
}
