package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	goreddit "github.com/vartanbeno/go-reddit/v2/reddit"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/bakkerme/selfpost-copier/internal/reddit"
)

const defaultSite = "https://oauth.reddit.com"

type Config struct {
	ClientID        string
	ClientSecret    string
	Username        string
	Password        string
	UserAgent       string
	Timeout         time.Duration
	RequestInterval time.Duration

	// Endpoint overrides; empty means reddit.com.
	baseURL  string
	tokenURL string
}

// Client copies through the OAuth API of reddit.com using a script app.
// No modhash is involved; the bearer token replaces it.
type Client struct {
	client   *goreddit.Client
	httpc    *http.Client
	site     string
	limiter  *rate.Limiter
	username string
	logger   *slog.Logger
}

func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("oauth client requires client id, client secret, username and password")
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = reddit.DefaultUserAgent
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestInterval > 0 {
		limit = rate.Every(cfg.RequestInterval)
	}

	httpClient := &http.Client{Timeout: timeout}
	opts := []goreddit.Opt{goreddit.WithHTTPClient(httpClient), goreddit.WithUserAgent(userAgent)}
	site := defaultSite
	if cfg.baseURL != "" {
		site = cfg.baseURL
		opts = append(opts, goreddit.WithBaseURL(cfg.baseURL))
	}
	if cfg.tokenURL != "" {
		opts = append(opts, goreddit.WithTokenURL(cfg.tokenURL))
	}
	client, err := goreddit.NewClient(goreddit.Credentials{
		ID:       cfg.ClientID,
		Secret:   cfg.ClientSecret,
		Username: cfg.Username,
		Password: cfg.Password,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("create reddit client: %w", err)
	}
	logger.Info("Using OAuth reddit client", slog.String("clientID", cfg.ClientID))
	return &Client{
		client:   client,
		httpc:    httpClient,
		site:     site,
		limiter:  rate.NewLimiter(limit, 1),
		username: cfg.Username,
		logger:   logger,
	}, nil
}

// Login fetches the account behind the credentials, which forces the
// token exchange and fails fast on bad credentials.
func (c *Client) Login(ctx context.Context) error {
	ctx, span := otel.Tracer("selfpost-copier/reddit").Start(ctx, "reddit.login")
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", reddit.ErrAuth, err)
	}
	c.logger.Info("Logging in", slog.String("username", c.username))
	user, _, err := c.client.Account.Info(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		return fmt.Errorf("%w: %v", reddit.ErrAuth, err)
	}
	if user != nil && !strings.EqualFold(user.Name, c.username) {
		c.logger.Warn("Authenticated as a different account", slog.String("expected", c.username), slog.String("actual", user.Name))
	}
	return nil
}

func (c *Client) Poll(ctx context.Context, req reddit.ListingRequest) (reddit.Listing, error) {
	if len(req.Subreddits) == 0 {
		return reddit.Listing{}, fmt.Errorf("no subreddits configured")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 25
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return reddit.Listing{}, err
	}

	posts, resp, err := c.client.Subreddit.HotPosts(ctx, strings.Join(req.Subreddits, "+"), &goreddit.ListOptions{Limit: limit})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusOK {
			return reddit.Listing{}, fmt.Errorf("%w: %v", reddit.ErrMalformedResponse, err)
		}
		return reddit.Listing{}, fmt.Errorf("%w: %v", reddit.ErrTransientFetch, err)
	}

	listing := reddit.Listing{Submissions: make([]reddit.Submission, 0, len(posts))}
	for _, post := range posts {
		if post == nil {
			continue
		}
		listing.Submissions = append(listing.Submissions, reddit.Submission{
			ID:        post.ID,
			Title:     post.Title,
			Body:      post.Body,
			Subreddit: post.SubredditName,
			IsSelf:    post.IsSelfPost,
		})
	}
	return listing, nil
}

func (c *Client) Submit(ctx context.Context, req reddit.SubmitRequest) (reddit.Submitted, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return reddit.Submitted{}, fmt.Errorf("%w: %v", reddit.ErrSubmitFailed, err)
	}
	submitted, resp, err := c.client.Post.SubmitText(ctx, goreddit.SubmitTextRequest{
		Subreddit: req.Target,
		Title:     req.Title,
		Text:      req.Text,
	})
	if err != nil {
		return reddit.Submitted{}, classifySubmitError(err, resp)
	}
	if submitted == nil {
		return reddit.Submitted{}, nil
	}
	return reddit.Submitted{ID: submitted.ID, URL: submitted.URL}, nil
}

// classifySubmitError inspects the structured json.errors codes first and
// only falls back to matching the error text.
func classifySubmitError(err error, resp *goreddit.Response) error {
	var rateErr *goreddit.RateLimitError
	if errors.As(err, &rateErr) {
		return fmt.Errorf("%w: %v", reddit.ErrRateLimited, err)
	}
	var jsonErr *goreddit.JSONErrorResponse
	if errors.As(err, &jsonErr) && len(jsonErr.JSON.Errors) > 0 {
		var apiResp reddit.APIResponse
		for _, e := range jsonErr.JSON.Errors {
			apiResp.JSON.Errors = append(apiResp.JSON.Errors, []string{e.Label, e.Reason, e.Field})
		}
		_, classified := reddit.ClassifyAPIErrors(apiResp)
		return classified
	}
	if resp != nil && resp.Response != nil && resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", reddit.ErrRateLimited, err)
	}
	return fmt.Errorf("%w: %v", reddit.ClassifyMessage(err.Error()), err)
}

func (c *Client) Close() error {
	c.httpc.CloseIdleConnections()
	return nil
}

func (c *Client) SpanAttributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("reddit.site", c.site),
		attribute.String("reddit.backend", "oauth"),
	}
}

var _ reddit.Client = (*Client)(nil)
