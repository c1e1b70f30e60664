package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bakkerme/selfpost-copier/internal/dedupe"
)

const (
	DefaultSite     = "http://www.reddit.com/"
	DefaultSaveFile = ".submitted"
	maxLimit        = 100
)

// Settings is the fully resolved configuration of one copier process.
type Settings struct {
	Site            string
	Username        string
	Password        string
	ClientID        string
	ClientSecret    string
	UserAgent       string
	Subreddits      []string
	Target          string
	Limit           int
	PollRate        time.Duration
	PollSchedule    string
	SubmitRate      time.Duration
	RequestInterval time.Duration
	HTTPTimeout     time.Duration
	Manual          bool
	DryRun          bool
	Verbose         bool
	Debug           bool
	Filter          string
	Store           StoreConfig
	OTel            OTelEnvConfig
}

func Defaults() Settings {
	return Settings{
		Site:            DefaultSite,
		Limit:           25,
		PollRate:        120 * time.Second,
		SubmitRate:      4 * time.Second,
		RequestInterval: 2 * time.Second,
		HTTPTimeout:     10 * time.Second,
		Verbose:         true,
		Store:           StoreConfig{Driver: dedupe.DriverFile},
	}
}

// ApplyDocument overlays every field the document sets.
func (s *Settings) ApplyDocument(doc *Document) {
	if doc == nil {
		return
	}
	setString(&s.Site, doc.Site)
	setString(&s.Username, doc.Username)
	setString(&s.Password, doc.Password)
	setString(&s.ClientID, doc.ClientID)
	setString(&s.ClientSecret, doc.ClientSecret)
	setString(&s.UserAgent, doc.UserAgent)
	if len(doc.Subreddits) > 0 {
		s.Subreddits = append([]string(nil), doc.Subreddits...)
	}
	setString(&s.Target, doc.Target)
	if doc.Limit != 0 {
		s.Limit = doc.Limit
	}
	setDuration(&s.PollRate, doc.PollRate)
	setString(&s.PollSchedule, doc.PollSchedule)
	setDuration(&s.SubmitRate, doc.SubmitRate)
	setDuration(&s.RequestInterval, doc.RequestInterval)
	setDuration(&s.HTTPTimeout, doc.HTTPTimeout)
	s.Manual = s.Manual || doc.Manual
	s.DryRun = s.DryRun || doc.DryRun
	if doc.Verbose != nil {
		s.Verbose = *doc.Verbose
	}
	setString(&s.Filter, doc.Filter)
	if doc.Store != nil {
		setString(&s.Store.Driver, strings.ToLower(doc.Store.Driver))
		setString(&s.Store.Path, doc.Store.Path)
		setString(&s.Store.Table, doc.Store.Table)
		s.Store.FlushOnExit = s.Store.FlushOnExit || doc.Store.FlushOnExit
	}
}

// ApplyEnv overlays every variable that is set.
func (s *Settings) ApplyEnv(env EnvConfig) {
	setString(&s.Site, env.Copier.Site)
	if len(env.Copier.Subreddits) > 0 {
		s.Subreddits = append([]string(nil), env.Copier.Subreddits...)
	}
	setString(&s.Target, env.Copier.Target)
	setString(&s.Store.Path, env.Copier.SaveFile)
	setString(&s.Store.Driver, env.Copier.Store)
	if env.Reddit.HTTPTimeout > 0 {
		s.HTTPTimeout = env.Reddit.HTTPTimeout
	}
	setString(&s.UserAgent, env.Reddit.UserAgent)
	setString(&s.ClientID, env.Reddit.ClientID)
	setString(&s.ClientSecret, env.Reddit.ClientSecret)
	setString(&s.Username, env.Reddit.Username)
	setString(&s.Password, env.Reddit.Password)
	s.OTel = env.OTel
}

// UsesOAuth reports whether the OAuth client should be used instead of the
// cookie session.
func (s Settings) UsesOAuth() bool {
	return s.ClientID != "" && s.ClientSecret != ""
}

// StorePath returns the configured store path or the driver's default.
func (s Settings) StorePath() string {
	if s.Store.Path != "" {
		return s.Store.Path
	}
	switch s.Store.Driver {
	case dedupe.DriverSQLite:
		return DefaultSaveFile + ".db"
	case dedupe.DriverBadger:
		return DefaultSaveFile + ".badger"
	default:
		return DefaultSaveFile
	}
}

// SourceList returns the subreddits with surrounding whitespace and any
// "r/" prefix removed.
func (s Settings) SourceList() []string {
	out := make([]string, 0, len(s.Subreddits))
	for _, sr := range s.Subreddits {
		if sr = normalizeSubreddit(sr); sr != "" {
			out = append(out, sr)
		}
	}
	return out
}

func (s Settings) Validate() error {
	var problems []string
	if len(s.SourceList()) == 0 {
		problems = append(problems, "at least one source subreddit is required (-r)")
	}
	if normalizeSubreddit(s.Target) == "" {
		problems = append(problems, "a target subreddit is required (-t)")
	}
	if s.Username == "" || s.Password == "" {
		problems = append(problems, "username and password are required (-u, -p)")
	}
	if (s.ClientID == "") != (s.ClientSecret == "") {
		problems = append(problems, "client id and client secret must be set together")
	}
	if !s.UsesOAuth() {
		if u, err := url.Parse(s.Site); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			problems = append(problems, fmt.Sprintf("site %q must be an http(s) url", s.Site))
		}
	}
	if s.Limit < 1 || s.Limit > maxLimit {
		problems = append(problems, fmt.Sprintf("limit must be between 1 and %d", maxLimit))
	}
	if s.PollSchedule == "" && s.PollRate <= 0 {
		problems = append(problems, "poll rate must be positive")
	}
	if s.SubmitRate < 0 || s.RequestInterval < 0 || s.HTTPTimeout < 0 {
		problems = append(problems, "submit rate, request interval and http timeout must not be negative")
	}
	switch s.Store.Driver {
	case "", dedupe.DriverFile, dedupe.DriverSQLite, dedupe.DriverBadger:
	default:
		problems = append(problems, fmt.Sprintf("unknown store %q (expected file, sqlite or badger)", s.Store.Driver))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func normalizeSubreddit(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "/")
	name = strings.TrimPrefix(name, "r/")
	return strings.Trim(name, "/")
}

// NormalizedTarget returns the target board without any "r/" prefix.
func (s Settings) NormalizedTarget() string {
	return normalizeSubreddit(s.Target)
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v *Duration) {
	if v != nil {
		*dst = time.Duration(*v)
	}
}
