package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bakkerme/selfpost-copier/internal/config"
	"github.com/bakkerme/selfpost-copier/internal/console"
	"github.com/bakkerme/selfpost-copier/internal/copier"
	"github.com/bakkerme/selfpost-copier/internal/dedupe"
	"github.com/bakkerme/selfpost-copier/internal/observability/otelx"
	"github.com/bakkerme/selfpost-copier/internal/reddit"
	"github.com/bakkerme/selfpost-copier/internal/reddit/oauth"
	"github.com/bakkerme/selfpost-copier/internal/reddit/session"
)

type cliFlags struct {
	configPath      string
	username        string
	password        string
	clientID        string
	clientSecret    string
	userAgent       string
	subreddits      []string
	target          string
	site            string
	saveFile        string
	store           string
	verbose         bool
	quiet           bool
	debug           bool
	limit           int
	pollRate        config.Duration
	pollSchedule    string
	submitRate      config.Duration
	requestInterval config.Duration
	httpTimeout     config.Duration
	filter          string
	manual          bool
	flushOnExit     bool
	dryRun          bool
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(&cliFlags{})
}

func buildRootCmd(flags *cliFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "selfpost-copier",
		Short:   "Copies self posts from one or more subreddits to a target subreddit",
		Version: reddit.AppTitle + " " + reddit.AppVersion,
		Long: `selfpost-copier logs in once, then polls the hot listing of the source
subreddits and resubmits every new self post to the target subreddit. Copied
post ids are recorded in a save file so nothing is copied twice, even across
restarts.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: loadDotEnv,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := resolveSettings(cmd, flags, config.LoadEnv())
			if err != nil {
				return err
			}
			return run(cmd, settings)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.configPath, "config", "", "path to an optional copier.yaml document")
	f.StringVarP(&flags.username, "username", "u", "", "username for bot to login as")
	f.StringVarP(&flags.password, "password", "p", "", "password for the username")
	f.StringVar(&flags.clientID, "client-id", "", "OAuth script app id; enables the OAuth client")
	f.StringVar(&flags.clientSecret, "client-secret", "", "OAuth script app secret")
	f.StringVar(&flags.userAgent, "user-agent", "", "User-Agent sent with every request")
	f.StringArrayVarP(&flags.subreddits, "subreddit", "r", nil, "subreddit to copy from; can specify multiple")
	f.StringVarP(&flags.target, "target", "t", "", "target subreddit")
	f.StringVarP(&flags.site, "site", "s", config.DefaultSite, "target reddit-powered site")
	f.StringVarP(&flags.saveFile, "save-file", "f", config.DefaultSaveFile, "file to save the submitted posts to")
	f.StringVar(&flags.store, "store", dedupe.DriverFile, "seen store: file, sqlite or badger")
	f.BoolVarP(&flags.verbose, "verbose", "v", true, "show informative messages")
	f.BoolVarP(&flags.quiet, "quiet", "q", false, "hide informative messages")
	f.BoolVar(&flags.debug, "debug", false, "show debug messages")
	f.IntVarP(&flags.limit, "limit", "l", 25, "amount of submissions to poll for")
	flags.pollRate = config.Duration(120 * time.Second)
	f.VarP(&flags.pollRate, "poll-rate", "o", "interval between polls (seconds or a duration such as 2m)")
	f.StringVar(&flags.pollSchedule, "poll-schedule", "", "cron schedule for polls; overrides --poll-rate")
	flags.submitRate = config.Duration(4 * time.Second)
	f.Var(&flags.submitRate, "submit-rate", "delay before each submission")
	flags.requestInterval = config.Duration(2 * time.Second)
	f.Var(&flags.requestInterval, "request-interval", "minimum spacing between any two requests")
	flags.httpTimeout = config.Duration(10 * time.Second)
	f.Var(&flags.httpTimeout, "http-timeout", "timeout for each HTTP request")
	f.StringVar(&flags.filter, "filter", "", "expr rule a post must satisfy, e.g. 'len(body) > 0'")
	f.BoolVarP(&flags.manual, "manual", "m", false, "ask for confirmation before each submission")
	f.BoolVar(&flags.flushOnExit, "flush-on-exit", false, "write the save file only on shutdown")
	f.BoolVar(&flags.dryRun, "dry-run", false, "record posts as seen without submitting them")

	return cmd
}

func loadDotEnv(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// resolveSettings layers defaults, the optional document, the environment
// and finally the flags the user actually set.
func resolveSettings(cmd *cobra.Command, flags *cliFlags, env config.EnvConfig) (config.Settings, error) {
	settings := config.Defaults()

	configPath := flags.configPath
	if configPath == "" {
		configPath = env.ConfigPath
	}
	if configPath != "" {
		doc, err := config.LoadDocument(configPath)
		if err != nil {
			return settings, fmt.Errorf("failed to load document: %w", err)
		}
		settings.ApplyDocument(doc)
	}
	settings.ApplyEnv(env)

	changed := cmd.Flags().Changed
	if changed("username") {
		settings.Username = flags.username
	}
	if changed("password") {
		settings.Password = flags.password
	}
	if changed("client-id") {
		settings.ClientID = flags.clientID
	}
	if changed("client-secret") {
		settings.ClientSecret = flags.clientSecret
	}
	if changed("user-agent") {
		settings.UserAgent = flags.userAgent
	}
	if changed("subreddit") {
		settings.Subreddits = flags.subreddits
	}
	if changed("target") {
		settings.Target = flags.target
	}
	if changed("site") {
		settings.Site = flags.site
	}
	if changed("save-file") {
		settings.Store.Path = flags.saveFile
	}
	if changed("store") {
		settings.Store.Driver = flags.store
	}
	if changed("limit") {
		settings.Limit = flags.limit
	}
	if changed("poll-rate") {
		settings.PollRate = time.Duration(flags.pollRate)
	}
	if changed("poll-schedule") {
		settings.PollSchedule = flags.pollSchedule
	}
	if changed("submit-rate") {
		settings.SubmitRate = time.Duration(flags.submitRate)
	}
	if changed("request-interval") {
		settings.RequestInterval = time.Duration(flags.requestInterval)
	}
	if changed("http-timeout") {
		settings.HTTPTimeout = time.Duration(flags.httpTimeout)
	}
	if changed("filter") {
		settings.Filter = flags.filter
	}
	if changed("verbose") {
		settings.Verbose = flags.verbose
	}
	if flags.quiet {
		settings.Verbose = false
	}
	settings.Debug = flags.debug
	settings.Manual = settings.Manual || flags.manual
	settings.Store.FlushOnExit = settings.Store.FlushOnExit || flags.flushOnExit
	settings.DryRun = settings.DryRun || flags.dryRun

	if err := settings.Validate(); err != nil {
		return settings, err
	}
	return settings, nil
}

func newLogger(w io.Writer, settings config.Settings) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case settings.Debug:
		level = slog.LevelDebug
	case !settings.Verbose:
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newClient(settings config.Settings, logger *slog.Logger) (reddit.Client, error) {
	if settings.UsesOAuth() {
		return oauth.New(oauth.Config{
			ClientID:        settings.ClientID,
			ClientSecret:    settings.ClientSecret,
			Username:        settings.Username,
			Password:        settings.Password,
			UserAgent:       settings.UserAgent,
			Timeout:         settings.HTTPTimeout,
			RequestInterval: settings.RequestInterval,
		}, logger)
	}
	return session.New(session.Config{
		Site:            settings.Site,
		Username:        settings.Username,
		Password:        settings.Password,
		UserAgent:       settings.UserAgent,
		Timeout:         settings.HTTPTimeout,
		RequestInterval: settings.RequestInterval,
	}, logger)
}

func run(cmd *cobra.Command, settings config.Settings) error {
	out := cmd.OutOrStdout()
	logger := newLogger(out, settings)
	console.SetTitle(out, reddit.AppTitle)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, site := "session", settings.Site
	if settings.UsesOAuth() {
		backend, site = "oauth", ""
	}
	shutdownTracing, err := otelx.Init(ctx, logger, settings.OTel, otelx.Deployment{
		Target:  settings.NormalizedTarget(),
		Sources: settings.SourceList(),
		Backend: backend,
		Site:    site,
	})
	if err != nil {
		return fmt.Errorf("init otel: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	storePath := settings.StorePath()
	store, err := dedupe.Open(dedupe.Config{Driver: settings.Store.Driver, Path: storePath, Table: settings.Store.Table})
	if err != nil {
		return fmt.Errorf("open seen store: %w", err)
	}
	defer store.Close()

	seen, err := copier.LoadSeenSet(ctx, store, settings.Store.FlushOnExit)
	if err != nil {
		return err
	}
	logger.Info("Loaded seen submissions", slog.String("store", settings.Store.Driver), slog.String("path", storePath), slog.Int("count", seen.Len()))

	filter, err := copier.NewFilter(settings.Filter)
	if err != nil {
		return err
	}
	schedule, err := copier.ParseSchedule(settings.PollSchedule, settings.PollRate)
	if err != nil {
		return err
	}

	client, err := newClient(settings, logger)
	if err != nil {
		return err
	}

	target := settings.NormalizedTarget()
	cfg := copier.Config{
		Sources:     settings.SourceList(),
		Target:      target,
		Limit:       settings.Limit,
		SubmitDelay: settings.SubmitRate,
		Schedule:    schedule,
		Filter:      filter,
		DryRun:      settings.DryRun,
		OnAuthenticated: func() {
			console.SetTitle(out, target+" - "+reddit.AppTitle)
		},
	}
	if settings.Manual {
		cfg.Approver = console.NewPrompter(cmd.InOrStdin(), out, target)
	}

	cp, err := copier.New(client, seen, cfg, logger)
	if err != nil {
		_ = client.Close()
		return err
	}
	return cp.Run(ctx)
}
