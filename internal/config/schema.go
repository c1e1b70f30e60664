package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Document represents an optional copier.yaml file. Unset fields keep their
// defaults; flags and environment take precedence over the document.
type Document struct {
	Site            string    `yaml:"site,omitempty"`
	Username        string    `yaml:"username,omitempty"`
	Password        string    `yaml:"password,omitempty"`
	ClientID        string    `yaml:"client_id,omitempty"`
	ClientSecret    string    `yaml:"client_secret,omitempty"`
	UserAgent       string    `yaml:"user_agent,omitempty"`
	Subreddits      []string  `yaml:"subreddits,omitempty"`
	Target          string    `yaml:"target,omitempty"`
	Limit           int       `yaml:"limit,omitempty"`
	PollRate        *Duration `yaml:"poll_rate,omitempty"`
	PollSchedule    string    `yaml:"poll_schedule,omitempty"`
	SubmitRate      *Duration `yaml:"submit_rate,omitempty"`
	RequestInterval *Duration `yaml:"request_interval,omitempty"`
	HTTPTimeout     *Duration `yaml:"http_timeout,omitempty"`
	Manual          bool      `yaml:"manual,omitempty"`
	DryRun          bool      `yaml:"dry_run,omitempty"`
	Verbose         *bool     `yaml:"verbose,omitempty"`
	// Filter is an expr rule over title, body, subreddit and id.
	Filter string       `yaml:"filter,omitempty"`
	Store  *StoreConfig `yaml:"store,omitempty"`
}

// StoreConfig selects where copied ids are recorded.
type StoreConfig struct {
	Driver string `yaml:"driver,omitempty"`
	Path   string `yaml:"path,omitempty"`
	Table  string `yaml:"table,omitempty"`
	// FlushOnExit batches writes until shutdown instead of appending per post.
	FlushOnExit bool `yaml:"flush_on_exit,omitempty"`
}

func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse copier document: %w", err)
	}
	return &doc, nil
}
