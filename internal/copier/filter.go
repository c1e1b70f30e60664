package copier

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/bakkerme/selfpost-copier/internal/reddit"
)

// Filter is an optional boolean rule a self post must satisfy to be
// copied, e.g. `len(body) > 0 && !(title startsWith "[META]")`.
type Filter struct {
	rule    string
	program *vm.Program
}

// NewFilter compiles rule. An empty rule yields a nil Filter, which allows
// everything.
func NewFilter(rule string) (*Filter, error) {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return nil, nil
	}
	program, err := expr.Compile(rule, expr.Env(filterEnv(reddit.Submission{})), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile filter rule: %w", err)
	}
	return &Filter{rule: rule, program: program}, nil
}

func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.rule
}

func (f *Filter) Allow(sub reddit.Submission) (bool, error) {
	if f == nil {
		return true, nil
	}
	result, err := expr.Run(f.program, filterEnv(sub))
	if err != nil {
		return false, fmt.Errorf("evaluate filter rule: %w", err)
	}
	allowed, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("filter rule did not return bool")
	}
	return allowed, nil
}

func filterEnv(sub reddit.Submission) map[string]interface{} {
	return map[string]interface{}{
		"id":        sub.ID,
		"title":     Unescape(sub.Title),
		"body":      Unescape(sub.Body),
		"subreddit": sub.Subreddit,
	}
}
