package filter

import (
	"fmt"
	"regexp"

	"towerbot/internal/record"
)

// DefaultSuccessPatterns match routine "it worked" messages that only add
// noise below WARNING.
var DefaultSuccessPatterns = []string{
	`Successfully processed .* lines from CSV file`,
	`Download completed successfully`,
	`CSV file .* processed successfully`,
	`Found \d+ files in directory`,
	`Processed event successfully`,
	`Operation .* succeeded in \d+\.\d+s`,
}

// Success drops records below WARNING whose message matches any pattern.
type Success struct {
	patterns []*regexp.Regexp
}

// NewSuccess compiles DefaultSuccessPatterns followed by extra.
func NewSuccess(extra ...string) (*Success, error) {
	all := make([]string, 0, len(DefaultSuccessPatterns)+len(extra))
	all = append(all, DefaultSuccessPatterns...)
	all = append(all, extra...)

	f := &Success{patterns: make([]*regexp.Regexp, 0, len(all))}
	for _, p := range all {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("success pattern %q: %w", p, err)
		}
		f.patterns = append(f.patterns, re)
	}
	return f, nil
}

func (f *Success) Name() string { return "success" }

func (f *Success) Evaluate(r record.Record) (record.Record, Decision) {
	if r.Level >= record.LevelWarning {
		return r, Admit
	}
	for _, re := range f.patterns {
		if re.MatchString(r.Message) {
			return r, Suppress
		}
	}
	return r, Admit
}
