package pipeline

import (
	"bibmerge/internal"
)

// Problems accumulates human-readable problem descriptions for one record.
type Problems []string

func (p *Problems) Add(msg string) {
	*p = append(*p, msg)
}

// Flag records msg when cond holds and reports cond.
func (p *Problems) Flag(cond bool, msg string) bool {
	if cond {
		p.Add(msg)
	}
	return cond
}

func (p Problems) Empty() bool {
	return len(p) == 0
}

// IssueLog is the append-only issue list of one pipeline run.
type IssueLog struct {
	family  internal.SourceFamily
	entries []internal.Issue
}

func NewIssueLog(family internal.SourceFamily) *IssueLog {
	return &IssueLog{family: family}
}

// Add appends issue unless it carries no problems. Issues without explicit
// provenance are tagged with the pipeline's family.
func (l *IssueLog) Add(issue internal.Issue) bool {
	if len(issue.Issues) == 0 {
		return false
	}
	if issue.Source == "" && len(issue.Sources) == 0 {
		issue.Source = string(l.family)
	}
	l.entries = append(l.entries, issue)
	return true
}

func (l *IssueLog) Len() int {
	return len(l.entries)
}

func (l *IssueLog) Entries() []internal.Issue {
	out := make([]internal.Issue, len(l.entries))
	copy(out, l.entries)
	return out
}
