package secrets

import (
	"encoding/json"
	"time"
)

// AuditLog records what was redacted. It never holds secret values.
type AuditLog struct {
	Timestamp  time.Time   `json:"timestamp"`
	Source     string      `json:"source,omitempty"`
	Redactions []Redaction `json:"redactions"`
	Summary    Summary     `json:"summary"`
}

// Redaction describes one redacted secret.
type Redaction struct {
	RuleID      string `json:"rule_id"`
	RuleDesc    string `json:"rule_desc"`
	LineNumber  int    `json:"line_number"`
	Column      int    `json:"column"`
	OriginalLen int    `json:"original_len"`
	Preview     string `json:"preview"` // first 4 characters
}

// Summary aggregates redactions by rule.
type Summary struct {
	TotalSecrets     int            `json:"total_secrets"`
	UniqueRules      int            `json:"unique_rules"`
	RuleCounts       map[string]int `json:"rule_counts"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
}

// JSON returns the audit log as compact JSON.
func (a *AuditLog) JSON() string {
	data, err := json.Marshal(a)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// HasRedactions reports whether anything was redacted.
func (a *AuditLog) HasRedactions() bool {
	return len(a.Redactions) > 0
}

func buildAuditLog(source string, findings []Finding, elapsed time.Duration) AuditLog {
	redactions := make([]Redaction, 0, len(findings))
	counts := make(map[string]int)
	for _, f := range findings {
		redactions = append(redactions, Redaction{
			RuleID:      f.RuleID,
			RuleDesc:    f.RuleDesc,
			LineNumber:  f.Line,
			Column:      f.StartCol,
			OriginalLen: len(f.Secret),
			Preview:     preview(f.Secret),
		})
		counts[f.RuleID]++
	}

	return AuditLog{
		Timestamp:  time.Now(),
		Source:     source,
		Redactions: redactions,
		Summary: Summary{
			TotalSecrets:     len(findings),
			UniqueRules:      len(counts),
			RuleCounts:       counts,
			ProcessingTimeMs: elapsed.Milliseconds(),
		},
	}
}
