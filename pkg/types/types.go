package types

import (
	"time"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

type ScanType string

const (
	ScanTypeSmuggling ScanType = "smuggling"
)

type Finding struct {
	ID          string                 `json:"id"`
	ScanID      string                 `json:"scan_id"`
	Tool        string                 `json:"tool"`
	Type        string                 `json:"type"`
	Severity    Severity               `json:"severity"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Evidence    string                 `json:"evidence,omitempty"`
	Solution    string                 `json:"solution,omitempty"`
	References  []string               `json:"references,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

type Summary struct {
	Total      int              `json:"total"`
	BySeverity map[Severity]int `json:"by_severity"`
	ByTool     map[string]int   `json:"by_tool"`
}

// Summarize counts findings by severity and tool.
func Summarize(findings []Finding) Summary {
	s := Summary{
		Total:      len(findings),
		BySeverity: make(map[Severity]int),
		ByTool:     make(map[string]int),
	}
	for _, f := range findings {
		s.BySeverity[f.Severity]++
		s.ByTool[f.Tool]++
	}
	return s
}
