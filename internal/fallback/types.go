package fallback

import (
	"github.com/lepinkainen/folio/internal/catalog"
	"github.com/lepinkainen/folio/internal/search"
)

// Origin tells where a merged result came from.
type Origin string

const (
	OriginLocal    Origin = "LOCAL"
	OriginExternal Origin = "EXTERNAL"
	OriginBoth     Origin = "BOTH"
)

// Summary describes how a response was assembled.
type Summary string

const (
	// SummaryLocalOnly means no external source contributed or was needed.
	SummaryLocalOnly Summary = "LOCAL_ONLY"
	// SummaryMerged means every consulted source contributed.
	SummaryMerged Summary = "MERGED"
	// SummaryMergedPartial means at least one source failed or was unavailable.
	SummaryMergedPartial Summary = "MERGED_PARTIAL"
	// SummaryEmpty means there were no results at all.
	SummaryEmpty Summary = "EMPTY"
)

// Outcome records what happened to one source during a request.
type Outcome string

const (
	OutcomeCached      Outcome = "cached"
	OutcomeOK          Outcome = "ok"
	OutcomeFailed      Outcome = "failed"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeAbandoned   Outcome = "abandoned"
	OutcomeCircuitOpen Outcome = "circuit_open"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeOverloaded  Outcome = "overloaded"
	outcomePending     Outcome = "pending"
)

func (o Outcome) contributed() bool {
	return o == OutcomeCached || o == OutcomeOK
}

func (o Outcome) dispatched() bool {
	switch o {
	case OutcomeOK, OutcomeFailed, OutcomeTimeout, OutcomeAbandoned:
		return true
	}
	return false
}

// Request is a search request.
type Request struct {
	// ID correlates log lines; one is generated when empty.
	ID              string          `json:"-"`
	Query           string          `json:"query"`
	IncludeExternal bool            `json:"includeExternal"`
	Page            int             `json:"page"`
	Size            int             `json:"size"`
	SortBy          string          `json:"sortBy,omitempty"`
	SortOrder       string          `json:"sortOrder,omitempty"`
	Filters         catalog.Filters `json:"filters"`
}

// MergedResult is a ranked result tagged with its origin.
type MergedResult struct {
	search.Result
	Origin         Origin `json:"origin"`
	ExternalSource string `json:"externalSource,omitempty"`
}

// SourceReport is the per-source part of a response.
type SourceReport struct {
	Source     string  `json:"source"`
	Outcome    Outcome `json:"outcome"`
	Candidates int     `json:"candidates"`
	Error      string  `json:"error,omitempty"`
}

// Response is one page of merged results.
type Response struct {
	Results       []MergedResult `json:"results"`
	TotalResults  int            `json:"totalResults"`
	Query         string         `json:"query"`
	Page          int            `json:"page"`
	Size          int            `json:"size"`
	HasMore       bool           `json:"hasMore"`
	OriginSummary Summary        `json:"originSummary"`
	Sources       []SourceReport `json:"sources,omitempty"`
}
