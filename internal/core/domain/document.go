package domain

import "time"

type AnalysisStatus string

const (
	AnalysisPending  AnalysisStatus = "pending"
	AnalysisComplete AnalysisStatus = "complete"
	AnalysisFailed   AnalysisStatus = "failed"
)

func (s AnalysisStatus) Valid() bool {
	switch s {
	case AnalysisPending, AnalysisComplete, AnalysisFailed:
		return true
	default:
		return false
	}
}

func (s AnalysisStatus) Terminal() bool {
	return s == AnalysisComplete || s == AnalysisFailed
}

// Document is the durable record of one submitted thesis file and the state of
// its analysis. ID, StoragePath and CreatedAt never change after Create.
type Document struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	MimeType    string `json:"mime_type"`
	StoragePath string `json:"storage_path"`
	Title       string `json:"title,omitempty"`
	AuthorName  string `json:"author_name,omitempty"`

	AnalysisStatus    AnalysisStatus `json:"analysis_status"`
	AnalysisSummary   string         `json:"analysis_summary,omitempty"`
	AnalysisKeywords  []string       `json:"analysis_keywords,omitempty"`
	AnalysisSentiment Sentiment      `json:"analysis_sentiment,omitempty"`
	AnalysisAttempt   string         `json:"-"`
	AnalysisError     string         `json:"-"`
	AnalyzedAt        *time.Time     `json:"analyzed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Submission carries the caller-supplied metadata of an upload.
type Submission struct {
	Filename   string
	MimeType   string
	Title      string
	AuthorName string
}

// ResetAnalysis starts a fresh attempt: status goes back to pending and every
// result field is cleared.
func (d *Document) ResetAnalysis(attempt string, at time.Time) {
	d.AnalysisStatus = AnalysisPending
	d.AnalysisAttempt = attempt
	d.clearResult()
	d.AnalyzedAt = nil
	d.UpdatedAt = at
}

func (d *Document) CompleteAnalysis(result AnalysisResult, at time.Time) {
	d.AnalysisStatus = AnalysisComplete
	d.AnalysisSummary = result.Summary
	d.AnalysisKeywords = append([]string(nil), result.Keywords...)
	d.AnalysisSentiment = result.Sentiment
	d.AnalysisError = ""
	d.AnalyzedAt = &at
	d.UpdatedAt = at
}

func (d *Document) FailAnalysis(cause error, at time.Time) {
	d.AnalysisStatus = AnalysisFailed
	d.clearResult()
	d.AnalysisError = ""
	if cause != nil {
		d.AnalysisError = cause.Error()
	}
	d.AnalyzedAt = &at
	d.UpdatedAt = at
}

func (d *Document) clearResult() {
	d.AnalysisSummary = ""
	d.AnalysisKeywords = nil
	d.AnalysisSentiment = ""
}

// ResultConsistent reports whether result fields are populated exactly when
// the analysis is complete.
func (d *Document) ResultConsistent() bool {
	hasResult := d.AnalysisSummary != "" || len(d.AnalysisKeywords) > 0 || d.AnalysisSentiment != ""
	if d.AnalysisStatus == AnalysisComplete {
		return d.AnalysisSummary != "" && len(d.AnalysisKeywords) > 0 && d.AnalysisSentiment.Valid()
	}
	return !hasResult
}
