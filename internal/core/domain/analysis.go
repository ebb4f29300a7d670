package domain

import (
	"strings"
	"time"
)

type Sentiment string

const (
	SentimentPositive Sentiment = "Positive"
	SentimentNeutral  Sentiment = "Neutral"
	SentimentNegative Sentiment = "Negative"
	// SentimentFailed marks an analysis that could not run. It is reported by the
	// query view and never stored as a result.
	SentimentFailed Sentiment = "Failed"
)

// Valid reports whether s is one of the three labels an analysis may produce.
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return true
	default:
		return false
	}
}

// ParseSentiment matches a label case-insensitively. SentimentFailed is not
// accepted.
func ParseSentiment(raw string) (Sentiment, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "positive":
		return SentimentPositive, true
	case "neutral":
		return SentimentNeutral, true
	case "negative":
		return SentimentNegative, true
	default:
		return "", false
	}
}

type AnalysisResult struct {
	Summary   string    `json:"summary"`
	Keywords  []string  `json:"keywords"`
	Sentiment Sentiment `json:"sentiment"`
}

// AnalysisRequest is the message handed from the submission path to the
// analysis workers.
type AnalysisRequest struct {
	DocumentID  string    `json:"document_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// AnalysisView is the read model exposed to the rest of the system. It carries
// status and results only; failure causes stay internal.
type AnalysisView struct {
	DocumentID string         `json:"document_id"`
	Status     AnalysisStatus `json:"status"`
	Summary    string         `json:"summary,omitempty"`
	Keywords   []string       `json:"keywords,omitempty"`
	Sentiment  Sentiment      `json:"sentiment,omitempty"`
	AnalyzedAt *time.Time     `json:"analyzed_at,omitempty"`
}

func NewAnalysisView(doc *Document) AnalysisView {
	view := AnalysisView{
		DocumentID: doc.ID,
		Status:     doc.AnalysisStatus,
		AnalyzedAt: doc.AnalyzedAt,
	}
	switch doc.AnalysisStatus {
	case AnalysisComplete:
		view.Summary = doc.AnalysisSummary
		view.Keywords = append([]string(nil), doc.AnalysisKeywords...)
		view.Sentiment = doc.AnalysisSentiment
	case AnalysisFailed:
		view.Sentiment = SentimentFailed
	}
	return view
}
