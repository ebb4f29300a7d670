package bootstrap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/thesis-analysis/internal/config"
	"github.com/kirillkom/thesis-analysis/internal/core/domain"
	"github.com/kirillkom/thesis-analysis/internal/infrastructure/queue/inproc"
)

func inprocConfig(t *testing.T, ollamaURL string) config.Config {
	t.Helper()
	return config.Config{
		StoreBackend:           "memory",
		BlobBackend:            "localfs",
		StoragePath:            t.TempDir(),
		QueueBackend:           "inproc",
		InprocBuffer:           4,
		InprocWorkers:          1,
		LockBackend:            "local",
		AnalyzerBackend:        "ollama",
		OllamaURL:              ollamaURL,
		OllamaModel:            "test-model",
		AnalysisTimeoutSeconds: 5,
		AnalysisBreakerEnabled: true,
	}
}

func TestSubmittedThesisIsAnalyzedEndToEnd(t *testing.T) {
	var (
		mu      sync.Mutex
		prompts []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		prompts = append(prompts, body.Prompt)
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"response": "Here is the analysis:\n```json\n{\"summary\":\"  Groundwater   recharge in arid basins. \",\"keywords\":[\"Groundwater\",\"groundwater\",\"recharge\"],\"sentiment\":\"positive\"}\n```",
		})
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := New(ctx, inprocConfig(t, server.URL))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()
	if !app.Inproc {
		t.Fatalf("expected in-process queue")
	}

	workersDone := make(chan error, 1)
	go func() { workersDone <- app.RunWorkers(ctx) }()

	doc, err := app.SubmitUC.Submit(ctx, domain.Submission{
		Filename: "thesis.txt",
		MimeType: "text/plain",
		Title:    "Recharge",
	}, strings.NewReader("Groundwater recharge estimates for three arid basins."))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if doc.AnalysisStatus != domain.AnalysisPending {
		t.Fatalf("expected pending after submit, got %s", doc.AnalysisStatus)
	}

	var view *domain.AnalysisView
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		view, err = app.QueryUC.GetAnalysis(ctx, doc.ID)
		if err != nil {
			t.Fatalf("GetAnalysis() error = %v", err)
		}
		if view.Status.Terminal() {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if view.Status != domain.AnalysisComplete {
		t.Fatalf("expected complete analysis, got %+v", view)
	}
	if view.Summary != "Groundwater recharge in arid basins." {
		t.Fatalf("unexpected summary %q", view.Summary)
	}
	if len(view.Keywords) != 2 || view.Sentiment != domain.SentimentPositive {
		t.Fatalf("unexpected result: %+v", view)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(prompts) != 1 || !strings.Contains(prompts[0], "three arid basins") {
		t.Fatalf("expected one prompt carrying the thesis text, got %v", prompts)
	}

	cancel()
	select {
	case err := <-workersDone:
		if err != nil {
			t.Fatalf("RunWorkers() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("workers did not stop")
	}
}

func TestAnalysisServiceOutageMarksDocumentFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx := context.Background()
	app, err := New(ctx, inprocConfig(t, server.URL))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	doc, err := app.SubmitUC.Submit(ctx, domain.Submission{Filename: "notes.md"}, strings.NewReader("# Notes"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if err := app.HandleAnalysisRequest(ctx, domain.AnalysisRequest{DocumentID: doc.ID, RequestedAt: time.Now()}); err != nil {
		t.Fatalf("HandleAnalysisRequest() error = %v", err)
	}

	view, err := app.QueryUC.GetAnalysis(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetAnalysis() error = %v", err)
	}
	if view.Status != domain.AnalysisFailed || view.Sentiment != domain.SentimentFailed || view.Summary != "" {
		t.Fatalf("unexpected failed view: %+v", view)
	}
}

func TestHandleAnalysisRequestUnknownDocument(t *testing.T) {
	app, err := New(context.Background(), inprocConfig(t, "http://127.0.0.1:1"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	err = app.HandleAnalysisRequest(context.Background(), domain.AnalysisRequest{DocumentID: "missing"})
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNewRejectsUnknownBackends(t *testing.T) {
	cases := map[string]func(*config.Config){
		"STORE_BACKEND":    func(c *config.Config) { c.StoreBackend = "cassandra" },
		"BLOB_BACKEND":     func(c *config.Config) { c.BlobBackend = "ftp" },
		"QUEUE_BACKEND":    func(c *config.Config) { c.QueueBackend = "kafka" },
		"LOCK_BACKEND":     func(c *config.Config) { c.LockBackend = "zookeeper" },
		"ANALYZER_BACKEND": func(c *config.Config) { c.AnalyzerBackend = "markov" },
	}
	for key, mutate := range cases {
		t.Run(key, func(t *testing.T) {
			cfg := inprocConfig(t, "http://127.0.0.1:1")
			mutate(&cfg)
			_, err := New(context.Background(), cfg)
			if err == nil || !strings.Contains(err.Error(), key) {
				t.Fatalf("expected %s error, got %v", key, err)
			}
		})
	}
}

func TestGeminiRequiresAPIKey(t *testing.T) {
	cfg := inprocConfig(t, "http://127.0.0.1:1")
	cfg.AnalyzerBackend = "gemini"
	if _, err := New(context.Background(), cfg); err == nil || !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Fatalf("expected missing key error, got %v", err)
	}
}

func TestSubmitWithCancelledRequestStillQueuesAnalysis(t *testing.T) {
	app, err := New(context.Background(), inprocConfig(t, "http://127.0.0.1:1"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	doc, err := app.SubmitUC.Submit(ctx, domain.Submission{Filename: "thesis.txt"}, strings.NewReader("body"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	queue, ok := app.Queue.(*inproc.Queue)
	if !ok {
		t.Fatalf("expected in-process queue, got %T", app.Queue)
	}
	if queue.Pending() != 1 {
		t.Fatalf("expected the request for %s to be queued, pending=%d", doc.ID, queue.Pending())
	}
}
