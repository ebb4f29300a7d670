package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/thesis-analysis/internal/core/domain"
	"github.com/kirillkom/thesis-analysis/internal/infrastructure/resilience"
)

func TestRequestCodec(t *testing.T) {
	at := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	payload, err := encodeRequest(domain.AnalysisRequest{DocumentID: "doc-1", RequestedAt: at})
	if err != nil {
		t.Fatalf("encodeRequest() error = %v", err)
	}
	got, err := decodeRequest(payload)
	if err != nil {
		t.Fatalf("decodeRequest() error = %v", err)
	}
	if got.DocumentID != "doc-1" || !got.RequestedAt.Equal(at) {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestDecodeRequestAcceptsBareID(t *testing.T) {
	got, err := decodeRequest([]byte(" doc-7\n"))
	if err != nil || got.DocumentID != "doc-7" {
		t.Fatalf("decodeRequest() = %+v, %v", got, err)
	}
}

func TestDecodeRequestRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"", `{"requested_at":"2026-10-18T10:00:00Z"}`, `{"document_id":`} {
		if _, err := decodeRequest([]byte(raw)); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestRequestErrorKinds(t *testing.T) {
	cases := map[string]struct {
		err  error
		kind error
	}{
		"connection closed": {nats.ErrConnectionClosed, domain.ErrTemporary},
		"no servers":        {fmt.Errorf("dial: %w", nats.ErrNoServers), domain.ErrTemporary},
		"deadline":          {context.DeadlineExceeded, domain.ErrTemporary},
		"payload too large": {nats.ErrMaxPayload, domain.ErrInvalidInput},
		"bad subject":       {nats.ErrBadSubject, domain.ErrInvalidInput},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := requestError(tc.err)
			if !domain.IsKind(err, tc.kind) {
				t.Fatalf("expected %v, got %v", tc.kind, err)
			}
			if !errors.Is(err, tc.err) {
				t.Fatalf("cause lost: %v", err)
			}
		})
	}

	plain := errors.New("permissions violation")
	got := requestError(plain)
	if domain.IsKind(got, domain.ErrTemporary) || domain.IsKind(got, domain.ErrInvalidInput) {
		t.Fatalf("unknown error must keep no kind, got %v", got)
	}
	if !strings.HasPrefix(got.Error(), "request analysis") {
		t.Fatalf("expected op prefix, got %q", got)
	}
	if requestError(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}

func TestClassifyPublishError(t *testing.T) {
	if c := classifyPublishError(nats.ErrDisconnected); !c.Retryable || !c.RecordFailure {
		t.Fatalf("disconnect must be retried and counted, got %+v", c)
	}
	if c := classifyPublishError(nats.ErrMaxPayload); c.Retryable || c.RecordFailure {
		t.Fatalf("oversized payload must not trip the breaker, got %+v", c)
	}
	if c := classifyPublishError(context.Canceled); c.Retryable || c.RecordFailure {
		t.Fatalf("cancellation must not trip the breaker, got %+v", c)
	}
	if c := classifyPublishError(errors.New("boom")); c.Retryable || !c.RecordFailure {
		t.Fatalf("unknown errors are counted but not retried, got %+v", c)
	}
}

func TestRequestAnalysisRejectsRequestWithoutID(t *testing.T) {
	q := &Queue{subject: "analysis.requests"}
	err := q.RequestAnalysis(context.Background(), domain.AnalysisRequest{DocumentID: " "})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestRequestAnalysisWithoutConnectionIsTemporary(t *testing.T) {
	cfg := resilience.DefaultConfig()
	cfg.RetryMaxAttempts = 1
	for name, q := range map[string]*Queue{
		"direct":   {subject: "analysis.requests"},
		"executor": {subject: "analysis.requests", executor: resilience.NewExecutor(cfg)},
	} {
		t.Run(name, func(t *testing.T) {
			err := q.RequestAnalysis(context.Background(), domain.AnalysisRequest{DocumentID: "doc-1"})
			if !domain.IsKind(err, domain.ErrTemporary) || !errors.Is(err, nats.ErrInvalidConnection) {
				t.Fatalf("expected temporary invalid-connection error, got %v", err)
			}
		})
	}
}

func TestDeliverRunsRequestsAfterShutdownStarts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var (
		mu   sync.Mutex
		seen []string
	)
	var g errgroup.Group
	cb := deliver(context.WithoutCancel(ctx), &g, func(runCtx context.Context, req domain.AnalysisRequest) error {
		if runCtx.Err() != nil {
			t.Errorf("handler context must stay live, got %v", runCtx.Err())
		}
		mu.Lock()
		seen = append(seen, req.DocumentID)
		mu.Unlock()
		return nil
	})

	cb(&nats.Msg{Data: []byte(`{"document_id":"doc-3"}`)})
	cb(&nats.Msg{Data: []byte(`{"document_id":`)})
	cb(&nats.Msg{Data: []byte("doc-4")})
	if err := g.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("expected both well-formed requests to run, got %v", seen)
	}
}
