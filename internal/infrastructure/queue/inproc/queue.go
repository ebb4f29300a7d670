package inproc

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/thesis-analysis/internal/core/domain"
)

// Queue hands analysis requests to workers in the same process. Requests
// still buffered at shutdown are dropped; their records stay pending.
type Queue struct {
	requests chan domain.AnalysisRequest
	workers  int
}

func New(buffer, workers int) *Queue {
	if buffer <= 0 {
		buffer = 64
	}
	if workers <= 0 {
		workers = 2
	}
	return &Queue{
		requests: make(chan domain.AnalysisRequest, buffer),
		workers:  workers,
	}
}

func (q *Queue) RequestAnalysis(ctx context.Context, req domain.AnalysisRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.requests <- req:
		return nil
	default:
		return domain.WrapError(domain.ErrTemporary, "enqueue analysis", errors.New("analysis queue is full"))
	}
}

func (q *Queue) SubscribeAnalysisRequests(ctx context.Context, handler func(context.Context, domain.AnalysisRequest) error) error {
	runCtx := context.WithoutCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < q.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case req := <-q.requests:
					if err := handler(runCtx, req); err != nil {
						slog.Error("analysis_handler_error", "document_id", req.DocumentID, "error", err)
					}
				}
			}
		})
	}
	err := g.Wait()
	if dropped := len(q.requests); dropped > 0 {
		slog.Warn("analysis_requests_dropped", "count", dropped)
	}
	return err
}

func (q *Queue) Pending() int {
	return len(q.requests)
}
