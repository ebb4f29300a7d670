package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/thesis-analysis/internal/core/domain"
	"github.com/kirillkom/thesis-analysis/internal/infrastructure/resilience"
)

const (
	queueGroup = "analysis-workers"
	requestOp  = "request analysis"

	drainTimeout = 30 * time.Second
)

type Queue struct {
	conn        *nats.Conn
	subject     string
	executor    *resilience.Executor
	concurrency int
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	// Concurrency bounds in-flight handler calls per subscriber.
	Concurrency int
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	concurrency := options.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	conn, err := nats.Connect(
		url,
		nats.Name("thesis-analysis"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:        conn,
		subject:     subject,
		executor:    options.ResilienceExecutor,
		concurrency: concurrency,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) RequestAnalysis(ctx context.Context, req domain.AnalysisRequest) error {
	payload, err := encodeRequest(req)
	if err != nil {
		return domain.WrapError(domain.ErrInvalidInput, requestOp, err)
	}
	call := func(_ context.Context) error {
		return q.conn.Publish(q.subject, payload)
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyPublishError)
	} else {
		err = call(ctx)
	}
	return requestError(err)
}

// classifyPublishError lets connection trouble trip the breaker. A payload the
// server refuses is the request's fault and leaves the breaker alone.
func classifyPublishError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case errors.Is(err, nats.ErrMaxPayload), errors.Is(err, nats.ErrBadSubject):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err), isConnectionError(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

func isConnectionError(err error) bool {
	return errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrConnectionDraining) ||
		errors.Is(err, nats.ErrInvalidConnection) ||
		errors.Is(err, nats.ErrDisconnected)
}

// requestError maps a publish failure onto the domain kinds callers branch on.
func requestError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, nats.ErrMaxPayload), errors.Is(err, nats.ErrBadSubject):
		return domain.WrapError(domain.ErrInvalidInput, requestOp, err)
	case errors.Is(err, context.DeadlineExceeded), classifyPublishError(err).Retryable:
		return domain.WrapError(domain.ErrTemporary, requestOp, err)
	default:
		return fmt.Errorf("%s: %w", requestOp, err)
	}
}

// SubscribeAnalysisRequests blocks until ctx ends, then drains the
// subscription. Requests delivered during the drain still run; the call
// returns once the subscription is closed and every handler has finished.
func (q *Queue) SubscribeAnalysisRequests(ctx context.Context, handler func(context.Context, domain.AnalysisRequest) error) error {
	var g errgroup.Group
	g.SetLimit(q.concurrency)
	// Each run is bounded by its own timeout.
	runCtx := context.WithoutCancel(ctx)

	sub, err := q.conn.QueueSubscribe(q.subject, queueGroup, deliver(runCtx, &g, handler))
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	closed := sub.StatusChanged(nats.SubscriptionClosed)

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	drainErr := sub.Drain()
	if drainErr == nil {
		select {
		case <-closed:
		case <-time.After(drainTimeout):
			slog.Warn("nats_drain_timeout", "subject", q.subject, "timeout", drainTimeout)
			_ = sub.Unsubscribe()
		}
	}
	_ = g.Wait()
	if drainErr != nil {
		return fmt.Errorf("nats drain subscription: %w", drainErr)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

// deliver decodes each message and hands it to handler on g. It does not look
// at the subscriber's context: once a message is delivered it is processed.
func deliver(runCtx context.Context, g *errgroup.Group, handler func(context.Context, domain.AnalysisRequest) error) nats.MsgHandler {
	return func(msg *nats.Msg) {
		req, err := decodeRequest(msg.Data)
		if err != nil {
			slog.Error("analysis_request_malformed", "error", err)
			return
		}
		g.Go(func() error {
			if err := handler(runCtx, req); err != nil {
				slog.Error("analysis_handler_error", "document_id", req.DocumentID, "error", err)
			}
			return nil
		})
	}
}

func encodeRequest(req domain.AnalysisRequest) ([]byte, error) {
	if strings.TrimSpace(req.DocumentID) == "" {
		return nil, errors.New("analysis request without document id")
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal analysis request: %w", err)
	}
	return payload, nil
}

// decodeRequest also accepts a bare document id.
func decodeRequest(data []byte) (domain.AnalysisRequest, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return domain.AnalysisRequest{}, errors.New("empty analysis request")
	}
	if !strings.HasPrefix(trimmed, "{") {
		return domain.AnalysisRequest{DocumentID: trimmed}, nil
	}
	var req domain.AnalysisRequest
	if err := json.Unmarshal([]byte(trimmed), &req); err != nil {
		return domain.AnalysisRequest{}, fmt.Errorf("unmarshal analysis request: %w", err)
	}
	if req.DocumentID == "" {
		return domain.AnalysisRequest{}, errors.New("analysis request without document id")
	}
	return req, nil
}
