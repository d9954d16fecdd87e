package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/jien0404/zalo-legal-chatbot/internal/core/domain"
	"github.com/jien0404/zalo-legal-chatbot/internal/core/ports"
	"github.com/jien0404/zalo-legal-chatbot/internal/infrastructure/resilience"
)

const requestIDHeader = "X-Request-Id"

// RetrieveMessage is the request body published on the retrieval subject.
type RetrieveMessage struct {
	Query            string   `json:"query"`
	RetrievalBreadth int      `json:"retrieval_breadth,omitempty"`
	RerankBreadth    int      `json:"rerank_breadth,omitempty"`
	MinScore         *float64 `json:"min_score,omitempty"`
}

type GateMessage struct {
	Outcome   string  `json:"outcome"`
	Threshold float64 `json:"threshold"`
	Accepted  int     `json:"accepted"`
}

type ErrorMessage struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ReplyMessage carries either chunks with a gate decision or an error kind.
type ReplyMessage struct {
	RequestID string               `json:"request_id,omitempty"`
	Chunks    []domain.ScoredChunk `json:"chunks"`
	Gate      *GateMessage         `json:"gate,omitempty"`
	Error     *ErrorMessage        `json:"error,omitempty"`
}

type RequestRecorder interface {
	StartRequest()
	FinishRequest(service string, duration time.Duration, status string)
}

type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	Name                 string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	name := options.Name
	if name == "" {
		name = "legal-retrieval"
	}
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

	conn, err := nats.Connect(
		url,
		nats.Name(name),
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
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// Request publishes one retrieval request and waits for the reply. A reply
// carrying an error is turned back into the matching domain error kind.
func (q *Queue) Request(ctx context.Context, req RetrieveMessage) (ReplyMessage, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return ReplyMessage{}, fmt.Errorf("marshal retrieve request: %w", err)
	}
	msg := nats.NewMsg(q.subject)
	msg.Data = payload
	msg.Header.Set(requestIDHeader, uuid.NewString())

	var reply *nats.Msg
	call := func(callCtx context.Context) error {
		var reqErr error
		reply, reqErr = q.conn.RequestMsgWithContext(callCtx, msg)
		if reqErr != nil {
			return fmt.Errorf("nats request: %w", reqErr)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats_request", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return ReplyMessage{}, wrapTemporaryIfNeeded(err)
	}

	var out ReplyMessage
	if err := json.Unmarshal(reply.Data, &out); err != nil {
		return ReplyMessage{}, fmt.Errorf("decode retrieve reply: %w", err)
	}
	if out.Error != nil {
		return out, errorFromReply(out.Error)
	}
	return out, nil
}

type ServeOptions struct {
	QueueGroup     string
	RequestTimeout time.Duration
	DrainTimeout   time.Duration
	Service        string
	Recorder       RequestRecorder
}

// Serve answers retrieval requests until ctx is done. It then drains the
// subscription: requests already being answered run to completion on their
// own deadline, and requests still buffered get a temporary error reply.
// Serve returns once the drain has finished or DrainTimeout has passed.
func (q *Queue) Serve(ctx context.Context, answerer ports.Answerer, options ServeOptions) error {
	group := options.QueueGroup
	if group == "" {
		group = "retrievers"
	}
	service := options.Service
	if service == "" {
		service = "worker"
	}
	drainTimeout := options.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = 10 * time.Second
	}

	sub, err := q.conn.QueueSubscribe(q.subject, group, func(msg *nats.Msg) {
		if options.Recorder != nil {
			options.Recorder.StartRequest()
		}
		started := time.Now()

		requestID := ""
		if msg.Header != nil {
			requestID = msg.Header.Get(requestIDHeader)
		}
		reply := handleRequest(ctx, answerer, requestID, msg.Data, options.RequestTimeout)

		status := "ok"
		if reply.Error != nil {
			status = reply.Error.Kind
		}
		if options.Recorder != nil {
			options.Recorder.FinishRequest(service, time.Since(started), status)
		}

		if msg.Reply == "" {
			return
		}
		body, err := json.Marshal(reply)
		if err != nil {
			slog.Error("nats_reply_encode_failed", "request_id", reply.RequestID, "error", err)
			return
		}
		if err := msg.Respond(body); err != nil {
			slog.Warn("nats_reply_failed", "request_id", reply.RequestID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	slog.Info("nats_responder_started", "subject", q.subject, "queue_group", group)

	<-ctx.Done()
	closed := sub.StatusChanged(nats.SubscriptionClosed)
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	timer := time.NewTimer(drainTimeout)
	defer timer.Stop()
	select {
	case <-closed:
	case <-timer.C:
		return fmt.Errorf("nats drain subscription: not finished after %s", drainTimeout)
	}
	slog.Info("nats_responder_drained", "subject", q.subject)
	return nil
}

// handleRequest answers one message. serveCtx only gates admission: once it
// is done new messages are refused as temporary, while admitted ones keep
// running under a context that outlives it, bounded by timeout.
func handleRequest(
	serveCtx context.Context,
	answerer ports.Answerer,
	requestID string,
	data []byte,
	timeout time.Duration,
) ReplyMessage {
	if serveCtx.Err() != nil {
		if requestID == "" {
			requestID = uuid.NewString()
		}
		return ReplyMessage{
			RequestID: requestID,
			Chunks:    []domain.ScoredChunk{},
			Error: &ErrorMessage{
				Kind:    domain.KindOf(domain.ErrTemporary),
				Message: "worker is shutting down",
			},
		}
	}

	base := context.WithoutCancel(serveCtx)
	var (
		handlerCtx context.Context
		cancel     context.CancelFunc
	)
	if timeout > 0 {
		handlerCtx, cancel = context.WithTimeout(base, timeout)
	} else {
		handlerCtx, cancel = context.WithCancel(base)
	}
	defer cancel()
	return Respond(handlerCtx, answerer, requestID, data)
}

// Respond decodes one request, runs it and builds the reply. It never fails:
// every error becomes an error reply.
func Respond(ctx context.Context, answerer ports.Answerer, requestID string, data []byte) ReplyMessage {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	reply := ReplyMessage{RequestID: requestID, Chunks: []domain.ScoredChunk{}}

	var req RetrieveMessage
	if err := json.Unmarshal(data, &req); err != nil {
		reply.Error = &ErrorMessage{Kind: domain.KindOf(domain.ErrInvalidInput), Message: "request body must be a JSON object"}
		return reply
	}

	answer, err := answerer.Answer(ctx, domain.RetrieveRequest{
		Query:            req.Query,
		RetrievalBreadth: req.RetrievalBreadth,
		RerankBreadth:    req.RerankBreadth,
	}, req.MinScore)
	if err != nil {
		kind := domain.KindOf(err)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			kind = domain.KindOf(domain.ErrTemporary)
		}
		slog.Warn("nats_retrieve_failed", "request_id", requestID, "kind", kind, "error", err)
		reply.Error = &ErrorMessage{Kind: kind, Message: err.Error()}
		return reply
	}

	reply.Chunks = answer.Chunks
	reply.Gate = &GateMessage{
		Outcome:   string(answer.Gate.Outcome),
		Threshold: answer.Gate.Threshold,
		Accepted:  len(answer.Gate.Accepted),
	}
	return reply
}
