package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/jien0404/zalo-legal-chatbot/internal/core/domain"
	"github.com/jien0404/zalo-legal-chatbot/internal/infrastructure/resilience"
)

func classifyNATSError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) {
		return resilience.ErrorClassification{
			Transient:     false,
			RecordFailure: false,
		}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{
			Transient:     true,
			RecordFailure: true,
		}
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrNoResponders) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrDisconnected) {
		return resilience.ErrorClassification{
			Transient:     true,
			RecordFailure: true,
		}
	}

	return resilience.ErrorClassification{
		Transient:     false,
		RecordFailure: true,
	}
}

func wrapTemporaryIfNeeded(err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	class := classifyNATSError(err)
	if class.Transient || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, "nats request", err)
	}
	return err
}

var replyKinds = map[string]error{
	"invalid_input":     domain.ErrInvalidInput,
	"unauthorized":      domain.ErrUnauthorized,
	"index_unavailable": domain.ErrIndexUnavailable,
	"model_unavailable": domain.ErrModelUnavailable,
	"corpus_integrity":  domain.ErrCorpusIntegrity,
	"temporary":         domain.ErrTemporary,
}

func errorFromReply(reply *ErrorMessage) error {
	remote := errors.New(reply.Message)
	if kind, ok := replyKinds[reply.Kind]; ok {
		return domain.WrapError(kind, "remote retrieve", remote)
	}
	return domain.WrapError(errors.New(reply.Kind), "remote retrieve", remote)
}
