package bootstrap

import (
	"context"

	"github.com/kirillkom/tanya-lalin/internal/core/domain"
	"github.com/kirillkom/tanya-lalin/internal/core/ports"
)

type publishFailureRecorder interface {
	RecordTurnPublishFailure()
}

// countingPublisher counts failed publishes; the chat use case only logs them.
type countingPublisher struct {
	next     ports.TurnPublisher
	failures publishFailureRecorder
}

func (p *countingPublisher) PublishTurnCompleted(ctx context.Context, event domain.TurnCompleted) error {
	err := p.next.PublishTurnCompleted(ctx, event)
	if err != nil && p.failures != nil {
		p.failures.RecordTurnPublishFailure()
	}
	return err
}
