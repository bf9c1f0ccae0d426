package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kampus-akademi/backend/internal/notify"
	"github.com/kampus-akademi/backend/pkg/queue"
)

// Sender delivers one email.
type Sender interface {
	Send(ctx context.Context, m notify.Message) error
}

// LogUpdater records delivery outcomes.
type LogUpdater interface {
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// JobQueue is the queue side the processor consumes.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) (bool, error)
}

// EmailProcessor processes email jobs: send through the provider, then update the email log.
type EmailProcessor struct {
	sender  Sender
	logs    LogUpdater
	queue   JobQueue
	backoff time.Duration
	logger  *zap.Logger
}

// NewEmailProcessor creates an email job processor.
func NewEmailProcessor(sender Sender, logs LogUpdater, q JobQueue, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailProcessor{sender: sender, logs: logs, queue: q, backoff: queue.RetryBackoff, logger: logger}
}

// errPermanent marks failures that retrying cannot fix.
var errPermanent = errors.New("permanent")

// Process executes one email job.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeEmail {
		return fmt.Errorf("%w: unknown job type: %s", errPermanent, job.Type)
	}
	var payload queue.EmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("%w: unmarshal payload: %v", errPermanent, err)
	}

	err := p.sender.Send(ctx, notify.Message{
		To:      payload.RecipientEmail,
		ToName:  payload.RecipientName,
		ReplyTo: payload.ReplyTo,
		Subject: payload.Subject,
		HTML:    payload.BodyHTML,
	})
	if errors.Is(err, notify.ErrDisabled) {
		p.markFailed(ctx, payload.EmailLogID, err.Error())
		return nil
	}
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}

	if err := p.logs.MarkSent(ctx, payload.EmailLogID); err != nil {
		p.logger.Error("mark email sent failed", zap.Error(err), zap.String("email_log_id", payload.EmailLogID.String()))
	}
	p.logger.Info("email sent", zap.String("email_log_id", payload.EmailLogID.String()), zap.String("email_type", payload.EmailType))
	return nil
}

// handle processes job and retries it on failure. It reports whether the job failed.
func (p *EmailProcessor) handle(ctx context.Context, job *queue.Job) bool {
	p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	err := p.Process(ctx, job)
	if err == nil {
		return false
	}
	p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
	if errors.Is(err, errPermanent) {
		return true
	}
	dead, reErr := p.queue.Retry(ctx, job)
	if reErr != nil {
		p.logger.Error("retry enqueue failed", zap.Error(reErr))
		return true
	}
	if dead {
		var payload queue.EmailPayload
		if json.Unmarshal(job.Payload, &payload) == nil {
			p.markFailed(ctx, payload.EmailLogID, err.Error())
		}
	}
	return true
}

func (p *EmailProcessor) markFailed(ctx context.Context, id uuid.UUID, reason string) {
	if err := p.logs.MarkFailed(ctx, id, reason); err != nil {
		p.logger.Error("mark email failed", zap.Error(err), zap.String("email_log_id", id.String()))
	}
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *EmailProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("email worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}
		if p.handle(ctx, job) {
			p.sleep(ctx)
		}
	}
}

func (p *EmailProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
