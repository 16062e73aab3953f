package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/billingkit/pkg/gateway"
	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// EventHandler handles one verified provider event.
type EventHandler interface {
	Handle(ctx context.Context, ev *gateway.Event) error
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ctx context.Context, ev *gateway.Event) error

func (f EventHandlerFunc) Handle(ctx context.Context, ev *gateway.Event) error {
	return f(ctx, ev)
}

// Verifier checks a webhook signature and decodes the event.
type Verifier interface {
	VerifyEvent(payload []byte, signatureHeader string) (*gateway.Event, error)
}

// Processor verifies webhook deliveries and dispatches them by event type.
type Processor struct {
	verifier Verifier
	handlers map[string]EventHandler
	fallback EventHandler
	dedup    Deduper
	metrics  *Metrics
	log      *slog.Logger
	now      func() time.Time
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithDeduper drops repeated deliveries of an event ID.
func WithDeduper(d Deduper) ProcessorOption {
	return func(p *Processor) {
		if d != nil {
			p.dedup = d
		}
	}
}

// WithHandler registers or replaces the handler for an event type.
func WithHandler(eventType string, h EventHandler) ProcessorOption {
	return func(p *Processor) {
		p.Register(eventType, h)
	}
}

// WithFallbackHandler replaces the handler for unregistered event types.
func WithFallbackHandler(h EventHandler) ProcessorOption {
	return func(p *Processor) {
		if h != nil {
			p.fallback = h
		}
	}
}

// NewProcessor wires the default handlers to svc. Signatures are verified by
// the service's gateway.
func NewProcessor(svc *Service, opts ...ProcessorOption) *Processor {
	if svc == nil {
		panic("billing: service is required")
	}
	p := &Processor{
		verifier: svc.gateway,
		handlers: svc.webhookHandlers(),
		dedup:    nopDeduper{},
		metrics:  svc.metrics,
		log:      svc.log.With(logger.Component("billing.webhook")),
		now:      svc.now,
	}
	p.fallback = EventHandlerFunc(p.ignore)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register sets the handler for eventType. It is not safe to call while
// events are being processed.
func (p *Processor) Register(eventType string, h EventHandler) {
	if eventType == "" || h == nil {
		return
	}
	p.handlers[eventType] = h
}

// Process handles one delivery. The only error returned is a signature
// failure; everything else is logged and acknowledged so the provider does
// not keep retrying an event that fails deterministically.
func (p *Processor) Process(ctx context.Context, payload []byte, signature string) error {
	ev, err := p.verifier.VerifyEvent(payload, signature)
	if err != nil {
		p.metrics.webhook("unverified", resultRejected, 0)
		p.log.WarnContext(ctx, "webhook signature rejected", logger.Error(err))
		if errors.Is(err, gateway.ErrInvalidSignature) {
			return err
		}
		return errors.Join(gateway.ErrInvalidSignature, err)
	}

	log := p.log.With(logger.EventID(ev.ID), logger.EventType(ev.Type))

	first, err := p.dedup.Claim(ctx, ev.ID)
	if err != nil {
		// Handlers are idempotent on their own; dedup is only a shortcut.
		log.WarnContext(ctx, "webhook dedup unavailable", logger.Error(err))
		first = true
	}
	if !first {
		p.metrics.webhook(ev.Type, resultDuplicate, 0)
		log.DebugContext(ctx, "duplicate webhook delivery dropped")
		return nil
	}

	h, known := p.handlers[ev.Type]
	if !known {
		h = p.fallback
	}

	start := p.now()
	err = h.Handle(ctx, ev)
	elapsed := p.now().Sub(start)

	if err != nil {
		p.metrics.webhook(ev.Type, resultError, elapsed)
		log.ErrorContext(ctx, "webhook handler failed", logger.Error(err), logger.Duration(elapsed))
		// Let a manual resend run the handler again.
		if rerr := p.dedup.Release(ctx, ev.ID); rerr != nil {
			log.WarnContext(ctx, "failed to release webhook claim", logger.Error(rerr))
		}
		return nil
	}

	if cerr := p.dedup.Commit(ctx, ev.ID); cerr != nil {
		log.WarnContext(ctx, "failed to commit webhook claim", logger.Error(cerr))
	}

	result := resultOK
	if !known {
		result = resultIgnored
	}
	p.metrics.webhook(ev.Type, result, elapsed)
	log.DebugContext(ctx, "webhook processed", logger.Duration(elapsed))
	return nil
}

func (p *Processor) ignore(ctx context.Context, ev *gateway.Event) error {
	p.log.InfoContext(ctx, "unhandled webhook event",
		logger.EventID(ev.ID), logger.EventType(ev.Type))
	return nil
}
