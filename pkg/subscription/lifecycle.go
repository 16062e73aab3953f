package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrymomot/billingkit/pkg/statemachine"
)

// LifecycleEvent drives a status change.
type LifecycleEvent string

const (
	EventActivate      LifecycleEvent = "activate"
	EventBeginCheckout LifecycleEvent = "begin_checkout"
	EventFailPayment   LifecycleEvent = "fail_payment"
	EventCancel        LifecycleEvent = "cancel"
)

var allStatuses = []Status{StatusActive, StatusCanceled, StatusTrialing, StatusPastDue, StatusIncomplete}

var lifecycle = statemachine.NewBuilder[Status, LifecycleEvent]().
	From(allStatuses...).When(EventActivate).To(StatusActive).Add().
	From(allStatuses...).When(EventBeginCheckout).To(StatusIncomplete).
	WithGuard(notActivePaid).
	Add().
	From(StatusActive, StatusTrialing, StatusPastDue, StatusIncomplete).When(EventFailPayment).To(StatusPastDue).Add().
	From(StatusActive, StatusTrialing, StatusPastDue, StatusIncomplete).When(EventCancel).To(StatusCanceled).
	WithAction(clearProviderSubscription).
	Add().
	MustBuild()

// Transition applies a lifecycle event to sub in place.
// A canceled subscription cannot fall into past_due, and an active paid plan
// cannot restart checkout; both return ErrInvalidTransition.
func Transition(ctx context.Context, sub *Subscription, event LifecycleEvent) error {
	next, err := lifecycle.Fire(ctx, sub.Status, event, sub)
	if err != nil {
		if statemachine.IsNoTransitionAvailableError(err) || statemachine.IsTransitionRejectedError(err) {
			return errors.Join(ErrInvalidTransition, err)
		}
		return fmt.Errorf("subscription lifecycle: %w", err)
	}
	sub.Status = next
	return nil
}

// CanTransition reports whether event is accepted for sub.
func CanTransition(ctx context.Context, sub *Subscription, event LifecycleEvent) bool {
	return lifecycle.CanFire(ctx, sub.Status, event, sub)
}

func notActivePaid(_ context.Context, _ Status, _ LifecycleEvent, data any) bool {
	sub, ok := data.(*Subscription)
	return ok && !sub.IsActivePaid()
}

func clearProviderSubscription(_ context.Context, _, _ Status, _ LifecycleEvent, data any) error {
	if sub, ok := data.(*Subscription); ok {
		sub.SubscriptionID = ""
	}
	return nil
}
