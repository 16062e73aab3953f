package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/gateway"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
	"github.com/dmitrymomot/billingkit/pkg/validator"
)

// SubscribeRequest is the body of a subscribe attempt.
type SubscribeRequest struct {
	Plan            string `json:"plan"`
	PaymentMethodID string `json:"paymentMethodId,omitempty"`
	Email           string `json:"email,omitempty"`
}

// Checkout steps reported in SubscribeResult.Step.
const (
	StepCollectPaymentMethod = "collect_payment_method"
	StepActivated            = "activated"
	StepSubscriptionCreated  = "subscription_created"
	StepPaymentCheckout      = "payment_checkout"
)

// SubscribeResult is either a checkout URL to redirect to, or the outcome of
// an immediate activation or subscription creation.
type SubscribeResult struct {
	Step           string              `json:"step"`
	Plan           subscription.Plan   `json:"plan"`
	Status         subscription.Status `json:"status,omitempty"`
	CheckoutURL    string              `json:"checkoutUrl,omitempty"`
	SessionID      string              `json:"sessionId,omitempty"`
	SubscriptionID string              `json:"subscriptionId,omitempty"`
}

// enterprisePeriod is the term bought by the one-time Enterprise payment.
const enterprisePeriod = 365 * 24 * time.Hour

var planNames = []string{
	string(subscription.PlanFree),
	string(subscription.PlanPro),
	string(subscription.PlanEnterprise),
}

// Subscribe runs one step of the checkout flow for tenantID.
//
// Without a payment method it returns a setup checkout URL. With one, Free is
// activated at once, Pro gets a provider subscription in status incomplete,
// and Enterprise gets a one-time payment checkout URL. Activation of paid
// plans is confirmed by webhook.
func (s *Service) Subscribe(ctx context.Context, tenantID uuid.UUID, req SubscribeRequest) (*SubscribeResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	plan, err := validateSubscribe(req)
	if err != nil {
		return nil, err
	}

	t, err := s.store.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	// Changing plans goes through cancel first so a tenant is never billed twice.
	if !subscription.CanTransition(ctx, &t.Subscription, subscription.EventBeginCheckout) {
		s.metrics.checkout(plan.String(), resultRejected)
		return nil, ErrActiveSubscription
	}
	if req.PaymentMethodID == "" && t.Subscription.DefaultPaymentMethodID != "" {
		s.metrics.checkout(plan.String(), resultRejected)
		return nil, ErrPaymentMethodRequired
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		email = billingEmail(t)
	}
	if email == "" {
		return nil, ErrBillingEmailRequired
	}

	info, err := s.catalog.Lookup(plan)
	if err != nil {
		return nil, errors.Join(ErrInvalidPlan, err)
	}

	customerID, err := s.ensureCustomer(ctx, t, email)
	if err != nil {
		return nil, err
	}

	if req.PaymentMethodID == "" {
		return s.collectPaymentMethod(ctx, t, plan, customerID, email)
	}

	if err := s.bindPaymentMethod(ctx, t, customerID, req.PaymentMethodID, email); err != nil {
		s.metrics.checkout(plan.String(), resultRejected)
		return nil, err
	}

	switch plan {
	case subscription.PlanFree:
		return s.activateFree(ctx, t)
	case subscription.PlanEnterprise:
		return s.enterpriseCheckout(ctx, t, info, customerID)
	default:
		return s.createRecurring(ctx, t, info, customerID, req.PaymentMethodID)
	}
}

func validateSubscribe(req SubscribeRequest) (subscription.Plan, error) {
	rules := []validator.Rule{
		validator.Required("plan", req.Plan),
		validator.InListCaseInsensitive("plan", strings.TrimSpace(req.Plan), planNames),
	}
	if err := validator.Apply(rules...); err != nil {
		return "", errors.Join(ErrInvalidPlan, err)
	}
	if req.Email != "" {
		if err := validator.Apply(validator.ValidEmail("email", strings.TrimSpace(req.Email))); err != nil {
			return "", err
		}
	}
	plan, err := subscription.ParsePlan(req.Plan)
	if err != nil {
		return "", errors.Join(ErrInvalidPlan, err)
	}
	return plan, nil
}

// ensureCustomer returns the provider customer for t, creating one when the
// tenant has none or the stored one was deleted at the provider.
func (s *Service) ensureCustomer(ctx context.Context, t *subscription.Tenant, email string) (string, error) {
	stale := t.Subscription.CustomerID
	if stale != "" {
		c, err := s.gateway.GetCustomer(ctx, stale)
		switch {
		case err == nil && !c.Deleted:
			if t.Subscription.BillingEmail != email {
				if _, err := s.store.Update(ctx, t.ID, func(sub *subscription.Subscription) error {
					sub.BillingEmail = email
					return nil
				}); err != nil {
					return "", err
				}
			}
			return c.ID, nil
		case err != nil && !errors.Is(err, gateway.ErrNotFound):
			return "", err
		}
		s.log.InfoContext(ctx, "provider customer missing, recreating",
			logger.TenantID(t.ID), logger.CustomerID(stale))
	}

	c, err := s.gateway.CreateCustomer(ctx, gateway.CustomerParams{
		Email:          email,
		Name:           t.Name,
		TenantID:       t.ID.String(),
		IdempotencyKey: gateway.IdempotencyKey("customer", t.ID.String(), email, stale),
	})
	if err != nil {
		return "", err
	}

	if _, err := s.store.Update(ctx, t.ID, func(sub *subscription.Subscription) error {
		if sub.CustomerID != stale {
			// A concurrent attempt already replaced the customer.
			return nil
		}
		sub.CustomerID = c.ID
		sub.BillingEmail = email
		if stale != "" {
			sub.DefaultPaymentMethodID = ""
		}
		return nil
	}); err != nil {
		return "", err
	}
	t.Subscription.CustomerID = c.ID
	return c.ID, nil
}

func (s *Service) collectPaymentMethod(ctx context.Context, t *subscription.Tenant, plan subscription.Plan, customerID, email string) (*SubscribeResult, error) {
	sess, err := s.gateway.CreateCheckoutSession(ctx, gateway.CheckoutSessionParams{
		Mode:       gateway.CheckoutModeSetup,
		CustomerID: customerID,
		SuccessURL: s.successURL(),
		CancelURL:  s.cancelURL(),
		Metadata: map[string]string{
			gateway.MetadataTenantID: t.ID.String(),
			gateway.MetadataPlan:     plan.String(),
		},
		IdempotencyKey: checkoutKey("checkout-setup", t),
	})
	if err != nil {
		return nil, err
	}

	s.metrics.checkout(plan.String(), StepCollectPaymentMethod)
	s.log.InfoContext(ctx, "setup checkout created",
		logger.TenantID(t.ID), logger.CustomerID(customerID), logger.Plan(plan.String()))

	return &SubscribeResult{
		Step:        StepCollectPaymentMethod,
		Plan:        plan,
		CheckoutURL: sess.URL,
		SessionID:   sess.ID,
	}, nil
}

// bindPaymentMethod attaches pmID to the customer and makes it the default.
func (s *Service) bindPaymentMethod(ctx context.Context, t *subscription.Tenant, customerID, pmID, email string) error {
	pm, err := s.gateway.GetPaymentMethod(ctx, pmID)
	if err != nil {
		return err
	}
	if pm.BillingEmail != "" && !strings.EqualFold(pm.BillingEmail, email) {
		return ErrEmailMismatch
	}
	return s.attachDefault(ctx, t, customerID, pm)
}

func (s *Service) attachDefault(ctx context.Context, t *subscription.Tenant, customerID string, pm *gateway.PaymentMethod) error {
	pmID := pm.ID
	switch pm.CustomerID {
	case "":
		if err := s.gateway.AttachPaymentMethod(ctx, pmID, customerID); err != nil {
			return err
		}
	case customerID:
	default:
		return ErrPaymentMethodOwned
	}

	if err := s.gateway.SetDefaultPaymentMethod(ctx, customerID, pmID); err != nil {
		return err
	}

	_, err := s.store.Update(ctx, t.ID, func(sub *subscription.Subscription) error {
		if sub.DefaultPaymentMethodID == pmID {
			return subscription.ErrSkip
		}
		sub.DefaultPaymentMethodID = pmID
		return nil
	})
	return err
}

func (s *Service) activateFree(ctx context.Context, t *subscription.Tenant) (*SubscribeResult, error) {
	staleSub := t.Subscription.SubscriptionID

	updated, err := s.store.Update(ctx, t.ID, func(sub *subscription.Subscription) error {
		if err := subscription.Transition(ctx, sub, subscription.EventActivate); err != nil {
			return err
		}
		sub.Plan = subscription.PlanFree
		sub.SubscriptionID = ""
		sub.PaymentIntentID = ""
		sub.CheckoutSessionID = ""
		sub.AmountPaid = 0
		sub.CurrentPeriodStart = nil
		sub.CurrentPeriodEnd = nil
		startEpisode(sub)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The local record no longer points at the old subscription, so its
	// deletion webhook resolves to nobody and triggers no refund.
	s.cancelProviderSubscription(ctx, t.ID, staleSub)

	s.metrics.checkout(subscription.PlanFree.String(), StepActivated)
	s.notify(ctx, updated, Notification{
		Event: NotifyPlanActivated,
		Plan:  subscription.PlanFree.String(),
	})

	return &SubscribeResult{
		Step:   StepActivated,
		Plan:   subscription.PlanFree,
		Status: updated.Subscription.Status,
	}, nil
}

func (s *Service) enterpriseCheckout(ctx context.Context, t *subscription.Tenant, info subscription.PlanInfo, customerID string) (*SubscribeResult, error) {
	sess, err := s.gateway.CreateCheckoutSession(ctx, gateway.CheckoutSessionParams{
		Mode:       gateway.CheckoutModePayment,
		CustomerID: customerID,
		PriceID:    info.PriceID,
		SuccessURL: s.successURL(),
		CancelURL:  s.cancelURL(),
		Metadata: map[string]string{
			gateway.MetadataTenantID: t.ID.String(),
			gateway.MetadataPlan:     info.Plan.String(),
		},
		IdempotencyKey: checkoutKey("checkout-payment", t),
	})
	if err != nil {
		return nil, err
	}

	staleSub := t.Subscription.SubscriptionID
	if _, err := s.store.Update(ctx, t.ID, func(sub *subscription.Subscription) error {
		sub.CheckoutSessionID = sess.ID
		sub.SubscriptionID = ""
		return nil
	}); err != nil {
		return nil, err
	}
	s.cancelProviderSubscription(ctx, t.ID, staleSub)

	s.metrics.checkout(info.Plan.String(), StepPaymentCheckout)
	s.log.InfoContext(ctx, "payment checkout created",
		logger.TenantID(t.ID), logger.Plan(info.Plan.String()))

	return &SubscribeResult{
		Step:        StepPaymentCheckout,
		Plan:        info.Plan,
		Status:      t.Subscription.Status,
		CheckoutURL: sess.URL,
		SessionID:   sess.ID,
	}, nil
}

// createRecurring replaces any prior provider subscription with a new one.
// The tenant stays incomplete until the first invoice is paid.
func (s *Service) createRecurring(ctx context.Context, t *subscription.Tenant, info subscription.PlanInfo, customerID, pmID string) (*SubscribeResult, error) {
	staleSub := t.Subscription.SubscriptionID

	// Detach the old subscription before cancelling it at the provider.
	if _, err := s.store.Update(ctx, t.ID, func(sub *subscription.Subscription) error {
		if err := subscription.Transition(ctx, sub, subscription.EventBeginCheckout); err != nil {
			return errors.Join(ErrActiveSubscription, err)
		}
		sub.SubscriptionID = ""
		return nil
	}); err != nil {
		return nil, err
	}
	s.cancelProviderSubscription(ctx, t.ID, staleSub)

	created, err := s.gateway.CreateSubscription(ctx, gateway.SubscriptionParams{
		CustomerID:      customerID,
		PriceID:         info.PriceID,
		PaymentMethodID: pmID,
		Metadata: map[string]string{
			gateway.MetadataTenantID: t.ID.String(),
			gateway.MetadataPlan:     info.Plan.String(),
		},
		// Scoped to the version read before the detach above. Every attempt
		// bumps the version, so a later subscribe never replays a subscription
		// this one just cancelled.
		IdempotencyKey: gateway.IdempotencyKey("subscribe",
			checkoutKey("subscription", t), info.PriceID, pmID),
	})
	if err != nil {
		s.restoreStatus(ctx, t)
		return nil, err
	}

	updated, err := s.store.Update(ctx, t.ID, func(sub *subscription.Subscription) error {
		// The first invoice webhook may have confirmed the subscription already.
		if sub.SubscriptionID == created.ID {
			return subscription.ErrSkip
		}
		startEpisode(sub)
		sub.Plan = info.Plan
		sub.SubscriptionID = created.ID
		sub.Status = subscription.StatusIncomplete
		sub.PaymentIntentID = ""
		sub.DefaultPaymentMethodID = pmID
		sub.CurrentPeriodStart = timePtr(created.CurrentPeriodStart)
		sub.CurrentPeriodEnd = timePtr(created.CurrentPeriodEnd)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.checkout(info.Plan.String(), StepSubscriptionCreated)
	s.log.InfoContext(ctx, "provider subscription created",
		logger.TenantID(t.ID), logger.SubscriptionID(created.ID), logger.Plan(info.Plan.String()))

	return &SubscribeResult{
		Step:           StepSubscriptionCreated,
		Plan:           info.Plan,
		Status:         updated.Subscription.Status,
		SubscriptionID: created.ID,
	}, nil
}

// restoreStatus undoes begin_checkout after the provider refused to create
// the subscription, unless something else has moved the tenant on since.
func (s *Service) restoreStatus(ctx context.Context, t *subscription.Tenant) {
	prev := t.Subscription.Status
	_, err := s.store.Update(ctx, t.ID, func(sub *subscription.Subscription) error {
		if sub.Status != subscription.StatusIncomplete || sub.SubscriptionID != "" {
			return subscription.ErrSkip
		}
		sub.Status = prev
		return nil
	})
	if err != nil {
		s.log.ErrorContext(ctx, "failed to restore subscription status",
			logger.TenantID(t.ID), logger.Error(err))
	}
}

// cancelProviderSubscription is best effort: the caller has already moved
// local state away from subID.
func (s *Service) cancelProviderSubscription(ctx context.Context, tenantID uuid.UUID, subID string) {
	if subID == "" {
		return
	}
	if _, err := s.gateway.CancelSubscription(ctx, subID); err != nil && !errors.Is(err, gateway.ErrNotFound) {
		s.log.ErrorContext(ctx, "failed to cancel provider subscription",
			logger.TenantID(tenantID), logger.SubscriptionID(subID), logger.Error(err))
	}
}

// startEpisode forgets the previous cancellation so the next one can refund.
func startEpisode(sub *subscription.Subscription) {
	sub.LastRefund = nil
	sub.CancelledAt = nil
}

func (s *Service) successURL() string {
	return s.baseURL + "/billing/stripe-success?session_id={CHECKOUT_SESSION_ID}"
}

func (s *Service) cancelURL() string {
	return s.baseURL + "/billing/stripe-cancel"
}

// checkoutKey scopes provider idempotency to one tenant version, so a retried
// request reuses the provider object while a later attempt gets a new one.
func checkoutKey(op string, t *subscription.Tenant) string {
	return fmt.Sprintf("%s:%s:%d", op, t.ID, t.Version)
}
