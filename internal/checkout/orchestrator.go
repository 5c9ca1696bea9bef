package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/gateway"
	"github.com/rs/zerolog"
)

const (
	DefaultRefetchDelay = 2 * time.Second
	defaultTimeout      = 30 * time.Second
)

type Gateway interface {
	Checkout(ctx context.Context, input domain.CheckoutInput) (*gateway.CheckoutPayload, error)
}

type CartReconciler interface {
	Reconcile(ctx context.Context) error
}

type Ledger interface {
	Record(ctx context.Context, attempt domain.CheckoutAttempt) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event domain.CheckoutEvent) error
}

// Failure is what the checkout banner shows. Code never reaches the shopper.
type Failure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ViewModel is the derived checkout page state.
type ViewModel struct {
	View    domain.View           `json:"view"`
	Status  domain.CheckoutStatus `json:"status"`
	Loading bool                  `json:"loading"`
	Cart    *domain.Cart          `json:"cart"`
	Order   *domain.Order         `json:"order,omitempty"`
	Error   string                `json:"error,omitempty"`
}

type Orchestrator struct {
	store     *cart.Store
	gateway   Gateway
	cart      CartReconciler
	ledger    Ledger
	publisher EventPublisher
	logger    zerolog.Logger
	defaults  Defaults
	newToken  func() string
	delay     time.Duration
	timeout   time.Duration
	sessionID string

	mu        sync.Mutex
	status    domain.CheckoutStatus
	completed bool
	order     *domain.Order
	failure   *Failure
	timers    map[*time.Timer]struct{}
	closed    bool
	wg        sync.WaitGroup
}

type Option func(*Orchestrator)

func WithLedger(l Ledger) Option {
	return func(o *Orchestrator) { o.ledger = l }
}

func WithPublisher(p EventPublisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func WithDefaults(d Defaults) Option {
	return func(o *Orchestrator) { o.defaults = d }
}

// WithRefetchDelay sets how long after a submission the safety-net cart fetch runs.
func WithRefetchDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.delay = d }
}

func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

func WithTokenSource(fn func() string) Option {
	return func(o *Orchestrator) { o.newToken = fn }
}

func WithSessionID(id string) Option {
	return func(o *Orchestrator) { o.sessionID = id }
}

func NewOrchestrator(store *cart.Store, gw Gateway, reconciler CartReconciler, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		gateway:  gw,
		cart:     reconciler,
		logger:   zerolog.Nop(),
		newToken: NewToken,
		delay:    DefaultRefetchDelay,
		timeout:  defaultTimeout,
		status:   domain.CheckoutStatusIdle,
		timers:   make(map[*time.Timer]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit validates the form, places the order with a fresh idempotency token
// and settles into one of the terminal states. A second submission while one
// is in flight is rejected with ErrSubmissionInFlight.
func (o *Orchestrator) Submit(ctx context.Context, form Form) (ViewModel, error) {
	if err := form.Validate(); err != nil {
		return o.View(), err
	}

	draft, err := o.arm(form)
	if err != nil {
		return o.View(), err
	}
	log := o.logger.With().Str("client_mutation_id", draft.ClientMutationID).Logger()
	log.Info().Ctx(ctx).Str("payment_method", draft.PaymentMethod).Msg("checkout submitted")

	o.record(ctx, domain.CheckoutAttempt{
		ClientMutationID: draft.ClientMutationID,
		SessionID:        o.sessionID,
		Status:           domain.CheckoutStatusSubmitting,
		PaymentMethod:    draft.PaymentMethod,
	})

	mctx, cancel := context.WithTimeout(ctx, o.timeout)
	payload, err := o.gateway.Checkout(mctx, draft)
	cancel()

	o.settle(context.WithoutCancel(ctx), log, draft, payload, err)
	return o.View(), nil
}

// arm moves the machine into SUBMITTING and schedules the safety-net refetch.
func (o *Orchestrator) arm(form Form) (domain.CheckoutInput, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return domain.CheckoutInput{}, ErrClosed
	}
	if o.status == domain.CheckoutStatusSubmitting {
		return domain.CheckoutInput{}, ErrSubmissionInFlight
	}
	if !o.store.HasCart() {
		return domain.CheckoutInput{}, ErrEmptyCart
	}
	if err := o.transition(domain.CheckoutStatusSubmitting); err != nil {
		return domain.CheckoutInput{}, err
	}

	o.completed = false
	o.order = nil
	o.failure = nil
	o.scheduleRefetch()

	return NewDraft(form, o.defaults, o.newToken()), nil
}

func (o *Orchestrator) settle(ctx context.Context, log zerolog.Logger, draft domain.CheckoutInput, payload *gateway.CheckoutPayload, err error) {
	attempt := domain.CheckoutAttempt{
		ClientMutationID: draft.ClientMutationID,
		SessionID:        o.sessionID,
		PaymentMethod:    draft.PaymentMethod,
	}
	event := domain.CheckoutEvent{
		SessionID:        o.sessionID,
		ClientMutationID: draft.ClientMutationID,
		OccurredAt:       time.Now().UTC(),
	}

	switch {
	case payload != nil && payload.Order != nil:
		if err != nil {
			log.Warn().Ctx(ctx).Err(err).Msg("checkout returned an order together with gateway errors")
		}
		o.mu.Lock()
		o.store.ClearWooCommerceSession()
		o.completed = true
		o.order = payload.Order
		o.mustTransition(domain.CheckoutStatusSucceeded)
		o.mu.Unlock()

		order := payload.Order
		log.Info().Ctx(ctx).Int64("order_id", order.DatabaseID).Str("order_status", order.Status).Msg("order placed")
		attempt.Status = domain.CheckoutStatusSucceeded
		attempt.OrderID = &order.DatabaseID
		event.Type = domain.EventOrderPlaced
		event.OrderID = order.DatabaseID
		event.OrderNumber = order.OrderNumber
		event.OrderStatus = order.Status
		event.Total = order.Total

	case payload != nil && err == nil:
		o.mu.Lock()
		o.completed = true
		o.order = nil
		o.mustTransition(domain.CheckoutStatusSucceededNoReceipt)
		o.mu.Unlock()

		log.Warn().Ctx(ctx).Str("result", payload.Result).Str("redirect", payload.Redirect).
			Msg("checkout completed without an order payload")
		attempt.Status = domain.CheckoutStatusSucceededNoReceipt
		event.Type = domain.EventReceiptMissing

	default:
		if err == nil {
			err = gateway.ErrEmptyResponse
		}
		failure := &Failure{
			Code:    gateway.ErrorCode(err),
			Message: gateway.FriendlyMessage(err, gateway.MessageCheckoutFailed),
		}
		o.mu.Lock()
		o.failure = failure
		o.mustTransition(domain.CheckoutStatusFailed)
		o.mu.Unlock()

		logEvent := log.Error().Ctx(ctx).Err(err).Str("code", failure.Code)
		var netErr *gateway.NetworkError
		if errors.As(err, &netErr) {
			logEvent = logEvent.Int("status_code", netErr.StatusCode).Str("error_body", netErr.Body)
		}
		logEvent.Msg("checkout failed")
		attempt.Status = domain.CheckoutStatusFailed
		attempt.ErrorCode = failure.Code
		event.Type = domain.EventCheckoutFailed
		event.ErrorCode = failure.Code
	}

	o.record(ctx, attempt)
	o.publish(ctx, event)

	rctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	_ = o.cart.Reconcile(rctx)
}

// View derives what the checkout page shows. Cart and order flags are read
// under one lock so a cleared cart and a completed order are seen together.
func (o *Orchestrator) View() ViewModel {
	o.mu.Lock()
	defer o.mu.Unlock()

	c := o.store.Cart()
	vm := ViewModel{
		View:    domain.DeriveView(c != nil, o.completed, o.order != nil),
		Status:  o.status,
		Loading: o.status == domain.CheckoutStatusSubmitting,
		Cart:    c,
		Order:   o.order,
	}
	if o.failure != nil {
		vm.Error = o.failure.Message
	}
	return vm
}

func (o *Orchestrator) Status() domain.CheckoutStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Close stops pending safety-net fetches and waits for running ones.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	for t := range o.timers {
		if t.Stop() {
			o.wg.Done()
		}
		delete(o.timers, t)
	}
	o.mu.Unlock()
	o.wg.Wait()
}

// scheduleRefetch must be called with o.mu held.
func (o *Orchestrator) scheduleRefetch() {
	var t *time.Timer
	o.wg.Add(1)
	t = time.AfterFunc(o.delay, func() {
		defer o.wg.Done()
		o.mu.Lock()
		delete(o.timers, t)
		closed := o.closed
		o.mu.Unlock()
		if closed {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
		defer cancel()
		if err := o.cart.Reconcile(ctx); err != nil {
			o.logger.Debug().Err(err).Msg("safety-net cart refetch failed")
		}
	})
	o.timers[t] = struct{}{}
}

// transition must be called with o.mu held.
func (o *Orchestrator) transition(next domain.CheckoutStatus) error {
	if !o.status.CanTransitionTo(next) {
		return ErrIllegalTransition
	}
	o.status = next
	return nil
}

func (o *Orchestrator) mustTransition(next domain.CheckoutStatus) {
	if err := o.transition(next); err != nil {
		o.logger.Error().Err(err).Str("from", o.status.String()).Str("to", next.String()).Msg("checkout state machine")
		o.status = next
	}
}

func (o *Orchestrator) record(ctx context.Context, attempt domain.CheckoutAttempt) {
	if o.ledger == nil {
		return
	}
	if err := o.ledger.Record(ctx, attempt); err != nil {
		o.logger.Warn().Ctx(ctx).Err(err).Str("client_mutation_id", attempt.ClientMutationID).Msg("record checkout attempt")
	}
}

func (o *Orchestrator) publish(ctx context.Context, event domain.CheckoutEvent) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(ctx, event); err != nil {
		o.logger.Warn().Ctx(ctx).Err(err).Str("event_type", string(event.Type)).Msg("publish checkout event")
	}
}
