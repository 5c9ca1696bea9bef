package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(gw Gateway, rec CartReconciler, opts ...Option) (*Orchestrator, *cart.Store) {
	store := cart.NewStore()
	store.SyncWithWooCommerce(oneItemCart())
	opts = append([]Option{WithRefetchDelay(time.Hour)}, opts...)
	o := NewOrchestrator(store, gw, rec, opts...)
	return o, store
}

func TestSubmit_HappyPath(t *testing.T) {
	order := receipt(1001, "completed", "$40.00")
	gw := &fakeGateway{respond: func(domain.CheckoutInput) (*gateway.CheckoutPayload, error) {
		return &gateway.CheckoutPayload{Result: "success", Order: order}, nil
	}}
	rec := &fakeReconciler{}
	o, store := newTestOrchestrator(gw, rec)
	defer o.Close()

	vm, err := o.Submit(context.Background(), validForm())
	require.NoError(t, err)

	require.Len(t, gw.calls(), 1)
	assert.Equal(t, "bacs", gw.calls()[0].PaymentMethod)
	assert.Equal(t, domain.ViewConfirmation, vm.View)
	assert.Equal(t, domain.CheckoutStatusSucceeded, vm.Status)
	assert.Same(t, order, vm.Order)
	assert.Equal(t, int64(1001), vm.Order.DatabaseID)
	assert.Nil(t, store.Cart())
	assert.Empty(t, vm.Error)
	assert.Equal(t, int32(1), rec.calls.Load())
}

func TestSubmit_SuccessOrdering(t *testing.T) {
	gw := &fakeGateway{respond: func(domain.CheckoutInput) (*gateway.CheckoutPayload, error) {
		return &gateway.CheckoutPayload{Order: receipt(1001, "processing", "$40.00")}, nil
	}}
	var viewAtRefetch ViewModel
	rec := &fakeReconciler{}
	o, store := newTestOrchestrator(gw, rec)
	defer o.Close()
	rec.fn = func() { viewAtRefetch = o.View() }

	var completedWhenCleared *bool
	store.Subscribe(func(c *domain.Cart) {
		if c == nil {
			completed := o.completed
			completedWhenCleared = &completed
		}
	})

	_, err := o.Submit(context.Background(), validForm())
	require.NoError(t, err)

	require.NotNil(t, completedWhenCleared, "cart must be cleared")
	assert.False(t, *completedWhenCleared, "cart is cleared before the order is marked completed")
	assert.Equal(t, domain.ViewConfirmation, viewAtRefetch.View, "refetch runs after the receipt is stored")
	assert.Nil(t, viewAtRefetch.Cart)
}

func TestSubmit_NoReceiptIsDistinct(t *testing.T) {
	tests := []struct {
		name     string
		respond  func(domain.CheckoutInput) (*gateway.CheckoutPayload, error)
		view     domain.View
		status   domain.CheckoutStatus
		hasError bool
		hasOrder bool
	}{
		{
			name: "receipt",
			respond: func(domain.CheckoutInput) (*gateway.CheckoutPayload, error) {
				return &gateway.CheckoutPayload{Result: "success", Order: receipt(7, "pending", "$40.00")}, nil
			},
			view: domain.ViewConfirmation, status: domain.CheckoutStatusSucceeded, hasOrder: true,
		},
		{
			name: "no receipt",
			respond: func(domain.CheckoutInput) (*gateway.CheckoutPayload, error) {
				return &gateway.CheckoutPayload{Result: "success"}, nil
			},
			view: domain.ViewThankYou, status: domain.CheckoutStatusSucceededNoReceipt,
		},
		{
			name: "error",
			respond: func(domain.CheckoutInput) (*gateway.CheckoutPayload, error) {
				return nil, gateway.GraphQLErrors{{Message: "Sorry, payment failed."}}
			},
			view: domain.ViewCheckoutForm, status: domain.CheckoutStatusFailed, hasError: true,
		},
	}

	seen := map[domain.View]string{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _ := newTestOrchestrator(&fakeGateway{respond: tt.respond}, &fakeReconciler{})
			defer o.Close()

			vm, err := o.Submit(context.Background(), validForm())
			require.NoError(t, err)

			assert.Equal(t, tt.view, vm.View)
			assert.Equal(t, tt.status, vm.Status)
			assert.Equal(t, tt.hasError, vm.Error != "")
			assert.Equal(t, tt.hasOrder, vm.Order != nil)
			seen[vm.View] = tt.name
		})
	}
	assert.Len(t, seen, 3)
}

func TestSubmit_NoReceiptKeepsCartUntilRefetch(t *testing.T) {
	o, store := newTestOrchestrator(&fakeGateway{}, &fakeReconciler{})
	defer o.Close()

	vm, err := o.Submit(context.Background(), validForm())
	require.NoError(t, err)

	assert.Equal(t, domain.ViewThankYou, vm.View)
	assert.NotNil(t, store.Cart())
}

func TestSubmit_GatewayErrorIsMapped(t *testing.T) {
	gw := &fakeGateway{respond: func(domain.CheckoutInput) (*gateway.CheckoutPayload, error) {
		return nil, gateway.GraphQLErrors{{Message: "invalid_username"}}
	}}
	rec := &fakeReconciler{}
	o, _ := newTestOrchestrator(gw, rec)
	defer o.Close()

	vm, err := o.Submit(context.Background(), validForm())
	require.NoError(t, err)

	assert.Equal(t, "Invalid username or email address. Please check and try again.", vm.Error)
	assert.NotContains(t, vm.Error, "invalid_username")
	assert.Equal(t, int32(1), rec.calls.Load())
}

func TestSubmit_NetworkErrorIsGeneric(t *testing.T) {
	gw := &fakeGateway{respond: func(domain.CheckoutInput) (*gateway.CheckoutPayload, error) {
		return nil, &gateway.NetworkError{Op: "CHECKOUT_MUTATION", StatusCode: 502, Body: "<html>bad gateway</html>"}
	}}
	o, _ := newTestOrchestrator(gw, &fakeReconciler{})
	defer o.Close()

	vm, err := o.Submit(context.Background(), validForm())
	require.NoError(t, err)

	assert.Equal(t, gateway.MessageNetwork, vm.Error)
	assert.Equal(t, domain.CheckoutStatusFailed, vm.Status)
}

func TestSubmit_NullCheckoutPayloadFails(t *testing.T) {
	gw := &fakeGateway{respond: func(domain.CheckoutInput) (*gateway.CheckoutPayload, error) {
		return nil, nil
	}}
	o, _ := newTestOrchestrator(gw, &fakeReconciler{})
	defer o.Close()

	vm, err := o.Submit(context.Background(), validForm())
	require.NoError(t, err)

	assert.Equal(t, domain.CheckoutStatusFailed, vm.Status)
	assert.Equal(t, gateway.MessageCheckoutFailed, vm.Error)
}

func TestSubmit_OrderWithPartialErrorsSucceeds(t *testing.T) {
	gw := &fakeGateway{respond: func(domain.CheckoutInput) (*gateway.CheckoutPayload, error) {
		return &gateway.CheckoutPayload{Order: receipt(5, "on-hold", "$40.00")}, gateway.GraphQLErrors{{Message: "image resolver failed"}}
	}}
	o, store := newTestOrchestrator(gw, &fakeReconciler{})
	defer o.Close()

	vm, err := o.Submit(context.Background(), validForm())
	require.NoError(t, err)

	assert.Equal(t, domain.ViewConfirmation, vm.View)
	assert.Nil(t, store.Cart())
}

func TestSubmit_FreshTokenPerSubmission(t *testing.T) {
	attempt := 0
	gw := &fakeGateway{respond: func(domain.CheckoutInput) (*gateway.CheckoutPayload, error) {
		attempt++
		if attempt == 1 {
			return nil, gateway.GraphQLErrors{{Message: "too_many_retries"}}
		}
		return &gateway.CheckoutPayload{Order: receipt(9, "processing", "$40.00")}, nil
	}}
	o, _ := newTestOrchestrator(gw, &fakeReconciler{})
	defer o.Close()

	vm, err := o.Submit(context.Background(), validForm())
	require.NoError(t, err)
	require.Equal(t, domain.CheckoutStatusFailed, vm.Status)

	vm, err = o.Submit(context.Background(), validForm())
	require.NoError(t, err)
	require.Equal(t, domain.CheckoutStatusSucceeded, vm.Status)
	assert.Empty(t, vm.Error, "a new submission clears the previous error")

	calls := gw.calls()
	require.Len(t, calls, 2)
	assert.NotEmpty(t, calls[0].ClientMutationID)
	assert.NotEqual(t, calls[0].ClientMutationID, calls[1].ClientMutationID)
}

func TestSubmit_RejectsWhileInFlight(t *testing.T) {
	gw := &fakeGateway{release: make(chan struct{}), entered: make(chan struct{}, 1)}
	o, _ := newTestOrchestrator(gw, &fakeReconciler{})
	defer o.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := o.Submit(context.Background(), validForm())
		assert.NoError(t, err)
	}()
	<-gw.entered

	vm, err := o.Submit(context.Background(), validForm())
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	assert.True(t, vm.Loading)
	assert.Equal(t, domain.ViewCheckoutForm, vm.View)

	close(gw.release)
	wg.Wait()
	assert.Len(t, gw.calls(), 1)
}

func TestSubmit_EmptyCartNeverFires(t *testing.T) {
	gw := &fakeGateway{}
	store := cart.NewStore()
	o := NewOrchestrator(store, gw, &fakeReconciler{})
	defer o.Close()

	vm, err := o.Submit(context.Background(), validForm())

	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, domain.ViewEmptyCart, vm.View)
	assert.Empty(t, gw.calls())
	assert.Equal(t, domain.CheckoutStatusIdle, o.Status())
}

func TestSubmit_InvalidFormNeverFires(t *testing.T) {
	gw := &fakeGateway{}
	o, _ := newTestOrchestrator(gw, &fakeReconciler{})
	defer o.Close()

	form := validForm()
	form.Billing.Email = "not-an-email"
	form.TermsAccepted = false

	_, err := o.Submit(context.Background(), form)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "billing.email")
	assert.Contains(t, verr.Fields, "termsAccepted")
	assert.Empty(t, gw.calls())
}

func TestSubmit_SafetyNetScheduledFromSubmission(t *testing.T) {
	gw := &fakeGateway{release: make(chan struct{}), entered: make(chan struct{}, 1)}
	rec := &fakeReconciler{}
	o, _ := newTestOrchestrator(gw, rec, WithRefetchDelay(10*time.Millisecond))
	defer o.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = o.Submit(context.Background(), validForm())
	}()
	<-gw.entered

	assert.Eventually(t, func() bool { return rec.calls.Load() >= 1 }, time.Second, 5*time.Millisecond,
		"safety net fires while the mutation is still pending")
	assert.Equal(t, domain.CheckoutStatusSubmitting, o.Status())

	close(gw.release)
	<-done
	assert.Equal(t, int32(2), rec.calls.Load())
}

func TestSubmit_SafetyNetDoesNotOverwriteOutcome(t *testing.T) {
	gw := &fakeGateway{respond: func(domain.CheckoutInput) (*gateway.CheckoutPayload, error) {
		return &gateway.CheckoutPayload{Order: receipt(1001, "completed", "$40.00")}, nil
	}}
	rec := &fakeReconciler{}
	o, store := newTestOrchestrator(gw, rec, WithRefetchDelay(20*time.Millisecond))
	defer o.Close()
	rec.fn = func() { store.SyncWithWooCommerce(oneItemCart()) }

	_, err := o.Submit(context.Background(), validForm())
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return rec.calls.Load() == 2 }, time.Second, 5*time.Millisecond)

	vm := o.View()
	assert.Equal(t, domain.ViewConfirmation, vm.View)
	assert.Equal(t, domain.CheckoutStatusSucceeded, vm.Status)
	assert.Equal(t, int64(1001), vm.Order.DatabaseID)
}

func TestClose_StopsPendingSafetyNet(t *testing.T) {
	rec := &fakeReconciler{}
	o, _ := newTestOrchestrator(&fakeGateway{}, rec)

	_, err := o.Submit(context.Background(), validForm())
	require.NoError(t, err)
	o.Close()

	assert.Equal(t, int32(1), rec.calls.Load())
	_, err = o.Submit(context.Background(), validForm())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSubmit_RecordsLedgerAndEvents(t *testing.T) {
	gw := &fakeGateway{respond: func(domain.CheckoutInput) (*gateway.CheckoutPayload, error) {
		return &gateway.CheckoutPayload{Order: receipt(1001, "completed", "$40.00")}, nil
	}}
	ledger := &fakeLedger{}
	pub := &fakePublisher{}
	o, _ := newTestOrchestrator(gw, &fakeReconciler{},
		WithLedger(ledger), WithPublisher(pub), WithSessionID("visitor-1"))
	defer o.Close()

	_, err := o.Submit(context.Background(), validForm())
	require.NoError(t, err)

	require.Len(t, ledger.attempts, 2)
	assert.Equal(t, domain.CheckoutStatusSubmitting, ledger.attempts[0].Status)
	assert.Equal(t, domain.CheckoutStatusSucceeded, ledger.attempts[1].Status)
	assert.Equal(t, ledger.attempts[0].ClientMutationID, ledger.attempts[1].ClientMutationID)
	require.NotNil(t, ledger.attempts[1].OrderID)
	assert.Equal(t, int64(1001), *ledger.attempts[1].OrderID)

	require.Len(t, pub.events, 1)
	assert.Equal(t, domain.EventOrderPlaced, pub.events[0].Type)
	assert.Equal(t, "visitor-1", pub.events[0].SessionID)
	assert.Equal(t, "$40.00", pub.events[0].Total)
}

func TestSubmit_LedgerAndPublisherFailuresDoNotBlock(t *testing.T) {
	gw := &fakeGateway{respond: func(domain.CheckoutInput) (*gateway.CheckoutPayload, error) {
		return &gateway.CheckoutPayload{Order: receipt(3, "completed", "$40.00")}, nil
	}}
	o, _ := newTestOrchestrator(gw, &fakeReconciler{},
		WithLedger(&fakeLedger{err: errors.New("db down")}),
		WithPublisher(&fakePublisher{err: errors.New("broker down")}))
	defer o.Close()

	vm, err := o.Submit(context.Background(), validForm())
	require.NoError(t, err)
	assert.Equal(t, domain.ViewConfirmation, vm.View)
}

func TestView_InitialStates(t *testing.T) {
	o, store := newTestOrchestrator(&fakeGateway{}, &fakeReconciler{})
	defer o.Close()
	assert.Equal(t, domain.ViewCheckoutForm, o.View().View)

	store.ClearWooCommerceSession()
	assert.Equal(t, domain.ViewEmptyCart, o.View().View)
	assert.Equal(t, domain.CheckoutStatusIdle, o.View().Status)
}
