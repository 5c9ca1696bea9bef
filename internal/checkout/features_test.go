package checkout

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/gateway"
)

type checkoutTestContext struct {
	store        *cart.Store
	gateway      *fakeGateway
	reconciler   *fakeReconciler
	orchestrator *Orchestrator
	view         ViewModel
	err          error
}

func (c *checkoutTestContext) reset() {
	if c.orchestrator != nil {
		c.orchestrator.Close()
	}
	c.store = cart.NewStore()
	c.gateway = &fakeGateway{}
	c.reconciler = &fakeReconciler{}
	c.orchestrator = NewOrchestrator(c.store, c.gateway, c.reconciler, WithRefetchDelay(time.Hour))
	c.view = ViewModel{}
	c.err = nil
}

func (c *checkoutTestContext) aCartWithItemsSubtotaling(count int, subtotal string) error {
	items := make([]domain.CartItem, 0, count)
	for i := 0; i < count; i++ {
		items = append(items, domain.CartItem{Key: fmt.Sprintf("k%d", i), ProductID: int64(i + 1), Quantity: 1, Subtotal: subtotal})
	}
	c.store.SyncWithWooCommerce(&domain.Cart{Items: items, Subtotal: subtotal, Total: subtotal})
	return nil
}

func (c *checkoutTestContext) noCartHasBeenFetched() error {
	c.store.ClearWooCommerceSession()
	return nil
}

func (c *checkoutTestContext) theGatewayAcceptsTheOrder(id int, status, total string) error {
	c.gateway.respond = func(domain.CheckoutInput) (*gateway.CheckoutPayload, error) {
		return &gateway.CheckoutPayload{Result: "success", Order: receipt(int64(id), status, total)}, nil
	}
	return nil
}

func (c *checkoutTestContext) theGatewayRejectsTheOrderWithCode(code string) error {
	c.gateway.respond = func(domain.CheckoutInput) (*gateway.CheckoutPayload, error) {
		return nil, gateway.GraphQLErrors{{Message: code}}
	}
	return nil
}

func (c *checkoutTestContext) theGatewayCompletesTheOrderWithoutAReceipt() error {
	c.gateway.respond = func(domain.CheckoutInput) (*gateway.CheckoutPayload, error) {
		return &gateway.CheckoutPayload{Result: "success"}, nil
	}
	return nil
}

func (c *checkoutTestContext) iSubmitAValidBillingFormWithoutAPaymentMethod() error {
	form := validForm()
	form.PaymentMethod = ""
	c.view, c.err = c.orchestrator.Submit(context.Background(), form)
	return c.err
}

func (c *checkoutTestContext) iOpenTheCheckoutView() error {
	c.view = c.orchestrator.View()
	return nil
}

func (c *checkoutTestContext) theSubmittedPaymentMethodIs(method string) error {
	calls := c.gateway.calls()
	if len(calls) == 0 {
		return fmt.Errorf("no checkout mutation was fired")
	}
	if got := calls[len(calls)-1].PaymentMethod; got != method {
		return fmt.Errorf("expected payment method %q, got %q", method, got)
	}
	return nil
}

func (c *checkoutTestContext) theCheckoutViewIs(view string) error {
	if string(c.view.View) != view {
		return fmt.Errorf("expected view %s, got %s", view, c.view.View)
	}
	return nil
}

func (c *checkoutTestContext) theConfirmationShowsOrder(id int) error {
	if c.view.Order == nil {
		return fmt.Errorf("expected order %d, got no order", id)
	}
	if c.view.Order.DatabaseID != int64(id) {
		return fmt.Errorf("expected order %d, got %d", id, c.view.Order.DatabaseID)
	}
	return nil
}

func (c *checkoutTestContext) theCartIsEmpty() error {
	if c.store.Cart() != nil {
		return fmt.Errorf("expected an empty cart, got %+v", c.store.Cart())
	}
	return nil
}

func (c *checkoutTestContext) theBannerReads(msg string) error {
	if c.view.Error != msg {
		return fmt.Errorf("expected banner %q, got %q", msg, c.view.Error)
	}
	return nil
}

func (c *checkoutTestContext) theBannerDoesNotMention(raw string) error {
	if strings.Contains(c.view.Error, raw) {
		return fmt.Errorf("banner %q leaks %q", c.view.Error, raw)
	}
	return nil
}

func (c *checkoutTestContext) noErrorBannerIsShown() error {
	if c.view.Error != "" {
		return fmt.Errorf("expected no banner, got %q", c.view.Error)
	}
	return nil
}

func (c *checkoutTestContext) theCartWasRefetched() error {
	if c.reconciler.calls.Load() == 0 {
		return fmt.Errorf("expected a cart re-fetch")
	}
	return nil
}

func (c *checkoutTestContext) noCheckoutMutationWasFired() error {
	if n := len(c.gateway.calls()); n != 0 {
		return fmt.Errorf("expected no mutation, got %d", n)
	}
	return nil
}

func (c *checkoutTestContext) theTwoSubmissionsCarriedDifferentIdempotencyTokens() error {
	calls := c.gateway.calls()
	if len(calls) != 2 {
		return fmt.Errorf("expected 2 submissions, got %d", len(calls))
	}
	if calls[0].ClientMutationID == calls[1].ClientMutationID {
		return fmt.Errorf("token %q was reused", calls[0].ClientMutationID)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &checkoutTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^a cart with (\d+) items? subtotaling "([^"]*)"$`, tc.aCartWithItemsSubtotaling)
	ctx.Step(`^no cart has been fetched$`, tc.noCartHasBeenFetched)
	ctx.Step(`^the gateway accepts the order as (\d+) with status "([^"]*)" and total "([^"]*)"$`, tc.theGatewayAcceptsTheOrder)
	ctx.Step(`^the gateway rejects the order with code "([^"]*)"$`, tc.theGatewayRejectsTheOrderWithCode)
	ctx.Step(`^the gateway completes the order without a receipt$`, tc.theGatewayCompletesTheOrderWithoutAReceipt)

	// When steps
	ctx.Step(`^I submit a valid billing form without a payment method$`, tc.iSubmitAValidBillingFormWithoutAPaymentMethod)
	ctx.Step(`^I open the checkout view$`, tc.iOpenTheCheckoutView)

	// Then steps
	ctx.Step(`^the submitted payment method is "([^"]*)"$`, tc.theSubmittedPaymentMethodIs)
	ctx.Step(`^the checkout view is "([^"]*)"$`, tc.theCheckoutViewIs)
	ctx.Step(`^the confirmation shows order (\d+)$`, tc.theConfirmationShowsOrder)
	ctx.Step(`^the cart is empty$`, tc.theCartIsEmpty)
	ctx.Step(`^the banner reads "([^"]*)"$`, tc.theBannerReads)
	ctx.Step(`^the banner does not mention "([^"]*)"$`, tc.theBannerDoesNotMention)
	ctx.Step(`^no error banner is shown$`, tc.noErrorBannerIsShown)
	ctx.Step(`^the cart was re-fetched$`, tc.theCartWasRefetched)
	ctx.Step(`^no checkout mutation was fired$`, tc.noCheckoutMutationWasFired)
	ctx.Step(`^the two submissions carried different idempotency tokens$`, tc.theTwoSubmissionsCarriedDifferentIdempotencyTokens)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"../../features/checkout.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
