package checkout

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/gateway"
)

type fakeGateway struct {
	mu      sync.Mutex
	inputs  []domain.CheckoutInput
	respond func(domain.CheckoutInput) (*gateway.CheckoutPayload, error)
	release chan struct{}
	entered chan struct{}
}

func (g *fakeGateway) Checkout(ctx context.Context, input domain.CheckoutInput) (*gateway.CheckoutPayload, error) {
	g.mu.Lock()
	g.inputs = append(g.inputs, input)
	g.mu.Unlock()

	if g.entered != nil {
		g.entered <- struct{}{}
	}
	if g.release != nil {
		<-g.release
	}
	if g.respond == nil {
		return &gateway.CheckoutPayload{Result: "success"}, nil
	}
	return g.respond(input)
}

func (g *fakeGateway) calls() []domain.CheckoutInput {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.CheckoutInput(nil), g.inputs...)
}

type fakeReconciler struct {
	calls atomic.Int32
	fn    func()
}

func (r *fakeReconciler) Reconcile(context.Context) error {
	r.calls.Add(1)
	if r.fn != nil {
		r.fn()
	}
	return nil
}

type fakeLedger struct {
	mu       sync.Mutex
	attempts []domain.CheckoutAttempt
	err      error
}

func (l *fakeLedger) Record(_ context.Context, a domain.CheckoutAttempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = append(l.attempts, a)
	return l.err
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.CheckoutEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, e domain.CheckoutEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func validForm() Form {
	return Form{
		Billing: AddressForm{
			FirstName: "Ada",
			LastName:  "Lovelace",
			Address1:  "12 Analytical Way",
			City:      "Austin",
			State:     "TX",
			Postcode:  "73301",
			Email:     "ada@example.com",
			Phone:     "5125550100",
		},
		TermsAccepted: true,
	}
}

func oneItemCart() *domain.Cart {
	return &domain.Cart{
		Items:    []domain.CartItem{{Key: "k1", ProductID: 11, Name: "BPC-157", Quantity: 1, UnitPrice: "$40.00", Subtotal: "$40.00"}},
		Subtotal: "$40.00",
		Tax:      "$0.00",
		Total:    "$40.00",
	}
}

func receipt(id int64, status, total string) *domain.Order {
	return &domain.Order{
		ID:          "b3JkZXI6MTAwMQ==",
		DatabaseID:  id,
		OrderNumber: "1001",
		Status:      status,
		Total:       total,
		Subtotal:    total,
		Billing:     &domain.OrderAddress{FirstName: "Ada", Country: "US"},
		LineItems: domain.OrderLineItems{Nodes: []domain.OrderLineItem{
			{ID: "li1", ProductID: 11, Quantity: 1, Subtotal: total, Total: total},
		}},
	}
}
