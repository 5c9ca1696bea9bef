package gateway

import (
	"context"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

type CheckoutPayload struct {
	Result   string        `json:"result"`
	Redirect string        `json:"redirect"`
	Order    *domain.Order `json:"order"`
}

// Checkout places the order. The payload may be non-nil alongside gateway errors.
func (c *Client) Checkout(ctx context.Context, input domain.CheckoutInput) (*CheckoutPayload, error) {
	env, err := c.Do(ctx, CheckoutMutation, map[string]any{"input": input})
	data, decodeErr := decodeData[struct {
		Checkout *CheckoutPayload `json:"checkout"`
	}](env)
	if decodeErr != nil {
		return nil, decodeErr
	}
	if data == nil {
		return nil, err
	}
	return data.Checkout, err
}
