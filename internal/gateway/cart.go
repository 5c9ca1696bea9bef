package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

type CartData struct {
	Cart *RemoteCart `json:"cart"`
}

type RemoteCart struct {
	Contents *struct {
		Nodes []RemoteCartLine `json:"nodes"`
	} `json:"contents"`
	Subtotal string `json:"subtotal"`
	TotalTax string `json:"totalTax"`
	Total    string `json:"total"`
}

type RemoteCartLine struct {
	Key       string         `json:"key"`
	Quantity  int            `json:"quantity"`
	Total     string         `json:"total"`
	Subtotal  string         `json:"subtotal"`
	Product   *remoteProduct `json:"product"`
	Variation *remoteProduct `json:"variation"`
}

type remoteProduct struct {
	Node *struct {
		ID         string `json:"id"`
		DatabaseID int64  `json:"databaseId"`
		Name       string `json:"name"`
		Price      string `json:"price"`
	} `json:"node"`
}

// FetchCart runs GET_CART. Partial data is returned together with the
// gateway errors; data is nil only when the gateway sent none.
func (c *Client) FetchCart(ctx context.Context, policy FetchPolicy) (*CartData, error) {
	env, err := c.query(ctx, GetCart, policy)
	data, decodeErr := decodeData[CartData](env)
	if decodeErr != nil {
		return nil, decodeErr
	}
	return data, err
}

// HasEmptyCart reports an explicit answer from the gateway that the cart
// holds no line with a positive quantity. A nil receiver means no answer.
func (d *CartData) HasEmptyCart() bool {
	if d == nil {
		return false
	}
	if d.Cart == nil || d.Cart.Contents == nil {
		return true
	}
	for _, line := range d.Cart.Contents.Nodes {
		if line.Quantity > 0 {
			return false
		}
	}
	return true
}

// FormatCart derives the local cart shape from whatever the gateway returned.
// It returns nil when no line with a positive quantity is present.
func FormatCart(d *CartData) *domain.Cart {
	if d == nil || d.Cart == nil || d.Cart.Contents == nil {
		return nil
	}
	items := make([]domain.CartItem, 0, len(d.Cart.Contents.Nodes))
	for _, line := range d.Cart.Contents.Nodes {
		if line.Quantity <= 0 {
			continue
		}
		item := domain.CartItem{
			Key:      line.Key,
			Quantity: line.Quantity,
			Subtotal: line.Total,
		}
		if line.Product != nil && line.Product.Node != nil {
			item.ProductID = line.Product.Node.DatabaseID
			item.Name = line.Product.Node.Name
			item.UnitPrice = line.Product.Node.Price
		}
		if line.Variation != nil && line.Variation.Node != nil {
			item.VariationID = line.Variation.Node.DatabaseID
			item.Name = line.Variation.Node.Name
			if line.Variation.Node.Price != "" {
				item.UnitPrice = line.Variation.Node.Price
			}
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil
	}
	return &domain.Cart{
		Items:    items,
		Subtotal: d.Cart.Subtotal,
		Tax:      d.Cart.TotalTax,
		Total:    d.Cart.Total,
	}
}

func decodeData[T any](env *Envelope) (*T, error) {
	if env == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, nil
	}
	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return nil, fmt.Errorf("decode graphql data: %w", err)
	}
	return &out, nil
}
