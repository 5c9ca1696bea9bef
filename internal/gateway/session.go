package gateway

import (
	"context"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

const loginSuccess = "SUCCESS"

// Login signs the shopper in. The backend answers with session cookies that
// land in the client's jar.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	env, err := c.Do(ctx, LoginUser, map[string]any{"username": username, "password": password})
	if err != nil {
		return "", err
	}
	data, err := decodeData[struct {
		LoginWithCookies *struct {
			Status string `json:"status"`
		} `json:"loginWithCookies"`
	}](env)
	if err != nil {
		return "", err
	}
	if data == nil || data.LoginWithCookies == nil || data.LoginWithCookies.Status != loginSuccess {
		return "", ErrLoginRejected
	}
	return data.LoginWithCookies.Status, nil
}

func (c *Client) Logout(ctx context.Context) error {
	_, err := c.Do(ctx, LogoutUser, nil)
	return err
}

// CurrentUser always asks the network so a signed-out visitor never sees a
// cached account.
func (c *Client) CurrentUser(ctx context.Context) (*domain.Customer, error) {
	env, err := c.query(ctx, GetCurrentUser, NetworkOnly)
	if err != nil {
		return nil, err
	}
	data, err := decodeData[struct {
		Customer *domain.Customer `json:"customer"`
	}](env)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	return data.Customer, nil
}
