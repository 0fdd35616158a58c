package remote

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ashureev/chatbot-console/internal/domain"
)

type loginResponse struct {
	Token string `json:"token"`
}

// Signup registers an account. A 2xx response means the signup was accepted.
func (c *Client) Signup(ctx context.Context, creds domain.Credentials) error {
	_, _, err := c.do(ctx, http.MethodPost, "/signup", "", creds)
	return err
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, creds domain.Credentials) (string, error) {
	_, raw, err := c.do(ctx, http.MethodPost, "/login", "", creds)
	if err != nil {
		return "", err
	}
	var resp loginResponse
	if err := decode(http.MethodPost, "/login", raw, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("POST /login: %w: token missing", ErrMalformedResponse)
	}
	return resp.Token, nil
}
