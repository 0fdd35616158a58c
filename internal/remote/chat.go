package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ashureev/chatbot-console/internal/domain"
)

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
	Error string `json:"error"`
}

// Chat sends one user message and returns the bot's reply. A parseable body
// carrying an error field instead of a reply, whatever the status, yields
// *domain.ApplicationError.
func (c *Client) Chat(ctx context.Context, token, message string) (string, error) {
	status, raw, err := c.do(ctx, http.MethodPost, "/chat", token, chatRequest{Message: message})
	var statusErr *StatusError
	if err != nil && !errors.As(err, &statusErr) {
		return "", err
	}

	var resp chatResponse
	if decErr := decode(http.MethodPost, "/chat", raw, &resp); decErr != nil {
		return "", decErr
	}
	switch {
	case resp.Reply != "":
		return resp.Reply, nil
	case resp.Error != "":
		return "", &domain.ApplicationError{Status: status, Message: resp.Error}
	case statusErr != nil:
		return "", statusErr
	}
	return "", fmt.Errorf("POST /chat: %w: reply missing", ErrMalformedResponse)
}

// Chats loads the stored conversation records in server order.
func (c *Client) Chats(ctx context.Context, token string) ([]domain.Record, error) {
	_, raw, err := c.do(ctx, http.MethodGet, "/chats", token, nil)
	if err != nil {
		return nil, err
	}
	var records []domain.Record
	if err := decode(http.MethodGet, "/chats", raw, &records); err != nil {
		return nil, err
	}
	return records, nil
}
