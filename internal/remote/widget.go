package remote

import (
	"context"
	"net/http"
	"net/url"

	"github.com/ashureev/chatbot-console/internal/domain"
)

type widgetResponse struct {
	EmbedCode string `json:"embedCode"`
	Theme     string `json:"theme"`
	Position  string `json:"position"`
	Avatar    string `json:"avatar"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type domainRequest struct {
	Domain string `json:"domain"`
}

// Widget fetches the public widget settings and embed code for userID.
// Settings the server omits fall back to the defaults.
func (c *Client) Widget(ctx context.Context, userID string) (domain.WidgetSnapshot, error) {
	path := "/widget/" + url.PathEscape(userID)
	_, raw, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return domain.WidgetSnapshot{}, err
	}
	var resp widgetResponse
	if err := decode(http.MethodGet, path, raw, &resp); err != nil {
		return domain.WidgetSnapshot{}, err
	}

	cfg := domain.DefaultWidgetConfig(userID)
	if resp.Theme != "" {
		cfg.Theme = resp.Theme
	}
	if resp.Position != "" {
		cfg.Position = domain.Position(resp.Position)
	}
	cfg.AvatarURL = resp.Avatar

	return domain.WidgetSnapshot{Config: cfg, EmbedCode: resp.EmbedCode}, nil
}

// SaveWidget stores the full widget settings and returns the server's message.
func (c *Client) SaveWidget(ctx context.Context, token string, cfg domain.WidgetConfig) (string, error) {
	_, raw, err := c.do(ctx, http.MethodPost, "/widget/settings", token, cfg)
	if err != nil {
		return "", err
	}
	var resp messageResponse
	if err := decode(http.MethodPost, "/widget/settings", raw, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// AddDomain allows the widget to be embedded on origin and returns the
// server's message, which may be empty.
func (c *Client) AddDomain(ctx context.Context, token, origin string) (string, error) {
	_, raw, err := c.do(ctx, http.MethodPost, "/add-domain", token, domainRequest{Domain: origin})
	if err != nil {
		return "", err
	}
	var resp messageResponse
	if len(raw) > 0 {
		if err := decode(http.MethodPost, "/add-domain", raw, &resp); err != nil {
			return "", err
		}
	}
	return resp.Message, nil
}

// Upload adds a text document to the bot's knowledge base.
func (c *Client) Upload(ctx context.Context, token string, u domain.Upload) error {
	_, _, err := c.do(ctx, http.MethodPost, "/upload", token, u)
	return err
}
