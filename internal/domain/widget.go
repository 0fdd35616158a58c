package domain

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Position is the corner of the host page the widget docks to.
type Position string

const (
	PositionBottomLeft  Position = "bottom-left"
	PositionBottomRight Position = "bottom-right"
)

const (
	// DefaultTheme is the theme color a fresh widget uses.
	DefaultTheme = "#1e3a8a"
	// DefaultPosition is the dock position a fresh widget uses.
	DefaultPosition = PositionBottomRight
)

var themePattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// WidgetConfig holds the appearance settings of the embeddable widget.
type WidgetConfig struct {
	UserID    string   `json:"userId"`
	Theme     string   `json:"theme"`
	Position  Position `json:"position"`
	AvatarURL string   `json:"avatar"`
}

// DefaultWidgetConfig returns the settings shown before anything is saved.
func DefaultWidgetConfig(userID string) WidgetConfig {
	return WidgetConfig{
		UserID:   userID,
		Theme:    DefaultTheme,
		Position: DefaultPosition,
	}
}

// Validate checks the fields the server expects to be well formed.
func (c WidgetConfig) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidConfig)
	}
	if !themePattern.MatchString(c.Theme) {
		return fmt.Errorf("%w: theme %q is not a #rrggbb color", ErrInvalidConfig, c.Theme)
	}
	if c.Position != PositionBottomLeft && c.Position != PositionBottomRight {
		return fmt.Errorf("%w: unknown position %q", ErrInvalidConfig, c.Position)
	}
	if c.AvatarURL != "" {
		u, err := url.Parse(c.AvatarURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: avatar must be an http(s) URL", ErrInvalidConfig)
		}
	}
	return nil
}

// WidgetSnapshot pairs the server's widget settings with the embed code it
// generated for them. EmbedCode is opaque to the client.
type WidgetSnapshot struct {
	Config    WidgetConfig `json:"config"`
	EmbedCode string       `json:"embedCode"`
}

// Upload is a named text document added to the bot's knowledge base.
type Upload struct {
	Filename string `json:"filename"`
	Data     string `json:"data"`
}

// Validate rejects uploads with a blank name or body.
func (u Upload) Validate() error {
	if strings.TrimSpace(u.Filename) == "" {
		return fmt.Errorf("%w: filename is required", ErrInvalidUpload)
	}
	if strings.TrimSpace(u.Data) == "" {
		return fmt.Errorf("%w: data is required", ErrInvalidUpload)
	}
	return nil
}

// NormalizeDomain validates an embedding origin such as https://shop.example.
func NormalizeDomain(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q is not an http(s) origin", ErrInvalidDomain, raw)
	}
	return u.Scheme + "://" + u.Host, nil
}
