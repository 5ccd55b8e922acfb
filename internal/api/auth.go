package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/badoux/checkmail"

	"github.com/personal-pl/plctl/internal/model"
)

// Login exchanges credentials for a token, stores it in the session, and
// loads the user profile.
func (c *Client) Login(ctx context.Context, creds model.Credentials) (model.User, error) {
	if strings.TrimSpace(creds.Username) == "" || creds.Password == "" {
		return model.User{}, errors.New("username and password are required")
	}

	var tok model.Token
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", nil, creds, &tok, false); err != nil {
		return model.User{}, err
	}
	if tok.AccessToken == "" {
		return model.User{}, &Error{Op: "POST /api/auth/login", Status: http.StatusOK, Kind: KindServer, Message: "no access token in response"}
	}
	if err := c.session.Login(tok.AccessToken); err != nil {
		return model.User{}, fmt.Errorf("saving session: %w", err)
	}
	return c.Me(ctx)
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, reg model.Registration) (model.User, error) {
	if strings.TrimSpace(reg.Username) == "" || reg.Password == "" {
		return model.User{}, errors.New("username and password are required")
	}
	if err := checkmail.ValidateFormat(reg.Email); err != nil {
		return model.User{}, fmt.Errorf("invalid email %q: %w", reg.Email, err)
	}

	var u model.User
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/register", nil, reg, &u, false)
	return u, err
}

// Me fetches the current user and refreshes the cached profile.
func (c *Client) Me(ctx context.Context) (model.User, error) {
	var u model.User
	if err := c.doJSON(ctx, http.MethodGet, "/api/auth/me", nil, nil, &u, true); err != nil {
		return model.User{}, err
	}
	if err := c.session.SetUser(u); err != nil {
		return u, fmt.Errorf("saving session: %w", err)
	}
	return u, nil
}

// Logout tells the server (best effort) and always clears the local
// session. Only a failure to clear local state is returned.
func (c *Client) Logout(ctx context.Context) error {
	if c.session.Token() != "" {
		if err := c.doJSON(ctx, http.MethodPost, "/api/auth/logout", nil, nil, nil, true); err != nil {
			c.log.Debug("server logout failed", "error", err)
		}
	}
	return c.session.Logout()
}
