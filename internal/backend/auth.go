package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Login is the outcome of a successful sign-in or registration.
type Login struct {
	User        User
	Credentials Credentials
}

// RegisterInput is the sign-up payload.
type RegisterInput struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Phone                string `json:"phone,omitempty"`
	BusinessName         string `json:"business_name,omitempty"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// ProfileInput updates the signed-in user.
type ProfileInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// PasswordInput changes the signed-in user's password.
type PasswordInput struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

type userPayload struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

// decodeUser accepts {user, token} or a bare user object.
func decodeUser(raw json.RawMessage) (User, string, error) {
	if isNull(bytes.TrimSpace(raw)) {
		return User{}, "", fmt.Errorf("backend: empty user payload")
	}
	var wrapped userPayload
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.User != nil {
		return *wrapped.User, wrapped.Token, nil
	}
	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return User{}, "", fmt.Errorf("backend: decode user: %w", err)
	}
	return user, "", nil
}

// Login signs in with e-mail and password.
func (c *Client) Login(ctx context.Context, email, password string) (*Login, error) {
	body := map[string]string{"email": email, "password": password}
	return c.authenticate(ctx, "auth.login", "/auth/login", body)
}

// Register creates an account and signs it in.
func (c *Client) Register(ctx context.Context, in RegisterInput) (*Login, error) {
	return c.authenticate(ctx, "auth.register", "/auth/register", in)
}

func (c *Client) authenticate(ctx context.Context, endpoint, path string, body any) (*Login, error) {
	res, err := c.do(ctx, call{method: http.MethodPost, path: path, body: body, endpoint: endpoint})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	user, token, err := decodeUser(res.data)
	if err != nil {
		return nil, err
	}
	return &Login{User: user, Credentials: Credentials{Token: token, Cookies: cookiesFrom(res.cookies)}}, nil
}

// Logout ends the backend session.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.send(ctx, "auth.logout", http.MethodPost, "/auth/logout", nil, nil); err != nil {
		return fmt.Errorf("auth.logout: %w", err)
	}
	return nil
}

// Me returns the signed-in user.
func (c *Client) Me(ctx context.Context) (User, error) {
	res, err := c.do(ctx, call{method: http.MethodGet, path: "/auth/me", endpoint: "auth.me"})
	if err != nil {
		return User{}, fmt.Errorf("auth.me: %w", err)
	}
	user, _, err := decodeUser(res.data)
	return user, err
}

// UpdateProfile changes the signed-in user's details.
func (c *Client) UpdateProfile(ctx context.Context, in ProfileInput) (User, error) {
	res, err := c.do(ctx, call{method: http.MethodPut, path: "/auth/profile", body: in, endpoint: "auth.profile"})
	if err != nil {
		return User{}, fmt.Errorf("auth.profile: %w", err)
	}
	user, _, err := decodeUser(res.data)
	if err != nil {
		// Some deployments answer with the message only.
		return User{Name: in.Name, Email: in.Email, Phone: in.Phone}, nil
	}
	return user, nil
}

// ChangePassword replaces the signed-in user's password.
func (c *Client) ChangePassword(ctx context.Context, in PasswordInput) error {
	if err := c.send(ctx, "auth.change_password", http.MethodPut, "/auth/change-password", in, nil); err != nil {
		return fmt.Errorf("auth.change_password: %w", err)
	}
	return nil
}
