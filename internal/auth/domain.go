package auth

import (
	"context"
	"time"

	"github.com/wrightcommerce/shopadmin/internal/backend"
	"github.com/wrightcommerce/shopadmin/internal/shared"
)

// identitySessionKey holds the JSON encoded Identity in the session.
const identitySessionKey = "identity"

// LoginPath is where signed-out users are sent.
const LoginPath = "/auth/login"

// HomePath is where users land after signing in.
const HomePath = "/dashboard"

// Identity is the signed-in operator together with the backend credentials
// issued at login.
type Identity struct {
	User       backend.User     `json:"user"`
	Token      string           `json:"token,omitempty"`
	Cookies    []backend.Cookie `json:"cookies,omitempty"`
	LoggedInAt time.Time        `json:"logged_in_at"`
}

// Owner keys per-user preferences.
func (i *Identity) Owner() string {
	if i == nil {
		return ""
	}
	return i.User.ID.String()
}

// Credentials returns what backend calls need to act as this user.
func (i *Identity) Credentials() backend.Credentials {
	if i == nil {
		return backend.Credentials{}
	}
	return backend.Credentials{Token: i.Token, Cookies: i.Cookies}
}

// LoadIdentity reads the identity stored in sess.
func LoadIdentity(sess *shared.Session) (*Identity, bool) {
	if sess == nil || sess.User() == "" {
		return nil, false
	}
	var id Identity
	ok, err := sess.GetJSON(identitySessionKey, &id)
	if err != nil || !ok {
		return nil, false
	}
	return &id, true
}

// SaveIdentity stores id in sess.
func SaveIdentity(sess *shared.Session, id *Identity) error {
	if sess == nil {
		return shared.ErrSessionMissing
	}
	if err := sess.SetJSON(identitySessionKey, id); err != nil {
		return err
	}
	sess.SetUser(id.Owner())
	return nil
}

// ClearIdentity signs the session out without destroying it, so a flash can
// still be carried to the login page.
func ClearIdentity(sess *shared.Session) {
	if sess == nil {
		return
	}
	sess.Delete(identitySessionKey)
	sess.SetUser("")
}

type identityContextKey struct{}

// ContextWithIdentity stores id in ctx.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext returns the identity installed by RequireUser.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey{}).(*Identity)
	return id
}
