package backend

import (
	"context"
	"net/http"
)

// Cookie is a backend session cookie kept on behalf of a console user.
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Credentials authenticate calls to the backend: the cookies issued at login
// and, when the backend hands one out, a bearer token.
type Credentials struct {
	Token   string   `json:"token,omitempty"`
	Cookies []Cookie `json:"cookies,omitempty"`
}

// Empty reports whether no credential is present.
func (c Credentials) Empty() bool {
	return c.Token == "" && len(c.Cookies) == 0
}

type credentialsKey struct{}

// ContextWithCredentials attaches creds to ctx.
func ContextWithCredentials(ctx context.Context, creds Credentials) context.Context {
	return context.WithValue(ctx, credentialsKey{}, creds)
}

// CredentialsFromContext returns the credentials attached to ctx, if any.
func CredentialsFromContext(ctx context.Context) Credentials {
	creds, _ := ctx.Value(credentialsKey{}).(Credentials)
	return creds
}

func cookiesFrom(list []*http.Cookie) []Cookie {
	out := make([]Cookie, 0, len(list))
	for _, c := range list {
		if c.Value == "" || c.MaxAge < 0 {
			continue
		}
		out = append(out, Cookie{Name: c.Name, Value: c.Value})
	}
	return out
}
