package auth

import (
	"net/http"

	"github.com/wrightcommerce/shopadmin/internal/backend"
	"github.com/wrightcommerce/shopadmin/internal/platform/httpx"
	"github.com/wrightcommerce/shopadmin/internal/shared"
)

// RequireUser rejects requests without a signed-in identity and attaches the
// identity and its backend credentials to the request context.
func (h *Handler) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := LoadIdentity(shared.SessionFromContext(r.Context()))
		if !ok {
			httpx.Redirect(w, r, LoginPath)
			return
		}
		ctx := ContextWithIdentity(r.Context(), id)
		ctx = backend.ContextWithCredentials(ctx, id.Credentials())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Expire signs the user out after the backend rejected their credentials and
// sends them to the login page. htmx requests receive HX-Redirect.
func (h *Handler) Expire(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if _, ok := LoadIdentity(sess); ok {
		ClearIdentity(sess)
		sess.AddFlash(shared.FlashMessage{Kind: httpx.ToastError, Message: "Your session has expired. Please sign in again."})
		if h.observer != nil {
			h.observer.SessionExpired()
		}
	}
	httpx.Redirect(w, r, LoginPath)
}
