package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/wrightcommerce/shopadmin/internal/backend"
	"github.com/wrightcommerce/shopadmin/internal/platform/httpx"
	"github.com/wrightcommerce/shopadmin/internal/shared"
	"github.com/wrightcommerce/shopadmin/internal/view"
)

// ExpiryObserver is told about every forced sign-out.
type ExpiryObserver interface {
	SessionExpired()
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
	observer       ExpiryObserver
	loginLimit     int
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
		loginLimit:     10,
	}
}

// WithObserver records forced sign-outs on o.
func (h *Handler) WithObserver(o ExpiryObserver) *Handler {
	h.observer = o
	return h
}

// WithLoginLimit caps sign-in attempts per IP per minute.
func (h *Handler) WithLoginLimit(perMinute int) *Handler {
	if perMinute > 0 {
		h.loginLimit = perMinute
	}
	return h
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(h.loginLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))
	r.Get("/login", h.showLogin)
	r.With(limiter).Post("/login", h.handleLogin)
	r.Get("/register", h.showRegister)
	r.With(limiter).Post("/register", h.handleRegister)
	r.Post("/logout", h.handleLogout)
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type loginPageData struct {
	Form   loginForm
	Errors map[string]string
}

type registerForm struct {
	Name                 string `validate:"required,max=120"`
	Email                string `validate:"required,email"`
	Phone                string `validate:"omitempty,max=20"`
	BusinessName         string `validate:"omitempty,max=120"`
	Password             string `validate:"required,min=8"`
	PasswordConfirmation string `validate:"required,eqfield=Password"`
}

type registerPageData struct {
	Form   registerForm
	Errors map[string]string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	if _, ok := LoadIdentity(shared.SessionFromContext(r.Context())); ok {
		http.Redirect(w, r, HomePath, http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, "pages/login.html", "Sign in", loginPageData{})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := loginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	errs := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		errs = shared.ValidationErrors(err)
	}

	if len(errs) == 0 {
		id, err := h.service.Authenticate(r.Context(), form.Email, form.Password)
		if err == nil {
			h.signIn(w, r, id, "Welcome back, "+firstName(id.User.Name))
			return
		}
		if errors.Is(err, shared.ErrInvalidCredentials) {
			errs["general"] = "Invalid email or password"
		} else {
			h.logger.Warn("login failed", slog.Any("error", err))
			errs["general"] = shared.UserSafeMessage(err, "Unable to sign in right now. Please try again.")
		}
	}

	form.Password = ""
	h.render(w, r, http.StatusBadRequest, "pages/login.html", "Sign in", loginPageData{Form: form, Errors: errs})
}

func (h *Handler) showRegister(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "pages/register.html", "Create account", registerPageData{})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := registerForm{
		Name:                 strings.TrimSpace(r.PostFormValue("name")),
		Email:                strings.TrimSpace(r.PostFormValue("email")),
		Phone:                strings.TrimSpace(r.PostFormValue("phone")),
		BusinessName:         strings.TrimSpace(r.PostFormValue("business_name")),
		Password:             r.PostFormValue("password"),
		PasswordConfirmation: r.PostFormValue("password_confirmation"),
	}
	errs := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		errs = shared.ValidationErrors(err)
	}

	if len(errs) == 0 {
		id, err := h.service.Register(r.Context(), backend.RegisterInput{
			Name:                 form.Name,
			Email:                form.Email,
			Phone:                form.Phone,
			BusinessName:         form.BusinessName,
			Password:             form.Password,
			PasswordConfirmation: form.PasswordConfirmation,
		})
		if err == nil {
			h.signIn(w, r, id, "Your account is ready")
			return
		}
		h.logger.Warn("register failed", slog.Any("error", err))
		var apiErr *backend.Error
		if errors.As(err, &apiErr) {
			for field, msg := range apiErr.Fields {
				errs[formField(field)] = msg
			}
		}
		errs["general"] = shared.UserSafeMessage(err, "Unable to create the account right now.")
	}

	form.Password, form.PasswordConfirmation = "", ""
	h.render(w, r, http.StatusBadRequest, "pages/register.html", "Create account", registerPageData{Form: form, Errors: errs})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if id, ok := LoadIdentity(sess); ok {
		if err := h.service.Logout(r.Context(), id); err != nil {
			h.logger.Warn("backend logout", slog.Any("error", err))
		}
	}
	if sess != nil {
		h.sessionManager.Destroy(sess)
	}
	httpx.Redirect(w, r, LoginPath)
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request, id *Identity, greeting string) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.sessionManager.Renew(sess)
	if err := SaveIdentity(sess, id); err != nil {
		h.logger.Error("store identity", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	sess.AddFlash(shared.FlashMessage{Kind: httpx.ToastSuccess, Message: greeting})
	httpx.Redirect(w, r, HomePath)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	if err := h.templates.RenderStatus(w, status, name, PageData(r, h.csrfManager, title, data)); err != nil {
		h.logger.Error("render "+name, slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// PageData assembles the template envelope for r: CSRF token, pending flash
// and the signed-in user.
func PageData(r *http.Request, csrf *shared.CSRFManager, title string, data any) view.TemplateData {
	sess := shared.SessionFromContext(r.Context())
	td := view.TemplateData{
		Title:       title,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if csrf != nil && sess != nil {
		td.CSRFToken, _ = csrf.EnsureToken(r.Context(), sess)
	}
	if sess != nil {
		td.Flash = sess.PopFlash()
	}
	if id := IdentityFromContext(r.Context()); id != nil {
		user := id.User
		td.User = &user
	} else if id, ok := LoadIdentity(sess); ok {
		td.User = &id.User
	}
	return td
}

func firstName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "there"
	}
	if i := strings.IndexByte(name, ' '); i > 0 {
		return name[:i]
	}
	return name
}

// formField maps backend snake_case field names onto form field names.
func formField(field string) string {
	parts := strings.Split(field, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, "")
}
