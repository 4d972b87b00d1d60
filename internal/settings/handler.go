// Package settings serves the business profile, notification toggles and the
// signed-in user's account forms.
package settings

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/wrightcommerce/shopadmin/internal/auth"
	"github.com/wrightcommerce/shopadmin/internal/backend"
	"github.com/wrightcommerce/shopadmin/internal/listpage"
	"github.com/wrightcommerce/shopadmin/internal/platform/httpx"
	"github.com/wrightcommerce/shopadmin/internal/shared"
)

// Settings tabs.
const (
	TabBusiness      = "business"
	TabNotifications = "notifications"
	TabAccount       = "account"
)

// Path is where the settings live.
const Path = "/settings"

var (
	// Currencies are the shop currencies on offer.
	Currencies = []string{"KES", "UGX", "TZS", "RWF", "USD"}
	// Countries are the shop countries on offer.
	Countries = []string{"Kenya", "Uganda", "Tanzania", "Rwanda", "Ethiopia", "Nigeria", "Ghana"}
)

// Backend is the part of the REST client settings use.
type Backend interface {
	BusinessProfile(ctx context.Context) (backend.BusinessProfile, error)
	UpdateBusinessProfile(ctx context.Context, p backend.BusinessProfile) error
	UpdateNotifications(ctx context.Context, prefs backend.NotificationPreferences) error
	UpdateProfile(ctx context.Context, in backend.ProfileInput) (backend.User, error)
	ChangePassword(ctx context.Context, in backend.PasswordInput) error
}

// Toggle is one notification switch.
type Toggle struct {
	Key     string
	Label   string
	Channel string
}

// Toggles lists the notification switches in display order.
var Toggles = []Toggle{
	{Key: "email_new_order", Label: "New orders", Channel: "Email"},
	{Key: "email_order_status", Label: "Order status changes", Channel: "Email"},
	{Key: "email_low_stock", Label: "Low stock alerts", Channel: "Email"},
	{Key: "sms_new_order", Label: "New orders", Channel: "SMS"},
	{Key: "sms_order_status", Label: "Order status changes", Channel: "SMS"},
	{Key: "whatsapp_new_order", Label: "New orders", Channel: "WhatsApp"},
	{Key: "whatsapp_order_status", Label: "Order status changes", Channel: "WhatsApp"},
}

func notificationFields(p *backend.NotificationPreferences) map[string]*bool {
	return map[string]*bool{
		"email_new_order":       &p.EmailNewOrder,
		"email_order_status":    &p.EmailOrderStatus,
		"email_low_stock":       &p.EmailLowStock,
		"sms_new_order":         &p.SMSNewOrder,
		"sms_order_status":      &p.SMSOrderStatus,
		"whatsapp_new_order":    &p.WhatsAppNewOrder,
		"whatsapp_order_status": &p.WhatsAppOrderStatus,
	}
}

// Enabled reports the toggle state for key, for templates.
func Enabled(p backend.NotificationPreferences, key string) bool {
	if v, ok := notificationFields(&p)[key]; ok {
		return *v
	}
	return false
}

type businessForm struct {
	Name        string `validate:"required,max=120"`
	Email       string `validate:"omitempty,email"`
	Phone       string `validate:"omitempty,max=20"`
	Address     string `validate:"omitempty,max=255"`
	City        string `validate:"omitempty,max=120"`
	Country     string `validate:"required"`
	Currency    string `validate:"required,oneof=KES UGX TZS RWF USD"`
	Website     string `validate:"omitempty,url"`
	Description string `validate:"omitempty,max=1000"`
}

type profileForm struct {
	Name  string `validate:"required,max=120"`
	Email string `validate:"required,email"`
	Phone string `validate:"omitempty,max=20"`
}

type passwordForm struct {
	CurrentPassword string `validate:"required"`
	NewPassword     string `validate:"required,min=8"`
	ConfirmPassword string `validate:"required,eqfield=NewPassword"`
}

// Data feeds pages/settings.html.
type Data struct {
	Tab           string
	Business      backend.BusinessProfile
	Notifications backend.NotificationPreferences
	User          backend.User
	Currencies    []string
	Countries     []string
	Toggles       []Toggle
	Errors        map[string]string
	LoadError     string
}

// On reports whether the notification toggle key is enabled.
func (d Data) On(key string) bool { return Enabled(d.Notifications, key) }

// Handler serves /settings.
type Handler struct {
	deps      listpage.Deps
	api       Backend
	profiles  auth.ProfileCache
	validator *validator.Validate
}

// NewHandler constructs the settings pages. profiles may be nil.
func NewHandler(deps listpage.Deps, api Backend, profiles auth.ProfileCache) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Handler{deps: deps, api: api, profiles: profiles, validator: validator.New()}
}

// MountRoutes registers the settings routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.show)
	r.Post("/business", h.saveBusiness)
	r.Post("/notifications", h.saveNotifications)
	r.Post("/profile", h.saveProfile)
	r.Post("/password", h.changePassword)
}

func tab(name string) string {
	switch name {
	case TabNotifications, TabAccount:
		return name
	default:
		return TabBusiness
	}
}

// withDefaults fills what a fresh shop has not set yet.
func withDefaults(p backend.BusinessProfile) backend.BusinessProfile {
	if p.Country == "" {
		p.Country = "Kenya"
	}
	if p.Currency == "" {
		p.Currency = "KES"
	}
	return p
}

func (h *Handler) data(r *http.Request, current string) Data {
	d := Data{
		Tab:           current,
		Business:      withDefaults(backend.BusinessProfile{}),
		Notifications: backend.DefaultNotificationPreferences(),
		Currencies:    Currencies,
		Countries:     Countries,
		Toggles:       Toggles,
		Errors:        map[string]string{},
	}
	if id := auth.IdentityFromContext(r.Context()); id != nil {
		d.User = id.User
	}
	return d
}

// load fills the business profile from the backend. It reports false when
// the response has already been written.
func (h *Handler) load(w http.ResponseWriter, r *http.Request, d *Data) bool {
	p, err := h.api.BusinessProfile(r.Context())
	if err != nil {
		if errors.Is(err, httpx.ErrUnauthorized) {
			h.deps.Expirer.Expire(w, r)
			return false
		}
		h.deps.Logger.Warn("load business profile", slog.Any("error", err))
		d.LoadError = "Failed to load settings"
		return true
	}
	if p.Notifications != nil {
		d.Notifications = *p.Notifications
	}
	p.Notifications = nil
	d.Business = withDefaults(p)
	return true
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	d := h.data(r, tab(r.URL.Query().Get("tab")))
	if !h.load(w, r, &d) {
		return
	}
	h.deps.Render(w, r, http.StatusOK, "pages/settings.html", "Settings", d)
}

func (h *Handler) invalid(w http.ResponseWriter, r *http.Request, d Data) {
	h.deps.Render(w, r, http.StatusUnprocessableEntity, "pages/settings.html", "Settings", d)
}

// done flashes message and returns to the tab.
func (h *Handler) done(w http.ResponseWriter, r *http.Request, current, kind, message string) {
	h.deps.Flash(r, kind, message)
	httpx.Redirect(w, r, Path+"?tab="+current)
}

// failed handles a rejected save. It reports true when the failure was
// written as a redirect and false when d.Errors should be re-rendered.
func (h *Handler) failed(w http.ResponseWriter, r *http.Request, err error, current, fallback string, d *Data) bool {
	if errors.Is(err, httpx.ErrUnauthorized) {
		h.deps.Expirer.Expire(w, r)
		return true
	}
	h.deps.Logger.Warn(fallback, slog.Any("error", err))
	var apiErr *backend.Error
	if errors.As(err, &apiErr) && len(apiErr.Fields) > 0 {
		for field, msg := range apiErr.Fields {
			d.Errors[formField(field)] = msg
		}
		d.Errors["general"] = shared.UserSafeMessage(err, fallback)
		return false
	}
	h.done(w, r, current, httpx.ToastError, shared.UserSafeMessage(err, fallback))
	return true
}

func (h *Handler) saveBusiness(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := businessForm{
		Name:        strings.TrimSpace(r.PostFormValue("name")),
		Email:       strings.TrimSpace(r.PostFormValue("email")),
		Phone:       strings.TrimSpace(r.PostFormValue("phone")),
		Address:     strings.TrimSpace(r.PostFormValue("address")),
		City:        strings.TrimSpace(r.PostFormValue("city")),
		Country:     strings.TrimSpace(r.PostFormValue("country")),
		Currency:    strings.TrimSpace(r.PostFormValue("currency")),
		Website:     strings.TrimSpace(r.PostFormValue("website")),
		Description: strings.TrimSpace(r.PostFormValue("description")),
	}
	d := h.data(r, TabBusiness)
	d.Business = backend.BusinessProfile{
		Name: form.Name, Email: form.Email, Phone: form.Phone, Address: form.Address, City: form.City,
		Country: form.Country, Currency: form.Currency, Website: form.Website, Description: form.Description,
	}
	if err := h.validator.Struct(form); err != nil {
		d.Errors = shared.ValidationErrors(err)
		h.invalid(w, r, d)
		return
	}
	if err := h.api.UpdateBusinessProfile(r.Context(), d.Business); err != nil {
		if !h.failed(w, r, err, TabBusiness, "Failed to save profile", &d) {
			h.invalid(w, r, d)
		}
		return
	}
	h.done(w, r, TabBusiness, httpx.ToastSuccess, "Business profile saved!")
}

func (h *Handler) saveNotifications(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	var prefs backend.NotificationPreferences
	for key, field := range notificationFields(&prefs) {
		*field = r.PostForm.Has(key)
	}
	if err := h.api.UpdateNotifications(r.Context(), prefs); err != nil {
		d := h.data(r, TabNotifications)
		d.Notifications = prefs
		if !h.failed(w, r, err, TabNotifications, "Failed to save notification preferences", &d) {
			h.invalid(w, r, d)
		}
		return
	}
	h.done(w, r, TabNotifications, httpx.ToastSuccess, "Notification preferences saved!")
}

func (h *Handler) saveProfile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := profileForm{
		Name:  strings.TrimSpace(r.PostFormValue("name")),
		Email: strings.TrimSpace(r.PostFormValue("email")),
		Phone: strings.TrimSpace(r.PostFormValue("phone")),
	}
	d := h.data(r, TabAccount)
	d.User.Name, d.User.Email, d.User.Phone = form.Name, form.Email, form.Phone
	if err := h.validator.Struct(form); err != nil {
		d.Errors = shared.ValidationErrors(err)
		h.invalid(w, r, d)
		return
	}
	user, err := h.api.UpdateProfile(r.Context(), backend.ProfileInput{Name: form.Name, Email: form.Email, Phone: form.Phone})
	if err != nil {
		if !h.failed(w, r, err, TabAccount, "Failed to update profile", &d) {
			h.invalid(w, r, d)
		}
		return
	}
	h.refreshIdentity(r, user)
	h.done(w, r, TabAccount, httpx.ToastSuccess, "Profile updated")
}

// refreshIdentity stores the updated user in the session and the profile
// cache so the header shows the new details straight away.
func (h *Handler) refreshIdentity(r *http.Request, user backend.User) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		return
	}
	updated := *id
	if user.ID == 0 {
		user.ID = id.User.ID
	}
	if user.BusinessName == "" {
		user.BusinessName = id.User.BusinessName
	}
	updated.User = user
	if err := auth.SaveIdentity(shared.SessionFromContext(r.Context()), &updated); err != nil {
		h.deps.Logger.Warn("save identity", slog.Any("error", err))
	}
	if h.profiles != nil {
		if err := h.profiles.SaveProfile(r.Context(), updated.Owner(), updated.User); err != nil {
			h.deps.Logger.Warn("cache profile", slog.Any("error", err))
		}
	}
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := passwordForm{
		CurrentPassword: r.PostFormValue("current_password"),
		NewPassword:     r.PostFormValue("new_password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
	}
	d := h.data(r, TabAccount)
	if err := h.validator.Struct(form); err != nil {
		d.Errors = shared.ValidationErrors(err)
		if _, ok := d.Errors["ConfirmPassword"]; ok && form.ConfirmPassword != "" {
			d.Errors["ConfirmPassword"] = "New passwords do not match"
		}
		h.invalid(w, r, d)
		return
	}
	err := h.api.ChangePassword(r.Context(), backend.PasswordInput{
		CurrentPassword: form.CurrentPassword,
		NewPassword:     form.NewPassword,
		ConfirmPassword: form.ConfirmPassword,
	})
	if err != nil {
		// A wrong current password comes back as 401 or 422; it is not a
		// dead session.
		if errors.Is(err, httpx.ErrUnauthorized) {
			d.Errors["CurrentPassword"] = "Current password is incorrect"
			h.invalid(w, r, d)
			return
		}
		if !h.failed(w, r, err, TabAccount, "Failed to change password", &d) {
			h.invalid(w, r, d)
		}
		return
	}
	h.done(w, r, TabAccount, httpx.ToastSuccess, "Password changed successfully!")
}

// formField maps backend snake_case names onto form field names.
func formField(field string) string {
	parts := strings.Split(field, "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, "")
}
