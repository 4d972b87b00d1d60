// Package products serves the catalogue list and the product forms.
package products

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/wrightcommerce/shopadmin/internal/auth"
	"github.com/wrightcommerce/shopadmin/internal/backend"
	"github.com/wrightcommerce/shopadmin/internal/listpage"
	"github.com/wrightcommerce/shopadmin/internal/listview"
	"github.com/wrightcommerce/shopadmin/internal/platform/cache"
	"github.com/wrightcommerce/shopadmin/internal/platform/httpx"
	"github.com/wrightcommerce/shopadmin/internal/shared"
)

const (
	// MaxImageSize bounds product image uploads.
	MaxImageSize = 2 << 20
	// CategoryTTL is how long the category list is cached per user.
	CategoryTTL = 10 * time.Minute
)

// Statuses lists the product states.
var Statuses = []string{"active", "inactive"}

// Schema declares the product list.
var Schema = listview.Schema{
	Entity:   "products",
	Path:     "/products",
	PageSize: 10,
	Search:   "search",
	Fields: []listview.Field{
		{Key: "search"},
		{Key: "status", Kind: listview.FieldEnum, Options: Statuses},
		{Key: "category"},
		{Key: "min_price", Kind: listview.FieldNumber},
		{Key: "max_price", Kind: listview.FieldNumber},
	},
}

// Backend is the part of the REST client the product pages use.
type Backend interface {
	ListProducts(ctx context.Context, params url.Values) (backend.Page[backend.Product], error)
	SearchProducts(ctx context.Context, query string) (backend.Page[backend.Product], error)
	GetProduct(ctx context.Context, id backend.ID) (backend.Product, error)
	CreateProduct(ctx context.Context, in backend.ProductInput, image *backend.File) (backend.Product, error)
	UpdateProduct(ctx context.Context, id backend.ID, in backend.ProductInput) (backend.Product, error)
	DeleteProduct(ctx context.Context, id backend.ID) error
	ProductCategories(ctx context.Context) ([]string, error)
}

// Handler serves /products.
type Handler struct {
	deps       listpage.Deps
	api        Backend
	categories *cache.JSON
	validator  *validator.Validate
	list       *listpage.Handler[backend.Product]
}

// NewHandler constructs the product pages. categories may be nil, in which
// case every page load asks the backend.
func NewHandler(deps listpage.Deps, api Backend, categories *cache.JSON) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	h := &Handler{deps: deps, api: api, categories: categories, validator: validator.New()}
	h.list = listpage.New(deps, listpage.Config[backend.Product]{
		Schema:   Schema,
		Title:    "Products",
		Page:     "pages/products.html",
		Rows:     "partials/products_rows.html",
		Fetcher:  listpage.Fetch(api.ListProducts),
		Searcher: listpage.Search(api.SearchProducts),
		Extra: func(ctx context.Context) (any, error) {
			cats, err := h.Categories(ctx)
			return listExtra{Statuses: Statuses, Categories: cats}, err
		},
	})
	return h
}

type listExtra struct {
	Statuses   []string
	Categories []string
}

// MountRoutes registers the product routes.
func (h *Handler) MountRoutes(r chi.Router) {
	h.list.MountRoutes(r)
	r.Get("/new", h.newForm)
	r.Post("/", h.create)
	r.Get("/{id}/edit", h.editForm)
	r.Post("/{id}", h.update)
	r.Delete("/{id}", h.delete)
}

// Categories returns the signed-in user's category names, cached.
func (h *Handler) Categories(ctx context.Context) ([]string, error) {
	owner := auth.IdentityFromContext(ctx).Owner()
	var cats []string
	err := h.categories.Fetch(ctx, &cats, func(ctx context.Context) (any, error) {
		return h.api.ProductCategories(ctx)
	}, "categories", owner)
	return cats, err
}

type productForm struct {
	Name        string  `validate:"required,max=200"`
	Description string  `validate:"max=2000"`
	Price       float64 `validate:"gte=0"`
	Stock       int     `validate:"gte=0"`
	Category    string  `validate:"required,max=100"`
	SKU         string  `validate:"max=64"`
	Status      string  `validate:"required,oneof=active inactive"`
}

func (f productForm) input() backend.ProductInput {
	return backend.ProductInput{
		Name:        f.Name,
		Description: f.Description,
		Price:       f.Price,
		Stock:       f.Stock,
		Category:    f.Category,
		SKU:         f.SKU,
		Status:      f.Status,
	}
}

type formData struct {
	ID         backend.ID
	Form       productForm
	Errors     map[string]string
	Categories []string
	Statuses   []string
	ImageURL   string
}

// Editing reports whether the form updates an existing product.
func (d formData) Editing() bool { return d.ID != 0 }

func (h *Handler) newForm(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, http.StatusOK, formData{Form: productForm{Status: "active"}})
}

func (h *Handler) editForm(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	p, err := h.api.GetProduct(r.Context(), id)
	if err != nil {
		h.deps.Fail(w, r, err, "Failed to load product", Schema.Path)
		return
	}
	h.renderForm(w, r, http.StatusOK, formData{
		ID:       id,
		ImageURL: p.ImageURL,
		Form: productForm{
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price.Float(),
			Stock:       int(p.Stock),
			Category:    p.Category,
			SKU:         p.SKU,
			Status:      p.Status,
		},
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(MaxImageSize + 1<<20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form, errs := h.parse(r)
	image, imgErr := readImage(r)
	if imgErr != "" {
		errs["Image"] = imgErr
	}
	if len(errs) > 0 {
		h.renderForm(w, r, http.StatusUnprocessableEntity, formData{Form: form, Errors: errs})
		return
	}

	p, err := h.api.CreateProduct(r.Context(), form.input(), image)
	if err != nil {
		h.rejected(w, r, err, formData{Form: form}, "Failed to create product")
		return
	}
	h.invalidateCategories(r.Context())
	h.deps.Logger.Info("product created", slog.String("product", p.ID.String()))
	h.deps.Flash(r, httpx.ToastSuccess, "Product created successfully")
	httpx.Redirect(w, r, Schema.Path)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form, errs := h.parse(r)
	if len(errs) > 0 {
		h.renderForm(w, r, http.StatusUnprocessableEntity, formData{ID: id, Form: form, Errors: errs})
		return
	}
	if _, err := h.api.UpdateProduct(r.Context(), id, form.input()); err != nil {
		h.rejected(w, r, err, formData{ID: id, Form: form}, "Failed to update product")
		return
	}
	h.invalidateCategories(r.Context())
	h.deps.Flash(r, httpx.ToastSuccess, "Product updated")
	httpx.Redirect(w, r, Schema.Path)
}

// delete removes a product and asks the list to refetch its current page.
func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	if err := h.api.DeleteProduct(r.Context(), id); err != nil {
		if errors.Is(err, httpx.ErrUnauthorized) {
			h.deps.Expirer.Expire(w, r)
			return
		}
		h.deps.Logger.Warn("delete product", slog.String("product", id.String()), slog.Any("error", err))
		httpx.Toast(w, httpx.ToastError, shared.UserSafeMessage(err, "Failed to delete product"))
		w.WriteHeader(httpx.StatusFor(err))
		return
	}
	h.invalidateCategories(r.Context())
	httpx.Toast(w, httpx.ToastSuccess, "Product deleted successfully")
	httpx.Trigger(w, "listRefresh", true)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) parse(r *http.Request) (productForm, map[string]string) {
	form := productForm{
		Name:        strings.TrimSpace(r.FormValue("name")),
		Description: strings.TrimSpace(r.FormValue("description")),
		Category:    strings.TrimSpace(r.FormValue("category")),
		SKU:         strings.TrimSpace(r.FormValue("sku")),
		Status:      r.FormValue("status"),
	}
	if form.Category == "Other" {
		form.Category = strings.TrimSpace(r.FormValue("new_category"))
	}
	errs := make(map[string]string)
	price, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue("price")), 64)
	if err != nil {
		errs["Price"] = "Enter a valid price"
	}
	form.Price = price
	if raw := strings.TrimSpace(r.FormValue("stock")); raw != "" {
		stock, err := strconv.Atoi(raw)
		if err != nil {
			errs["Stock"] = "Stock must be a whole number"
		}
		form.Stock = stock
	}
	if err := h.validator.Struct(form); err != nil {
		for field, msg := range shared.ValidationErrors(err) {
			if _, seen := errs[field]; !seen {
				errs[field] = msg
			}
		}
	}
	return form, errs
}

// readImage loads the optional upload. It returns a user-facing message when
// the file is rejected.
func readImage(r *http.Request) (*backend.File, string) {
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, ""
	}
	if err != nil {
		return nil, "Could not read the image"
	}
	defer file.Close()
	if header.Size > MaxImageSize {
		return nil, "Image must be 2MB or smaller"
	}
	data, err := io.ReadAll(io.LimitReader(file, MaxImageSize+1))
	if err != nil {
		return nil, "Could not read the image"
	}
	if len(data) > MaxImageSize {
		return nil, "Image must be 2MB or smaller"
	}
	if len(data) == 0 {
		return nil, ""
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "Upload a JPEG, PNG, GIF or WebP image"
	}
	return &backend.File{Field: "image", Filename: header.Filename, ContentType: contentType, Data: data}, ""
}

// rejected re-renders the form with the backend's validation messages, or
// falls back to the generic failure handling.
func (h *Handler) rejected(w http.ResponseWriter, r *http.Request, err error, data formData, fallback string) {
	if !errors.Is(err, httpx.ErrValidation) && !errors.Is(err, httpx.ErrDuplicate) {
		h.deps.Fail(w, r, err, fallback, Schema.Path)
		return
	}
	data.Errors = map[string]string{"general": shared.UserSafeMessage(err, fallback)}
	var apiErr *backend.Error
	if errors.As(err, &apiErr) {
		for field, msg := range apiErr.Fields {
			data.Errors[formField(field)] = msg
		}
	}
	h.renderForm(w, r, httpx.StatusFor(err), data)
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, status int, data formData) {
	if data.Errors == nil {
		data.Errors = map[string]string{}
	}
	data.Statuses = Statuses
	cats, err := h.Categories(r.Context())
	if err != nil {
		h.deps.Logger.Warn("load categories", slog.Any("error", err))
	}
	data.Categories = cats
	title := "New product"
	if data.Editing() {
		title = "Edit product"
	}
	h.deps.Render(w, r, status, "pages/product_form.html", title, data)
}

func (h *Handler) invalidateCategories(ctx context.Context) {
	if err := h.categories.Bump(ctx); err != nil {
		h.deps.Logger.Warn("invalidate categories", slog.Any("error", err))
	}
}

func productID(w http.ResponseWriter, r *http.Request) (backend.ID, bool) {
	n, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || n <= 0 {
		http.NotFound(w, r)
		return 0, false
	}
	return backend.ID(n), true
}

// formField maps backend snake_case names onto form field names.
func formField(field string) string {
	switch field {
	case "sku":
		return "SKU"
	case "image":
		return "Image"
	}
	parts := strings.Split(field, "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, "")
}
