package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
)

const apiPrefix = "/api/v1"

// ProductInput is the create/update payload for a product.
type ProductInput struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
	Category    string  `json:"category"`
	SKU         string  `json:"sku"`
	Status      string  `json:"status"`
}

func (in ProductInput) fields() map[string]string {
	return map[string]string{
		"name":        in.Name,
		"description": in.Description,
		"price":       strconv.FormatFloat(in.Price, 'f', 2, 64),
		"stock":       strconv.Itoa(in.Stock),
		"category":    in.Category,
		"sku":         in.SKU,
		"status":      in.Status,
	}
}

// ListProducts returns one page of products.
func (c *Client) ListProducts(ctx context.Context, params url.Values) (Page[Product], error) {
	page, err := listOf[Product](ctx, c, "products.list", apiPrefix+"/products", params)
	if err != nil {
		return Page[Product]{}, fmt.Errorf("products.list: %w", err)
	}
	return page, nil
}

// SearchProducts runs a free-text product search.
func (c *Client) SearchProducts(ctx context.Context, query string) (Page[Product], error) {
	page, err := listOf[Product](ctx, c, "products.search", apiPrefix+"/products/search", url.Values{"q": {query}})
	if err != nil {
		return Page[Product]{}, fmt.Errorf("products.search: %w", err)
	}
	return page, nil
}

// LowStockProducts lists products below the stock threshold.
func (c *Client) LowStockProducts(ctx context.Context) (Page[Product], error) {
	page, err := listOf[Product](ctx, c, "products.low_stock", apiPrefix+"/products/low-stock", nil)
	if err != nil {
		return Page[Product]{}, fmt.Errorf("products.low_stock: %w", err)
	}
	return page, nil
}

// GetProduct loads one product.
func (c *Client) GetProduct(ctx context.Context, id ID) (Product, error) {
	var p Product
	if err := c.get(ctx, "products.get", apiPrefix+"/products/"+id.String(), nil, &p); err != nil {
		return Product{}, fmt.Errorf("products.get: %w", err)
	}
	return p, nil
}

// CreateProduct uploads a new product as multipart form data with an
// optional image.
func (c *Client) CreateProduct(ctx context.Context, in ProductInput, image *File) (Product, error) {
	body := &multipartBody{fields: in.fields()}
	if image != nil {
		img := *image
		if img.Field == "" {
			img.Field = "image"
		}
		body.files = append(body.files, img)
	}
	var p Product
	if err := c.send(ctx, "products.create", http.MethodPost, apiPrefix+"/products", body, &p); err != nil {
		return Product{}, fmt.Errorf("products.create: %w", err)
	}
	return p, nil
}

// UpdateProduct replaces a product's fields.
func (c *Client) UpdateProduct(ctx context.Context, id ID, in ProductInput) (Product, error) {
	var p Product
	if err := c.send(ctx, "products.update", http.MethodPut, apiPrefix+"/products/"+id.String(), in, &p); err != nil {
		return Product{}, fmt.Errorf("products.update: %w", err)
	}
	return p, nil
}

// DeleteProduct removes a product.
func (c *Client) DeleteProduct(ctx context.Context, id ID) error {
	if err := c.send(ctx, "products.delete", http.MethodDelete, apiPrefix+"/products/"+id.String(), nil, nil); err != nil {
		return fmt.Errorf("products.delete: %w", err)
	}
	return nil
}

// ProductStats summarises the catalogue.
func (c *Client) ProductStats(ctx context.Context) (ProductStats, error) {
	var s ProductStats
	if err := c.get(ctx, "products.stats", apiPrefix+"/products/stats", nil, &s); err != nil {
		return ProductStats{}, fmt.Errorf("products.stats: %w", err)
	}
	return s, nil
}

// ProductCategories returns the distinct category names, sorted.
func (c *Client) ProductCategories(ctx context.Context) ([]string, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "products.categories", apiPrefix+"/products/categories", nil, &raw); err != nil {
		return nil, fmt.Errorf("products.categories: %w", err)
	}
	return decodeCategories(raw)
}

// decodeCategories accepts ["a","b"] or [{"name":"a"}, ...].
func decodeCategories(raw json.RawMessage) ([]string, error) {
	if isNull(bytes.TrimSpace(raw)) {
		return nil, nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("backend: decode categories: %w", err)
	}
	seen := make(map[string]struct{}, len(entries))
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		var name string
		if err := json.Unmarshal(entry, &name); err != nil {
			var named struct {
				Name     string `json:"name"`
				Category string `json:"category"`
			}
			if err := json.Unmarshal(entry, &named); err != nil {
				continue
			}
			name = named.Name
			if name == "" {
				name = named.Category
			}
		}
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}
