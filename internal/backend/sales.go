package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// ListOrders returns one page of orders.
func (c *Client) ListOrders(ctx context.Context, params url.Values) (Page[Order], error) {
	page, err := listOf[Order](ctx, c, "orders.list", apiPrefix+"/orders", params)
	if err != nil {
		return Page[Order]{}, fmt.Errorf("orders.list: %w", err)
	}
	return page, nil
}

// SearchOrders runs a free-text order search.
func (c *Client) SearchOrders(ctx context.Context, query string) (Page[Order], error) {
	page, err := listOf[Order](ctx, c, "orders.search", apiPrefix+"/orders/search", url.Values{"q": {query}})
	if err != nil {
		return Page[Order]{}, fmt.Errorf("orders.search: %w", err)
	}
	return page, nil
}

// GetOrder loads one order with its items.
func (c *Client) GetOrder(ctx context.Context, id ID) (Order, error) {
	var o Order
	if err := c.get(ctx, "orders.get", apiPrefix+"/orders/"+id.String(), nil, &o); err != nil {
		return Order{}, fmt.Errorf("orders.get: %w", err)
	}
	return o, nil
}

// UpdateOrderStatus moves an order to status.
func (c *Client) UpdateOrderStatus(ctx context.Context, id ID, status string) error {
	body := map[string]string{"status": status}
	if err := c.send(ctx, "orders.update_status", http.MethodPut, apiPrefix+"/orders/"+id.String()+"/status", body, nil); err != nil {
		return fmt.Errorf("orders.update_status: %w", err)
	}
	return nil
}

// CancelOrder cancels an order.
func (c *Client) CancelOrder(ctx context.Context, id ID) error {
	if err := c.send(ctx, "orders.cancel", http.MethodDelete, apiPrefix+"/orders/"+id.String(), nil, nil); err != nil {
		return fmt.Errorf("orders.cancel: %w", err)
	}
	return nil
}

// OrderStats summarises orders.
func (c *Client) OrderStats(ctx context.Context) (OrderStats, error) {
	var s OrderStats
	if err := c.get(ctx, "orders.stats", apiPrefix+"/orders/stats", nil, &s); err != nil {
		return OrderStats{}, fmt.Errorf("orders.stats: %w", err)
	}
	return s, nil
}

// ListCustomers returns one page of customers.
func (c *Client) ListCustomers(ctx context.Context, params url.Values) (Page[Customer], error) {
	page, err := listOf[Customer](ctx, c, "customers.list", apiPrefix+"/customers", params)
	if err != nil {
		return Page[Customer]{}, fmt.Errorf("customers.list: %w", err)
	}
	return page, nil
}

// SearchCustomers runs a free-text customer search.
func (c *Client) SearchCustomers(ctx context.Context, query string) (Page[Customer], error) {
	page, err := listOf[Customer](ctx, c, "customers.search", apiPrefix+"/customers/search", url.Values{"q": {query}})
	if err != nil {
		return Page[Customer]{}, fmt.Errorf("customers.search: %w", err)
	}
	return page, nil
}

// GetCustomer loads one customer.
func (c *Client) GetCustomer(ctx context.Context, id ID) (Customer, error) {
	var cu Customer
	if err := c.get(ctx, "customers.get", apiPrefix+"/customers/"+id.String(), nil, &cu); err != nil {
		return Customer{}, fmt.Errorf("customers.get: %w", err)
	}
	return cu, nil
}

// CustomerOrders lists every order placed by a customer.
func (c *Client) CustomerOrders(ctx context.Context, id ID) ([]Order, error) {
	page, err := listOf[Order](ctx, c, "customers.orders", apiPrefix+"/customers/"+id.String()+"/orders", nil)
	if err != nil {
		return nil, fmt.Errorf("customers.orders: %w", err)
	}
	return page.Items, nil
}

// ListPayments returns one page of payments.
func (c *Client) ListPayments(ctx context.Context, params url.Values) (Page[Payment], error) {
	page, err := listOf[Payment](ctx, c, "payments.list", apiPrefix+"/payments", params)
	if err != nil {
		return Page[Payment]{}, fmt.Errorf("payments.list: %w", err)
	}
	return page, nil
}

// PaymentStats summarises payments.
func (c *Client) PaymentStats(ctx context.Context) (PaymentStats, error) {
	var s PaymentStats
	if err := c.get(ctx, "payments.stats", apiPrefix+"/payments/stats", nil, &s); err != nil {
		return PaymentStats{}, fmt.Errorf("payments.stats: %w", err)
	}
	return s, nil
}

// BusinessProfile loads the shop profile.
func (c *Client) BusinessProfile(ctx context.Context) (BusinessProfile, error) {
	var p BusinessProfile
	if err := c.get(ctx, "business.profile", apiPrefix+"/business/profile", nil, &p); err != nil {
		return BusinessProfile{}, fmt.Errorf("business.profile: %w", err)
	}
	return p, nil
}

// UpdateBusinessProfile saves the shop profile.
func (c *Client) UpdateBusinessProfile(ctx context.Context, p BusinessProfile) error {
	p.Notifications = nil
	if err := c.send(ctx, "business.update_profile", http.MethodPut, apiPrefix+"/business/profile", p, nil); err != nil {
		return fmt.Errorf("business.update_profile: %w", err)
	}
	return nil
}

// UpdateNotifications saves the notification toggles.
func (c *Client) UpdateNotifications(ctx context.Context, prefs NotificationPreferences) error {
	if err := c.send(ctx, "business.notifications", http.MethodPut, apiPrefix+"/business/notifications", prefs, nil); err != nil {
		return fmt.Errorf("business.notifications: %w", err)
	}
	return nil
}
