package listview

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var paymentsSchema = Schema{
	Entity:   "payments",
	Path:     "/payments",
	PageSize: 15,
	Fields: []Field{
		{Key: "status", Kind: FieldEnum, Options: []string{"paid", "pending", "failed", "refunded"}},
		{Key: "method", Param: "payment_method", Kind: FieldEnum, Options: []string{"mpesa", "card", "cash", "bank_transfer"}},
		{Key: "date_from", Kind: FieldDate},
		{Key: "date_to", Kind: FieldDate},
	},
}

var ordersSchema = Schema{
	Entity:   "orders",
	Path:     "/orders",
	PageSize: 10,
	Search:   "search",
	Fields: []Field{
		{Key: "search", Kind: FieldText},
		{Key: "status", Kind: FieldEnum, Options: []string{"pending", "processing", "shipped", "delivered", "cancelled"}},
		{Key: "payment_status", Kind: FieldEnum, Options: []string{"paid", "pending", "failed"}},
		{Key: "date_from", Kind: FieldDate},
		{Key: "date_to", Kind: FieldDate},
	},
}

func TestURLRoundTrip(t *testing.T) {
	cases := []struct {
		filters FilterState
		page    int
	}{
		{FilterState{}, 1},
		{FilterState{"status": "pending"}, 2},
		{FilterState{"search": "jane doe & co", "payment_status": "paid"}, 1},
		{FilterState{"date_from": "2024-01-01", "date_to": "2024-01-31", "status": "shipped"}, 7},
	}
	for _, tc := range cases {
		encoded := ordersSchema.EncodeQuery(tc.filters, tc.page)
		query, err := url.ParseQuery(encoded)
		require.NoError(t, err)
		filters, page := ordersSchema.ParseQuery(query)
		assert.True(t, tc.filters.Equal(filters), "filters for %q", encoded)
		assert.Equal(t, tc.page, page, "page for %q", encoded)
	}
}

func TestEncodeQueryIsDeterministicAndOmitsFirstPage(t *testing.T) {
	filters := FilterState{"status": "pending", "search": "ada"}
	assert.Equal(t, "search=ada&status=pending", ordersSchema.EncodeQuery(filters, 1))
	assert.Equal(t, "page=3&search=ada&status=pending", ordersSchema.EncodeQuery(filters, 3))
	assert.Equal(t, "", ordersSchema.EncodeQuery(FilterState{}, 1))
	assert.Equal(t, "/orders", ordersSchema.URL(FilterState{}, 1))
	assert.Equal(t, "/orders?page=2&status=pending", ordersSchema.URL(FilterState{"status": "pending"}, 2))
}

func TestParseQueryDropsInvalidValues(t *testing.T) {
	query := url.Values{
		"status":    {"teleported"},
		"date_from": {"31/01/2024"},
		"search":    {"   "},
		"page":      {"-4"},
		"unknown":   {"x"},
	}
	filters, page := ordersSchema.ParseQuery(query)
	assert.True(t, filters.IsEmpty())
	assert.Equal(t, 1, page)

	filters, page = ordersSchema.ParseQuery(url.Values{"page": {"abc"}, "status": {"delivered"}})
	assert.Equal(t, 1, page)
	assert.Equal(t, "delivered", filters.Get("status"))
}

func TestBackendParamsRenamesFields(t *testing.T) {
	params := paymentsSchema.BackendParams(FilterState{"method": "mpesa", "status": "paid"}, PaginationState{Page: 2, Limit: 15})
	assert.Equal(t, "2", params.Get("page"))
	assert.Equal(t, "15", params.Get("per_page"))
	assert.Equal(t, "mpesa", params.Get("payment_method"))
	assert.Empty(t, params.Get("method"))
	assert.Equal(t, "paid", params.Get("status"))
}

func TestFilterStateSetIsCopyOnWrite(t *testing.T) {
	base := FilterState{"status": "pending"}
	next := base.Set("status", "shipped")
	assert.Equal(t, "pending", base.Get("status"))
	assert.Equal(t, "shipped", next.Get("status"))

	cleared := next.Set("status", "  ")
	assert.True(t, cleared.IsEmpty())
	assert.False(t, next.IsEmpty())
}

func TestPaginationState(t *testing.T) {
	p := PaginationState{Page: 1, Limit: 15, Total: 47}
	assert.Equal(t, 4, p.TotalPages())
	assert.False(t, p.HasPrev())
	assert.True(t, p.HasNext())
	assert.Equal(t, 1, p.From())
	assert.Equal(t, 15, p.To())

	p.Page = 4
	assert.True(t, p.HasPrev())
	assert.False(t, p.HasNext())
	assert.Equal(t, 46, p.From())
	assert.Equal(t, 47, p.To())

	empty := PaginationState{Page: 1, Limit: 10}
	assert.Equal(t, 0, empty.TotalPages())
	assert.False(t, empty.HasNext())
	assert.False(t, empty.HasPrev())
	assert.Equal(t, 0, empty.From())
}

func TestPaginationWindow(t *testing.T) {
	p := PaginationState{Page: 6, Limit: 10, Total: 100}
	assert.Equal(t, []int{4, 5, 6, 7, 8}, p.Window(5))
	p.Page = 1
	assert.Equal(t, []int{1, 2, 3, 4, 5}, p.Window(5))
	p.Page = 10
	assert.Equal(t, []int{6, 7, 8, 9, 10}, p.Window(5))
	assert.Nil(t, PaginationState{Page: 1, Limit: 10}.Window(5))
}
