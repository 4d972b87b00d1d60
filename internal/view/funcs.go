package view

import (
	"errors"
	"html/template"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/wrightcommerce/shopadmin/internal/backend"
)

// DefaultCurrency is used when the shop profile names none.
const DefaultCurrency = "KES"

var (
	printer = message.NewPrinter(language.English)
	titler  = cases.Title(language.English)
)

// FormatMoney renders amount with thousands separators and two decimals,
// prefixed by the currency code.
func FormatMoney(amount float64, currency string) string {
	if currency == "" {
		currency = DefaultCurrency
	}
	return printer.Sprintf("%s %.2f", currency, amount)
}

// FormatNumber renders n with thousands separators.
func FormatNumber(n int) string {
	return printer.Sprintf("%d", n)
}

// Funcs is the template function map.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"formatDate": func(v any) string {
			return formatTime(v, "02 Jan 2006 15:04")
		},
		"shortDate": func(v any) string {
			return formatTime(v, "02 Jan 2006")
		},
		"money": func(v any, currency ...string) string {
			cur := ""
			if len(currency) > 0 {
				cur = currency[0]
			}
			return FormatMoney(toFloat(v), cur)
		},
		"number": func(v any) string {
			return FormatNumber(int(toFloat(v)))
		},
		"title": func(s string) string {
			return titler.String(strings.ReplaceAll(s, "_", " "))
		},
		"statusClass": StatusClass,
		"add":         func(a, b int) int { return a + b },
		"sub":         func(a, b int) int { return a - b },
		"dict":        dict,
	}
}

// StatusClass maps an order, payment or product status to a badge style.
func StatusClass(status string) string {
	switch strings.ToLower(status) {
	case "completed", "paid", "active", "delivered", "shipped":
		return "badge-success"
	case "pending", "processing", "partial", "unpaid":
		return "badge-warning"
	case "cancelled", "refunded", "failed", "inactive":
		return "badge-danger"
	default:
		return "badge-neutral"
	}
}

func formatTime(v any, layout string) string {
	var t time.Time
	switch tv := v.(type) {
	case time.Time:
		t = tv
	case backend.Timestamp:
		t = tv.Time
	case *backend.Timestamp:
		if tv != nil {
			t = tv.Time
		}
	}
	if t.IsZero() {
		return ""
	}
	return t.Format(layout)
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case backend.Amount:
		return n.Float()
	case *backend.Amount:
		if n != nil {
			return n.Float()
		}
	case backend.Count:
		return float64(n)
	}
	return 0
}

func dict(pairs ...any) (map[string]any, error) {
	if len(pairs)%2 != 0 {
		return nil, errors.New("dict: odd number of arguments")
	}
	out := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, errors.New("dict: keys must be strings")
		}
		out[key] = pairs[i+1]
	}
	return out, nil
}
