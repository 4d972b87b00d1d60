package httpx

import (
	"encoding/json"
	"net/http"
)

// Toast kinds understood by static/js/app.js.
const (
	ToastSuccess = "success"
	ToastError   = "error"
	ToastInfo    = "info"
)

// IsHTMX reports whether the request was issued by htmx.
func IsHTMX(r *http.Request) bool {
	return r != nil && r.Header.Get("HX-Request") == "true"
}

// Trigger adds a client-side event to the HX-Trigger header, keeping events
// set earlier in the same response.
func Trigger(w http.ResponseWriter, event string, detail any) {
	events := map[string]any{}
	if existing := w.Header().Get("HX-Trigger"); existing != "" {
		if err := json.Unmarshal([]byte(existing), &events); err != nil {
			events = map[string]any{existing: nil}
		}
	}
	events[event] = detail
	raw, _ := json.Marshal(events)
	w.Header().Set("HX-Trigger", string(raw))
}

// Toast sets the HX-Trigger header with a showToast event.
func Toast(w http.ResponseWriter, kind, message string) {
	Trigger(w, "showToast", map[string]string{
		"message": message,
		"type":    kind,
	})
}

// ReplaceURL instructs htmx to rewrite the location bar without a history entry.
func ReplaceURL(w http.ResponseWriter, target string) {
	if target == "" {
		return
	}
	w.Header().Set("HX-Replace-Url", target)
}

// Redirect sends htmx requests an HX-Redirect and everything else a 303.
func Redirect(w http.ResponseWriter, r *http.Request, target string) {
	if IsHTMX(r) {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// Reswap overrides the swap style of the triggering element.
func Reswap(w http.ResponseWriter, style string) {
	w.Header().Set("HX-Reswap", style)
}
