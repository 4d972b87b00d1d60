package auth_test

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func chiRouter(h *harness) http.Handler {
	r := chi.NewRouter()
	r.Route("/auth", h.handler.MountRoutes)
	return r
}
