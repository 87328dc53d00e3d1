package handlers

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// FunctionsPrefix mirrors the path Netlify serves functions under, so the
// storefront can point at the dev server unchanged.
const FunctionsPrefix = "/.netlify/functions/"

// NewRouter mounts every function at FunctionsPrefix + name.
func NewRouter(funcs map[string]Func) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	names := make([]string, 0, len(funcs))
	for name := range funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r.HandleFunc(FunctionsPrefix+name, HTTP(funcs[name]))
	}
	return r
}
