package gateway

import (
	"net/http"
)

// Router wraps http.ServeMux with a middleware chain applied outermost first.
type Router struct {
	mux         *http.ServeMux
	middlewares []func(http.Handler) http.Handler
}

func NewRouter() *Router {
	return &Router{
		mux: http.NewServeMux(),
	}
}

// Use appends middleware. The first one registered sees the request first.
func (r *Router) Use(mw ...func(http.Handler) http.Handler) {
	r.middlewares = append(r.middlewares, mw...)
}

func (r *Router) Mux() *http.ServeMux {
	return r.mux
}

func (r *Router) Handle(pattern string, handler http.Handler) {
	r.mux.Handle(pattern, handler)
}

func (r *Router) HandleFunc(pattern string, handler http.HandlerFunc) {
	r.mux.HandleFunc(pattern, handler)
}

// Handler returns the mux wrapped in the registered middleware.
func (r *Router) Handler() http.Handler {
	var h http.Handler = r.mux
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		h = r.middlewares[i](h)
	}
	return h
}
