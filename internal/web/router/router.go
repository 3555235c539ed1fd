// Package router exposes a Dispatcher over HTTP using chi
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/conduit-lang/docrud/internal/orm/crud"
	"github.com/conduit-lang/docrud/internal/rpc"
	"github.com/conduit-lang/docrud/internal/web/middleware"
	"github.com/conduit-lang/docrud/internal/web/response"
)

// MaxBodyBytes limits the size of a call body
const MaxBodyBytes = 1 << 20

// Pinger reports whether the backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Router manages HTTP routing using chi framework
type Router struct {
	mux        chi.Router
	dispatcher *rpc.Dispatcher
	health     Pinger
	logger     *zap.Logger

	// For introspection and debugging
	registeredRoutes []RouteInfo
}

// RouteInfo provides metadata about a route for introspection
type RouteInfo struct {
	Method  string
	Pattern string
}

// New creates a router serving the dispatcher. health may be nil.
func New(dispatcher *rpc.Dispatcher, health Pinger, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		mux:        chi.NewRouter(),
		dispatcher: dispatcher,
		health:     health,
		logger:     logger,
	}

	chain := middleware.NewChain(
		middleware.RequestID(),
		middleware.Recovery(logger),
		middleware.Logging(logger, "/healthz"),
	)
	r.mux.Use(chain.Handlers()...)

	r.mux.NotFound(func(w http.ResponseWriter, req *http.Request) {
		response.RenderNotFound(w, "")
	})
	r.mux.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		response.RenderMethodNotAllowed(w, r.allowed(req.URL.Path))
	})

	r.addRoute(http.MethodGet, "/healthz", r.handleHealth)
	r.addRoute(http.MethodGet, "/operations", r.handleOperations)
	r.addRoute(http.MethodPost, "/{service}/{method}", r.handleCall)
	return r
}

// ServeHTTP implements http.Handler interface
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Routes returns the registered routes
func (r *Router) Routes() []RouteInfo {
	return append([]RouteInfo(nil), r.registeredRoutes...)
}

func (r *Router) addRoute(method, pattern string, handler http.HandlerFunc) {
	r.mux.Method(method, pattern, handler)
	r.registeredRoutes = append(r.registeredRoutes, RouteInfo{Method: method, Pattern: pattern})
}

func (r *Router) allowed(path string) []string {
	var methods []string
	for _, route := range r.registeredRoutes {
		if r.mux.Match(chi.NewRouteContext(), route.Method, path) {
			methods = append(methods, route.Method)
		}
	}
	return methods
}

// handleCall answers POST /{service}/{method}. The body is the call params.
func (r *Router) handleCall(w http.ResponseWriter, req *http.Request) {
	method := chi.URLParam(req, "service") + "." + chi.URLParam(req, "method")

	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.RenderErrorWithStatus(w, http.StatusRequestEntityTooLarge,
				fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		response.RenderError(w, fmt.Errorf("%w: %v", crud.ErrInvalidEnvelope, err))
		return
	}

	result, err := r.dispatcher.Invoke(req.Context(), method, json.RawMessage(body))
	if err != nil {
		response.RenderError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

func (r *Router) handleOperations(w http.ResponseWriter, req *http.Request) {
	response.JSON(w, http.StatusOK, r.dispatcher.Describe())
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	if r.health != nil {
		if err := r.health.Ping(req.Context()); err != nil {
			r.logger.Warn("health check failed", zap.Error(err))
			response.RenderServiceUnavailable(w, err.Error())
			return
		}
	}
	response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
