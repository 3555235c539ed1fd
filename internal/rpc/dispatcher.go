// Package rpc routes "Service.method" calls to crud services and serves them
// over JSON-RPC 2.0.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduit-lang/docrud/internal/orm/crud"
	"github.com/conduit-lang/docrud/internal/orm/query"
)

// MutationResult is the answer of a relationship mutation. It encodes as an
// empty object unless elements were skipped.
type MutationResult struct {
	Diagnostics crud.Diagnostics `json:"diagnostics,omitempty"`
}

// Dispatcher resolves method names to service calls
type Dispatcher struct {
	services map[string]*crud.Service
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher serving the given services
func NewDispatcher(logger *zap.Logger, services ...*crud.Service) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		services: make(map[string]*crud.Service, len(services)),
		logger:   logger,
	}
	for _, svc := range services {
		d.services[svc.Name()] = svc
	}
	return d
}

// Service returns the service registered under name
func (d *Dispatcher) Service(name string) (*crud.Service, bool) {
	svc, ok := d.services[name]
	return svc, ok
}

// Services returns the registered services ordered by name
func (d *Dispatcher) Services() []*crud.Service {
	out := make([]*crud.Service, 0, len(d.services))
	for _, svc := range d.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name() < out[j].Name()
	})
	return out
}

// Methods lists every callable method as "Service.method"
func (d *Dispatcher) Methods() []string {
	var methods []string
	for _, svc := range d.Services() {
		for _, core := range crud.CoreOperations {
			methods = append(methods, svc.Name()+"."+core)
		}
		for _, op := range svc.Operations() {
			methods = append(methods, svc.Name()+"."+op.Name)
		}
	}
	return methods
}

// SplitMethod splits "Service.method" into its parts
func SplitMethod(method string) (service, name string, err error) {
	service, name, ok := strings.Cut(method, ".")
	if !ok || service == "" || name == "" {
		return "", "", fmt.Errorf("%w: %q", crud.ErrUnknownOperation, method)
	}
	return service, name, nil
}

// Invoke calls one method with JSON encoded params
func (d *Dispatcher) Invoke(ctx context.Context, method string, params json.RawMessage) (interface{}, error) {
	serviceName, name, err := SplitMethod(method)
	if err != nil {
		return nil, err
	}
	svc, ok := d.services[serviceName]
	if !ok {
		return nil, fmt.Errorf("%w: no service %q", crud.ErrUnknownOperation, serviceName)
	}

	requestID := uuid.NewString()
	start := time.Now()
	logger := d.logger.With(
		zap.String("request_id", requestID),
		zap.String("method", method),
	)

	result, err := d.call(ctx, svc, name, params)
	if err != nil {
		logger.Debug("call failed",
			zap.Error(err),
			zap.Stringer("code", crud.CodeOf(err)),
			zap.Duration("duration", time.Since(start)),
		)
		return nil, err
	}
	logger.Debug("call completed", zap.Duration("duration", time.Since(start)))
	return result, nil
}

func (d *Dispatcher) call(ctx context.Context, svc *crud.Service, name string, params json.RawMessage) (interface{}, error) {
	switch name {
	case "insert":
		var payload map[string]interface{}
		if err := decode(params, &payload); err != nil {
			return nil, err
		}
		return svc.Insert(ctx, payload)

	case "update":
		var req crud.UpdateRequest
		if err := decode(params, &req); err != nil {
			return nil, err
		}
		obj, _, err := svc.Update(ctx, req)
		return obj, err

	case "delete":
		var req crud.DeleteRequest
		if err := decode(params, &req); err != nil {
			return nil, err
		}
		if err := svc.Delete(ctx, req); err != nil {
			return nil, err
		}
		return struct{}{}, nil

	case "get":
		var req crud.GetRequest
		if err := decode(params, &req); err != nil {
			return nil, err
		}
		return svc.Get(ctx, req)

	case "list":
		var req query.ListRequest
		if !absent(params) {
			if err := decode(params, &req); err != nil {
				return nil, err
			}
		}
		return svc.List(ctx, req)
	}

	op, ok := svc.Operation(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", crud.ErrUnknownOperation, svc.Name(), name)
	}
	var envelope map[string]interface{}
	if err := decode(params, &envelope); err != nil {
		return nil, err
	}
	diagnostics, err := op.Invoke(ctx, envelope)
	if err != nil {
		return nil, err
	}
	return MutationResult{Diagnostics: diagnostics}, nil
}

// absent reports params that are missing or a JSON null
func absent(params json.RawMessage) bool {
	trimmed := bytes.TrimSpace(params)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// decode unmarshals params, rejecting missing or null params
func decode(params json.RawMessage, v interface{}) error {
	if absent(params) {
		return fmt.Errorf("%w: params are required", crud.ErrInvalidEnvelope)
	}
	if err := json.Unmarshal(params, v); err != nil {
		return fmt.Errorf("%w: %v", crud.ErrInvalidEnvelope, err)
	}
	return nil
}
