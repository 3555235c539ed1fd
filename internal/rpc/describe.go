package rpc

import (
	"strings"

	"github.com/conduit-lang/docrud/internal/orm/crud"
)

// MethodInfo describes one callable method for introspection
type MethodInfo struct {
	Service        string `json:"service"`
	Method         string `json:"method"`
	Field          string `json:"field,omitempty"`
	EnvelopeKey    string `json:"envelopeKey,omitempty"`
	Action         string `json:"action"`
	Classification string `json:"classification,omitempty"`
}

// Describe lists every callable method ordered by service, core methods first
func (d *Dispatcher) Describe() []MethodInfo {
	var out []MethodInfo
	for _, svc := range d.Services() {
		out = append(out, DescribeService(svc)...)
	}
	return out
}

// DescribeService lists the methods of a single service
func DescribeService(svc *crud.Service) []MethodInfo {
	out := make([]MethodInfo, 0, len(crud.CoreOperations))
	for _, core := range crud.CoreOperations {
		out = append(out, MethodInfo{
			Service: svc.Name(),
			Method:  core,
			Action:  strings.ToUpper(core),
		})
	}
	for _, op := range svc.Operations() {
		out = append(out, MethodInfo{
			Service:        svc.Name(),
			Method:         op.Name,
			Field:          op.Field,
			EnvelopeKey:    op.EnvelopeKey,
			Action:         op.Action.String(),
			Classification: op.Classification.String(),
		})
	}
	return out
}
