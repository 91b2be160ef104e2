// Package schema loads diagnostic schema files and resolves them into
// the immutable object graph the codec consumes. Loading is two-phase:
// the first pass registers every named object in an arena, the second
// resolves name references into direct pointers, so forward references
// and structure/table cycles are fine.
package schema

import (
	"sort"

	"example.com/udsgate/internal/odx"
)

// Schema is one resolved schema pack: the services plus the named
// objects they are built from. Immutable after Load returns.
type Schema struct {
	Name       string
	DOPs       map[string]*odx.DataObjectProperty
	Structures map[string]*odx.Structure
	Tables     map[string]*odx.Table
	Services   []*odx.Service

	servicesByName map[string]*odx.Service
}

// Service returns the service with the given short name, or nil.
func (s *Schema) Service(name string) *odx.Service {
	return s.servicesByName[name]
}

// ServiceNames lists the schema's services in sorted order.
func (s *Schema) ServiceNames() []string {
	names := make([]string, 0, len(s.Services))
	for _, svc := range s.Services {
		names = append(names, svc.ShortName)
	}
	sort.Strings(names)
	return names
}
