package rewrite

import (
	"github.com/leapstack-labs/scopestar/internal/visibility"
)

// MethodKind distinguishes lifecycle hooks from ordinary methods.
type MethodKind string

// Method kinds.
const (
	MethodOrdinary    MethodKind = "method"
	MethodConstructor MethodKind = "constructor"
	MethodDestructor  MethodKind = "destructor"
)

// Position is a 1-based source location.
type Position struct {
	Line int32 `json:"line" yaml:"line"`
	Col  int32 `json:"col" yaml:"col"`
}

// Member is a declared data member of a class.
type Member struct {
	Name       string            `json:"name" yaml:"name"`
	Type       string            `json:"type,omitempty" yaml:"type,omitempty"`
	Access     visibility.Access `json:"access" yaml:"access"`
	HasDefault bool              `json:"has_default" yaml:"has_default"`
	// Default is the default expression as source text.
	Default string   `json:"default,omitempty" yaml:"default,omitempty"`
	Pos     Position `json:"pos" yaml:"pos"`
}

// Method is a function defined in a class body. Pos and End bound its
// source; End is where the last body statement ends.
type Method struct {
	Name   string            `json:"name" yaml:"name"`
	Kind   MethodKind        `json:"kind" yaml:"kind"`
	Access visibility.Access `json:"access" yaml:"access"`
	Params []string          `json:"params,omitempty" yaml:"params,omitempty"`
	Pos    Position          `json:"pos" yaml:"pos"`
	End    Position          `json:"end" yaml:"end"`
}

// ClassDescriptor is the rewriter's description of one class. The order of
// Methods and Members matches the lists returned by the rewritten factory.
type ClassDescriptor struct {
	Name        string    `json:"name" yaml:"name"`
	Doc         string    `json:"doc,omitempty" yaml:"doc,omitempty"`
	Pos         Position  `json:"pos" yaml:"pos"`
	Members     []*Member `json:"members" yaml:"members"`
	Methods     []*Method `json:"methods" yaml:"methods"`
	Constructor string    `json:"constructor,omitempty" yaml:"constructor,omitempty"`
	Destructor  string    `json:"destructor,omitempty" yaml:"destructor,omitempty"`
	HasBoundary bool      `json:"has_boundary" yaml:"has_boundary"`
}

// HasLifecycle reports whether instances of the class are scope tracked.
func (c *ClassDescriptor) HasLifecycle() bool {
	return c.Constructor != "" || c.Destructor != ""
}

// Boundary builds the visibility boundary of the class. Constructor and
// destructor are not members and are left out.
func (c *ClassDescriptor) Boundary() *visibility.Boundary {
	b := visibility.NewBoundary(c.HasBoundary)
	for _, m := range c.Members {
		b.Set(m.Name, m.Access)
	}
	for _, m := range c.Methods {
		if m.Kind == MethodOrdinary {
			b.Set(m.Name, m.Access)
		}
	}
	return b
}

// Method returns the method with the given name.
func (c *ClassDescriptor) Method(name string) (*Method, bool) {
	for _, m := range c.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// Member returns the member with the given name.
func (c *ClassDescriptor) Member(name string) (*Member, bool) {
	for _, m := range c.Members {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}
