// Package linkage assembles the binding kinds of every supported language
// into one registry.
package linkage

import (
	"fmt"

	"pdom/internal/linkage/c"
	"pdom/internal/linkage/cpp"
	"pdom/internal/pdom"
)

// NewRegistry returns a registry holding the C and C++ kinds.
func NewRegistry() (*pdom.Registry, error) {
	r := pdom.NewRegistry()
	if err := c.Register(r); err != nil {
		return nil, fmt.Errorf("c linkage: %w", err)
	}
	if err := cpp.Register(r); err != nil {
		return nil, fmt.Errorf("cpp linkage: %w", err)
	}
	return r, nil
}

// MustRegistry is NewRegistry for callers that treat a broken kind table as
// a programming error.
func MustRegistry() *pdom.Registry {
	r, err := NewRegistry()
	if err != nil {
		panic(err)
	}
	return r
}
