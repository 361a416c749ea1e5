// Package catalogue holds the declarative table of feature modules: their
// identity, enabled flag, dependencies, and the route prefixes, tables and
// permissions they own.
//
// The catalogue itself exposes only lookups. Flipping the enabled flag goes
// through the policy engine so dependency invariants are checked in one place.
package catalogue

import (
	"errors"
	"fmt"
	"slices"

	"github.com/pedro17pedroo/SGST-sub001/internal/modules/depgraph"
)

// Descriptor describes one feature module. Every field except Enabled is
// fixed for the lifetime of the process.
type Descriptor struct {
	ID           string   `yaml:"id" json:"id"`
	Name         string   `yaml:"name" json:"name"`
	Description  string   `yaml:"description" json:"description"`
	Enabled      bool     `yaml:"enabled" json:"enabled"`
	Dependencies []string `yaml:"dependencies,omitempty" json:"dependencies"`
	Routes       []string `yaml:"routes,omitempty" json:"routes"`
	Tables       []string `yaml:"tables,omitempty" json:"tables"`
	Permissions  []string `yaml:"permissions,omitempty" json:"permissions"`
}

// Clone returns a deep copy of d.
func (d *Descriptor) Clone() *Descriptor {
	c := *d
	c.Dependencies = slices.Clone(d.Dependencies)
	c.Routes = slices.Clone(d.Routes)
	c.Tables = slices.Clone(d.Tables)
	c.Permissions = slices.Clone(d.Permissions)
	return &c
}

// Catalogue is the in-memory module table. It is not safe for concurrent
// mutation on its own; the policy engine serializes access to it.
type Catalogue struct {
	order []string
	byID  map[string]*Descriptor
}

// Option configures validation performed by New.
type Option func(*options)

type options struct {
	known map[string]bool
}

// WithKnownIDs restricts the catalogue to a closed set of ids. Descriptors or
// dependencies naming any other id are rejected.
func WithKnownIDs(ids ...string) Option {
	return func(o *options) {
		o.known = make(map[string]bool, len(ids))
		for _, id := range ids {
			o.known[id] = true
		}
	}
}

// New builds a catalogue from descriptors after validating them. All problems
// are reported together. The descriptors are copied; later changes to the
// input slice do not affect the catalogue.
func New(descriptors []Descriptor, opts ...Option) (*Catalogue, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if err := validate(descriptors, o); err != nil {
		return nil, err
	}

	c := &Catalogue{
		order: make([]string, 0, len(descriptors)),
		byID:  make(map[string]*Descriptor, len(descriptors)),
	}
	for i := range descriptors {
		d := descriptors[i].Clone()
		c.order = append(c.order, d.ID)
		c.byID[d.ID] = d
	}
	return c, nil
}

// Get returns the descriptor for id. The returned value is the live record;
// callers outside the policy engine must treat it as read-only.
func (c *Catalogue) Get(id string) (*Descriptor, bool) {
	d, ok := c.byID[id]
	return d, ok
}

// All returns every descriptor in declaration order.
func (c *Catalogue) All() []*Descriptor {
	out := make([]*Descriptor, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// IDs returns every module id in declaration order.
func (c *Catalogue) IDs() []string {
	return slices.Clone(c.order)
}

// Len returns the number of descriptors.
func (c *Catalogue) Len() int {
	return len(c.order)
}

// Validate checks a descriptor set without building a catalogue.
func Validate(descriptors []Descriptor, opts ...Option) error {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return validate(descriptors, o)
}

func validate(descriptors []Descriptor, o options) error {
	var errs []error

	ids := make(map[string]bool, len(descriptors))
	for _, d := range descriptors {
		switch {
		case d.ID == "":
			errs = append(errs, fmt.Errorf("descriptor %q: %w", d.Name, ErrEmptyID))
			continue
		case ids[d.ID]:
			errs = append(errs, fmt.Errorf("module %s: %w", d.ID, ErrDuplicateID))
			continue
		}
		ids[d.ID] = true
		if o.known != nil && !o.known[d.ID] {
			errs = append(errs, fmt.Errorf("module %s: %w", d.ID, ErrUnknownID))
		}
	}

	graph := depgraph.New()
	for _, d := range descriptors {
		if d.ID == "" {
			continue
		}
		graph.AddNode(d.ID)
		for _, dep := range d.Dependencies {
			switch {
			case dep == d.ID:
				errs = append(errs, fmt.Errorf("module %s: %w", d.ID, ErrSelfDependency))
			case !ids[dep]:
				errs = append(errs, fmt.Errorf("module %s depends on %s: %w", d.ID, dep, ErrUnknownDependency))
			default:
				graph.AddDependency(d.ID, dep)
			}
		}
	}

	if _, err := graph.TopologicalSort(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Configuration errors reported by New and Validate.
var (
	ErrEmptyID           = errors.New("empty module id")
	ErrDuplicateID       = errors.New("duplicate module id")
	ErrUnknownID         = errors.New("module id is not in the known set")
	ErrSelfDependency    = errors.New("module depends on itself")
	ErrUnknownDependency = errors.New("dependency on unknown module")
)
