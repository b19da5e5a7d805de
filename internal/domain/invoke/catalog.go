package invoke

import (
	"sort"

	"trackgate/internal/domain/query"
)

// Kind separates platform dispatch from analytical query dispatch.
type Kind int

const (
	KindPlatform Kind = iota
	KindQuery
)

// Capability names the normalized adapter operation a platform action maps
// onto.
type Capability string

const (
	CapabilitySearch     Capability = "search"
	CapabilityGet        Capability = "get"
	CapabilityCreate     Capability = "create"
	CapabilityUpdate     Capability = "update"
	CapabilityTransition Capability = "transition"
	CapabilityComment    Capability = "comment"
	CapabilityLink       Capability = "link"
)

// Rate limit classes. Limits attach to classes, not individual actions.
const (
	ClassRead  = "read"
	ClassWrite = "write"
	ClassQuery = "query"
)

// ActionDef declares one invocable action: its rate-limit class, whether it
// mutates external state (and therefore audits), and how it dispatches.
type ActionDef struct {
	Name       string
	Class      string
	Mutating   bool
	Kind       Kind
	Capability Capability
	// Template is set for query actions.
	Template string
	// FetchBefore marks mutating actions whose audit entry captures the
	// prior entity state (updates and transitions, not creates).
	FetchBefore bool
}

// Catalog is the fixed set of registered actions, built once at startup.
type Catalog struct {
	actions map[string]ActionDef
}

func NewCatalog(defs ...ActionDef) *Catalog {
	c := &Catalog{actions: make(map[string]ActionDef, len(defs))}
	for _, d := range defs {
		c.actions[d.Name] = d
	}
	return c
}

func (c *Catalog) Lookup(name string) (ActionDef, bool) {
	d, ok := c.actions[name]
	return d, ok
}

// Names lists registered action names in stable order.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.actions))
	for name := range c.actions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DefaultCatalog registers the platform actions plus one query action per
// whitelisted template in the catalogue.
func DefaultCatalog(templates *query.Catalogue) *Catalog {
	defs := []ActionDef{
		{Name: "issue.search", Class: ClassRead, Kind: KindPlatform, Capability: CapabilitySearch},
		{Name: "issue.get", Class: ClassRead, Kind: KindPlatform, Capability: CapabilityGet},
		{Name: "issue.create", Class: ClassWrite, Mutating: true, Kind: KindPlatform, Capability: CapabilityCreate},
		{Name: "issue.update", Class: ClassWrite, Mutating: true, Kind: KindPlatform, Capability: CapabilityUpdate, FetchBefore: true},
		{Name: "issue.transition", Class: ClassWrite, Mutating: true, Kind: KindPlatform, Capability: CapabilityTransition, FetchBefore: true},
		{Name: "issue.comment", Class: ClassWrite, Mutating: true, Kind: KindPlatform, Capability: CapabilityComment},
		{Name: "issue.link", Class: ClassWrite, Mutating: true, Kind: KindPlatform, Capability: CapabilityLink},
	}
	if templates != nil {
		names := templates.Names()
		sort.Strings(names)
		for _, name := range names {
			defs = append(defs, ActionDef{
				Name:     "query." + name,
				Class:    ClassQuery,
				Kind:     KindQuery,
				Template: name,
			})
		}
	}
	return NewCatalog(defs...)
}
