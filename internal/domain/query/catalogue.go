package query

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Template is one whitelisted query shape. SQL uses :name placeholder
// tokens; every template must reference :tenant_id so no rendered statement
// can cross tenants.
type Template struct {
	Name    string                 `yaml:"name"`
	Version int                    `yaml:"version"`
	SQL     string                 `yaml:"sql"`
	Params  map[string]ParamSchema `yaml:"params"`
}

// Catalogue is the fixed, reviewed set of templates. Built once at startup;
// read-only afterwards.
type Catalogue struct {
	templates map[string]Template
}

// NewCatalogue builds a catalogue from the given templates, rejecting any
// template without a tenant predicate.
func NewCatalogue(templates ...Template) (*Catalogue, error) {
	c := &Catalogue{templates: make(map[string]Template, len(templates))}
	for _, t := range templates {
		if err := c.add(t); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalogue) add(t Template) error {
	if t.Name == "" {
		return fmt.Errorf("template name is required")
	}
	if !strings.Contains(t.SQL, ":"+tenantToken) {
		return fmt.Errorf("template %q lacks the mandatory :tenant_id predicate", t.Name)
	}
	for name := range t.Params {
		if name == tenantToken {
			return fmt.Errorf("template %q declares reserved parameter %q", t.Name, tenantToken)
		}
	}
	c.templates[t.Name] = t
	return nil
}

func (c *Catalogue) Lookup(name string) (Template, bool) {
	t, ok := c.templates[name]
	return t, ok
}

// Names lists the whitelisted template names.
func (c *Catalogue) Names() []string {
	out := make([]string, 0, len(c.templates))
	for name := range c.templates {
		out = append(out, name)
	}
	return out
}

type catalogueFile struct {
	Version   int        `yaml:"version"`
	Templates []Template `yaml:"templates"`
}

// LoadFile merges a versioned YAML catalogue into this one. Loaded
// templates replace built-ins of the same name.
func (c *Catalogue) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read template catalogue: %w", err)
	}

	var file catalogueFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse template catalogue: %w", err)
	}
	if file.Version < 1 {
		return fmt.Errorf("template catalogue must declare a version")
	}

	for _, t := range file.Templates {
		if t.Version == 0 {
			t.Version = file.Version
		}
		if err := c.add(t); err != nil {
			return err
		}
	}
	return nil
}

func floatPtr(f float64) *float64 { return &f }

// DefaultCatalogue returns the built-in whitelisted templates over the
// local mirror schema (issues, issue_events).
func DefaultCatalogue() *Catalogue {
	c, err := NewCatalogue(
		Template{
			Name:    "issue-search",
			Version: 1,
			SQL: `SELECT external_id, platform, title, status, assignee, created_at, updated_at
FROM issues
WHERE tenant_id = :tenant_id
  AND (status = :status OR :status = '')
  AND (assignee = :assignee OR :assignee = '')
ORDER BY updated_at DESC
LIMIT :limit`,
			Params: map[string]ParamSchema{
				"status":   {Type: TypeEnum, Enum: []string{"", "open", "in_progress", "in_review", "blocked", "done", "cancelled", "unknown"}, Default: ""},
				"assignee": {Type: TypeString, MaxLen: 128, Default: ""},
				"limit":    {Type: TypeInt, Min: floatPtr(1), Max: floatPtr(200), Default: int64(50)},
			},
		},
		Template{
			Name:    "text-search",
			Version: 1,
			SQL: `SELECT external_id, platform, title, status, updated_at
FROM issues
WHERE tenant_id = :tenant_id
  AND title ILIKE '%' || :text || '%'
ORDER BY updated_at DESC
LIMIT :limit`,
			Params: map[string]ParamSchema{
				"text":  {Type: TypeString, Required: true, MaxLen: 256},
				"limit": {Type: TypeInt, Min: floatPtr(1), Max: floatPtr(200), Default: int64(50)},
			},
		},
		Template{
			Name:    "throughput-metrics",
			Version: 1,
			SQL: `SELECT date_trunc(:bucket, closed_at) AS bucket, count(*) AS closed
FROM issues
WHERE tenant_id = :tenant_id
  AND closed_at IS NOT NULL
  AND closed_at >= :since
GROUP BY bucket
ORDER BY bucket`,
			Params: map[string]ParamSchema{
				"bucket": {Type: TypeEnum, Enum: []string{"day", "week", "month"}, Default: "week"},
				"since":  {Type: TypeDatetime, Required: true},
			},
		},
		Template{
			Name:    "history",
			Version: 1,
			SQL: `SELECT issue_id, event_type, actor, created_at
FROM issue_events
WHERE tenant_id = :tenant_id
  AND issue_id = :issue_id
ORDER BY created_at
LIMIT :limit`,
			Params: map[string]ParamSchema{
				"issue_id": {Type: TypeString, Required: true, MaxLen: 128},
				"limit":    {Type: TypeInt, Min: floatPtr(1), Max: floatPtr(500), Default: int64(100)},
			},
		},
		Template{
			Name:    "workload",
			Version: 1,
			SQL: `SELECT assignee, count(*) AS open_issues
FROM issues
WHERE tenant_id = :tenant_id
  AND status NOT IN ('done', 'cancelled')
GROUP BY assignee
ORDER BY open_issues DESC
LIMIT :limit`,
			Params: map[string]ParamSchema{
				"limit": {Type: TypeInt, Min: floatPtr(1), Max: floatPtr(100), Default: int64(25)},
			},
		},
		Template{
			Name:    "lead-time",
			Version: 1,
			SQL: `SELECT avg(extract(epoch FROM closed_at - created_at)) AS avg_lead_seconds,
       percentile_cont(0.5) WITHIN GROUP (ORDER BY extract(epoch FROM closed_at - created_at)) AS median_lead_seconds
FROM issues
WHERE tenant_id = :tenant_id
  AND closed_at IS NOT NULL
  AND closed_at >= :since`,
			Params: map[string]ParamSchema{
				"since": {Type: TypeDatetime, Required: true},
			},
		},
	)
	if err != nil {
		// Built-in templates are fixed at compile time.
		panic(err)
	}
	return c
}
