package query

import (
	"context"
	"fmt"
	"regexp"

	"trackgate/internal/utils/platformerrors"
)

// Spec is a validated query request. TenantID is injected by the pipeline
// from the authenticated request; it is never a caller-suppliable filter.
type Spec struct {
	Template string
	TenantID string
	Params   map[string]any
}

// Statement is an injection-safe parameterized statement. Every caller
// value appears in Args, never in SQL.
type Statement struct {
	SQL  string
	Args []any
}

// Engine renders whitelisted templates into parameterized statements.
// It owns validation and rendering only; execution happens elsewhere.
type Engine struct {
	catalogue *Catalogue
}

func NewEngine(catalogue *Catalogue) *Engine {
	return &Engine{catalogue: catalogue}
}

// placeholder tokens in template SQL: :tenant_id plus one per declared
// parameter. Tokens are replaced with positional binds during render.
var placeholderRe = regexp.MustCompile(`:([a-z][a-z0-9_]*)`)

const tenantToken = "tenant_id"

// Render validates the spec against the named template and produces the
// bound statement. Any deviation from the declared schema is rejected
// before anything touches SQL.
func (e *Engine) Render(ctx context.Context, spec Spec) (Statement, error) {
	tmpl, ok := e.catalogue.Lookup(spec.Template)
	if !ok {
		return Statement{}, rejected(ctx, fmt.Sprintf("unknown query template %q", spec.Template), spec.Template)
	}
	if spec.TenantID == "" {
		return Statement{}, rejected(ctx, "tenant id is required", spec.Template)
	}

	for name := range spec.Params {
		if _, declared := tmpl.Params[name]; !declared {
			return Statement{}, rejected(ctx, fmt.Sprintf("parameter %q is not declared by template %q", name, tmpl.Name), tmpl.Name)
		}
	}

	values := make(map[string]any, len(tmpl.Params))
	for name, schema := range tmpl.Params {
		raw, present := spec.Params[name]
		if !present {
			if schema.Required {
				return Statement{}, rejected(ctx, fmt.Sprintf("missing required parameter %q", name), tmpl.Name)
			}
			values[name] = schema.Default
			continue
		}
		coerced, err := schema.validate(name, raw)
		if err != nil {
			return Statement{}, rejected(ctx, err.Error(), tmpl.Name)
		}
		values[name] = coerced
	}

	var args []any
	var renderErr error
	sql := placeholderRe.ReplaceAllStringFunc(tmpl.SQL, func(token string) string {
		name := token[1:]
		if name == tenantToken {
			args = append(args, spec.TenantID)
			return "?"
		}
		v, ok := values[name]
		if !ok {
			renderErr = fmt.Errorf("template %q references undeclared placeholder %q", tmpl.Name, name)
			return token
		}
		args = append(args, v)
		return "?"
	})
	if renderErr != nil {
		return Statement{}, rejected(ctx, renderErr.Error(), tmpl.Name)
	}

	return Statement{SQL: sql, Args: args}, nil
}

func rejected(ctx context.Context, message, template string) error {
	return platformerrors.NewErrorWithContext(
		ctx,
		platformerrors.LayerQuery,
		platformerrors.ErrorTypeQueryRejected,
		message,
		nil,
		map[string]any{"template": template},
	)
}
