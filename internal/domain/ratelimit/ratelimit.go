package ratelimit

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Decision is the limiter's verdict for one call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter admits or rejects calls per tenant and action class. Allow must
// be an atomic check-and-increment: a rejected call never increments the
// window counter, and concurrent admitted calls never exceed the limit.
type Limiter interface {
	Allow(ctx context.Context, tenant, class string) (Decision, error)
}

// Policy is one limit over one fixed window.
type Policy struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// Config resolves the effective policy for a tenant and action class.
// Precedence: tenant+class override, then class override, then default.
type Config struct {
	Default Policy                       `yaml:"default"`
	Classes map[string]Policy            `yaml:"classes"`
	Tenants map[string]map[string]Policy `yaml:"tenants"`
}

// PolicyFor returns the effective policy for the tenant and class.
func (c Config) PolicyFor(tenant, class string) Policy {
	if byClass, ok := c.Tenants[tenant]; ok {
		if p, ok := byClass[class]; ok {
			return p
		}
	}
	if p, ok := c.Classes[class]; ok {
		return p
	}
	return c.Default
}

// LoadOverrides merges a YAML overrides file into the config. Missing file
// sections keep the existing values.
func (c *Config) LoadOverrides(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read rate limit overrides: %w", err)
	}

	var loaded Config
	if err := yaml.Unmarshal(raw, &loaded); err != nil {
		return fmt.Errorf("parse rate limit overrides: %w", err)
	}

	if loaded.Default.Limit > 0 && loaded.Default.Window > 0 {
		c.Default = loaded.Default
	}
	if len(loaded.Classes) > 0 {
		if c.Classes == nil {
			c.Classes = make(map[string]Policy)
		}
		for class, p := range loaded.Classes {
			c.Classes[class] = p
		}
	}
	if len(loaded.Tenants) > 0 {
		if c.Tenants == nil {
			c.Tenants = make(map[string]map[string]Policy)
		}
		for tenant, byClass := range loaded.Tenants {
			if c.Tenants[tenant] == nil {
				c.Tenants[tenant] = make(map[string]Policy)
			}
			for class, p := range byClass {
				c.Tenants[tenant][class] = p
			}
		}
	}
	return nil
}
