package connector

import (
	"context"
	"fmt"
	"sort"

	"trackgate/internal/utils/platformerrors"
)

// Registry is the constructed-once lookup table from platform identifier to
// adapter. It is populated at startup and read-only afterwards, so lookups
// need no synchronization.
type Registry struct {
	adapters map[Platform]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[Platform]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Platform()] = a
	}
	return &Registry{adapters: m}
}

// Resolve returns the adapter for the platform or an UNSUPPORTED_PLATFORM
// error when none is registered.
func (r *Registry) Resolve(ctx context.Context, platform Platform) (Adapter, error) {
	adapter, ok := r.adapters[platform]
	if !ok {
		return nil, platformerrors.NewErrorWithContext(
			ctx,
			platformerrors.LayerConnector,
			platformerrors.ErrorTypeUnsupportedPlatform,
			fmt.Sprintf("no adapter registered for platform %q", platform),
			nil,
			map[string]any{"platform": string(platform)},
		)
	}
	return adapter, nil
}

// Platforms lists the registered platform identifiers in stable order.
func (r *Registry) Platforms() []Platform {
	out := make([]Platform, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NotSupported builds the uniform error adapters return for capabilities
// their platform lacks.
func NotSupported(ctx context.Context, platform Platform, capability string) error {
	return platformerrors.NewErrorWithContext(
		ctx,
		platformerrors.LayerConnector,
		platformerrors.ErrorTypeNotSupported,
		fmt.Sprintf("%s does not support %s", platform, capability),
		nil,
		map[string]any{"platform": string(platform), "capability": capability},
	)
}
