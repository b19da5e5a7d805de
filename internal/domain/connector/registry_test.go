package connector

import (
	"context"
	"testing"

	"trackgate/internal/utils/platformerrors"
)

type stubAdapter struct {
	platform Platform
}

func (a stubAdapter) Platform() Platform { return a.platform }
func (a stubAdapter) Search(context.Context, SearchQuery) ([]Entity, error) {
	return nil, nil
}
func (a stubAdapter) Get(context.Context, string) (*Entity, error)            { return nil, nil }
func (a stubAdapter) Create(context.Context, Fields) (*Entity, error)         { return nil, nil }
func (a stubAdapter) Update(context.Context, string, Fields) (*Entity, error) { return nil, nil }
func (a stubAdapter) Transition(context.Context, string, Status) (*Entity, error) {
	return nil, nil
}
func (a stubAdapter) Comment(context.Context, string, string) error      { return nil }
func (a stubAdapter) Link(context.Context, string, string, string) error { return nil }

func TestRegistryResolve(t *testing.T) {
	registry := NewRegistry(
		stubAdapter{platform: PlatformJira},
		stubAdapter{platform: PlatformLinear},
	)

	adapter, err := registry.Resolve(context.Background(), PlatformJira)
	if err != nil {
		t.Fatalf("resolve jira: %v", err)
	}
	if adapter.Platform() != PlatformJira {
		t.Fatalf("resolved wrong platform: %s", adapter.Platform())
	}
}

func TestRegistryResolveUnknownPlatform(t *testing.T) {
	registry := NewRegistry(stubAdapter{platform: PlatformJira})

	_, err := registry.Resolve(context.Background(), Platform("trello"))
	if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeUnsupportedPlatform) {
		t.Fatalf("expected UNSUPPORTED_PLATFORM, got %v", err)
	}
}

func TestRegistryPlatformsSorted(t *testing.T) {
	registry := NewRegistry(
		stubAdapter{platform: PlatformLinear},
		stubAdapter{platform: PlatformAsana},
		stubAdapter{platform: PlatformGitHub},
	)

	platforms := registry.Platforms()
	want := []Platform{PlatformAsana, PlatformGitHub, PlatformLinear}
	if len(platforms) != len(want) {
		t.Fatalf("platforms = %v, want %v", platforms, want)
	}
	for i := range want {
		if platforms[i] != want[i] {
			t.Fatalf("platforms = %v, want %v", platforms, want)
		}
	}
}

func TestNotSupportedError(t *testing.T) {
	err := NotSupported(context.Background(), PlatformAsana, "link")
	if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotSupported) {
		t.Fatalf("expected NOT_SUPPORTED, got %v", err)
	}
}
