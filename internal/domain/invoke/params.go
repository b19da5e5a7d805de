package invoke

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"trackgate/internal/domain/connector"
	"trackgate/internal/utils/platformerrors"
)

// Parameter structs for the platform actions. Each carries the validation
// schema its action declares; unknown fields are rejected during decode.

type searchParams struct {
	Platform string `json:"platform" validate:"required"`
	Project  string `json:"project,omitempty" validate:"max=128"`
	Text     string `json:"text,omitempty" validate:"max=512"`
	Status   string `json:"status,omitempty" validate:"omitempty,oneof=open in_progress in_review blocked done cancelled unknown"`
	Assignee string `json:"assignee,omitempty" validate:"max=128"`
	Limit    int    `json:"limit,omitempty" validate:"min=0,max=200"`
}

type getParams struct {
	Platform string `json:"platform" validate:"required"`
	ID       string `json:"id" validate:"required,max=128"`
}

type createParams struct {
	Platform    string   `json:"platform" validate:"required"`
	Project     string   `json:"project" validate:"required,max=128"`
	Title       string   `json:"title" validate:"required,max=512"`
	Description string   `json:"description,omitempty" validate:"max=65536"`
	Assignee    string   `json:"assignee,omitempty" validate:"max=128"`
	Labels      []string `json:"labels,omitempty" validate:"max=32,dive,max=64"`
}

type updateParams struct {
	Platform    string   `json:"platform" validate:"required"`
	ID          string   `json:"id" validate:"required,max=128"`
	Title       string   `json:"title,omitempty" validate:"max=512"`
	Description string   `json:"description,omitempty" validate:"max=65536"`
	Assignee    string   `json:"assignee,omitempty" validate:"max=128"`
	Labels      []string `json:"labels,omitempty" validate:"max=32,dive,max=64"`
}

type transitionParams struct {
	Platform string `json:"platform" validate:"required"`
	ID       string `json:"id" validate:"required,max=128"`
	Target   string `json:"target" validate:"required,oneof=open in_progress in_review blocked done cancelled"`
}

type commentParams struct {
	Platform string `json:"platform" validate:"required"`
	ID       string `json:"id" validate:"required,max=128"`
	Text     string `json:"text" validate:"required,max=65536"`
}

type linkParams struct {
	Platform string `json:"platform" validate:"required"`
	ID       string `json:"id" validate:"required,max=128"`
	OtherID  string `json:"other_id" validate:"required,max=128"`
	Relation string `json:"relation" validate:"required,max=64"`
}

func (p searchParams) query() connector.SearchQuery {
	return connector.SearchQuery{
		Project:  p.Project,
		Text:     p.Text,
		Status:   connector.Status(p.Status),
		Assignee: p.Assignee,
		Limit:    p.Limit,
	}
}

func (p createParams) fields() connector.Fields {
	return connector.Fields{
		Project:     p.Project,
		Title:       p.Title,
		Description: p.Description,
		Assignee:    p.Assignee,
		Labels:      p.Labels,
	}
}

func (p updateParams) fields() connector.Fields {
	return connector.Fields{
		Title:       p.Title,
		Description: p.Description,
		Assignee:    p.Assignee,
		Labels:      p.Labels,
	}
}

// decodeParams maps the untyped parameter map onto the action's typed
// schema struct, rejecting unknown fields, then runs validator tags.
func decodeParams(ctx context.Context, v *validator.Validate, raw map[string]any, out any) error {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return validationError(ctx, fmt.Sprintf("encode parameters: %v", err))
	}

	dec := json.NewDecoder(bytes.NewReader(encoded))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return validationError(ctx, fmt.Sprintf("invalid parameters: %v", err))
	}

	if err := v.StructCtx(ctx, out); err != nil {
		return validationError(ctx, fmt.Sprintf("invalid parameters: %v", err))
	}
	return nil
}

func validationError(ctx context.Context, message string) error {
	return platformerrors.NewError(
		ctx,
		platformerrors.LayerPipeline,
		platformerrors.ErrorTypeValidation,
		message,
		nil,
	)
}
