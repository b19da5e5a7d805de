package invoke

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"trackgate/internal/domain/audit"
	"trackgate/internal/domain/collector"
	"trackgate/internal/domain/connector"
	"trackgate/internal/domain/idempotency"
	"trackgate/internal/domain/query"
	"trackgate/internal/domain/ratelimit"
	"trackgate/internal/infrastructure/metrics"
	"trackgate/internal/utils/platformerrors"
)

// QueryRunner executes a validated analytical query spec.
type QueryRunner interface {
	Run(ctx context.Context, spec query.Spec) ([]map[string]any, error)
}

// Pipeline is the single governed execution path for every invocation:
// validation, idempotency, rate limiting, dispatch, audit and metrics
// composed around one call.
//
// Concurrency semantics: a second request arriving while the same
// idempotency key is reserved fails fast with IDEMPOTENCY_IN_PROGRESS; it
// never blocks on the in-flight call and never executes a duplicate.
type Pipeline struct {
	catalog  *Catalog
	idem     idempotency.Store
	limiter  ratelimit.Limiter
	registry *connector.Registry
	queries  QueryRunner
	auditor  audit.Recorder
	stats    *collector.Collector
	validate *validator.Validate
	now      func() time.Time
}

func NewPipeline(
	catalog *Catalog,
	idem idempotency.Store,
	limiter ratelimit.Limiter,
	registry *connector.Registry,
	queries QueryRunner,
	auditor audit.Recorder,
	stats *collector.Collector,
) *Pipeline {
	return &Pipeline{
		catalog:  catalog,
		idem:     idem,
		limiter:  limiter,
		registry: registry,
		queries:  queries,
		auditor:  auditor,
		stats:    stats,
		validate: validator.New(),
		now:      time.Now,
	}
}

// Stats exposes the collector for snapshot endpoints.
func (p *Pipeline) Stats() *collector.Collector { return p.stats }

// Catalog exposes the registered actions.
func (p *Pipeline) Catalog() *Catalog { return p.catalog }

// Execute runs one invocation through every pipeline stage. On failure no
// later stage is partially applied; on success of a mutating action exactly
// one audit entry exists, and a supplied idempotency key makes the whole
// call safely retryable.
func (p *Pipeline) Execute(ctx context.Context, req Request) (*Result, error) {
	started := p.now()

	if err := p.validate.StructCtx(ctx, &req); err != nil {
		return nil, validationError(ctx, fmt.Sprintf("invalid request: %v", err))
	}
	def, ok := p.catalog.Lookup(req.Action)
	if !ok {
		return nil, validationError(ctx, fmt.Sprintf("unknown action %q", req.Action))
	}

	// Idempotency admission. The reservation intentionally spans the full
	// call so a concurrent duplicate cannot execute the action twice.
	var reserved bool
	idemKey := idempotency.Key{Tenant: req.TenantID, Action: req.Action, Key: req.IdempotencyKey}
	if req.IdempotencyKey != "" {
		fingerprint, err := idempotency.Fingerprint(req.Parameters)
		if err != nil {
			return nil, validationError(ctx, fmt.Sprintf("fingerprint parameters: %v", err))
		}

		reservation, err := p.idem.Reserve(ctx, idemKey, fingerprint)
		if err != nil {
			return nil, platformerrors.AsError(ctx, platformerrors.LayerIdempotency, err, "idempotency reserve failed")
		}
		switch reservation.State {
		case idempotency.StateReplayed:
			return p.replay(def, reservation.Result, started)
		case idempotency.StateConflict:
			return nil, platformerrors.NewErrorWithContext(ctx, platformerrors.LayerIdempotency,
				platformerrors.ErrorTypeIdempotencyConflict,
				"idempotency key was already used with different parameters", nil,
				map[string]any{"idempotency_key": req.IdempotencyKey})
		case idempotency.StateInProgress:
			e := platformerrors.NewErrorWithContext(ctx, platformerrors.LayerIdempotency,
				platformerrors.ErrorTypeIdempotencyInProgress,
				"a request with this idempotency key is in flight", nil,
				map[string]any{"idempotency_key": req.IdempotencyKey})
			e.RetryAfter = time.Second
			return nil, e
		case idempotency.StateReserved:
			reserved = true
		}
	}

	// Rate limit admission. A rejection after a fresh reservation releases
	// it: no side effect happened, a retry must not wedge.
	decision, err := p.limiter.Allow(ctx, req.TenantID, def.Class)
	if err != nil {
		p.releaseIfReserved(ctx, reserved, idemKey)
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRateLimit, err, "rate limit check failed")
	}
	if !decision.Allowed {
		p.releaseIfReserved(ctx, reserved, idemKey)
		p.sample(def, started, collector.OutcomeRejected)
		metrics.RateLimitRejectionsTotal.WithLabelValues(def.Class).Inc()
		return nil, platformerrors.NewRateLimited(ctx, platformerrors.LayerRateLimit,
			fmt.Sprintf("rate limit exceeded for class %q", def.Class), decision.RetryAfter)
	}

	data, entityRef, before, err := p.dispatch(ctx, def, req)
	if err != nil {
		p.releaseIfReserved(ctx, reserved, idemKey)
		p.sample(def, started, collector.OutcomeFailure)
		return nil, err
	}

	meta := Metadata{}
	if def.Mutating {
		entryID, auditErr := p.auditor.Record(ctx, audit.Entry{
			TenantID:    req.TenantID,
			Actor:       req.Actor,
			Action:      req.Action,
			EntityRef:   entityRef,
			BeforeState: before,
			AfterState:  data,
			Timestamp:   p.now().UTC(),
			Outcome:     audit.OutcomeSuccess,
		})
		if auditErr != nil {
			// The external write already happened; surface a degraded
			// success instead of failing the call.
			metrics.AuditWritesTotal.WithLabelValues("error").Inc()
			log.Error().Err(auditErr).
				Str("tenant_id", req.TenantID).
				Str("action", req.Action).
				Msg("audit write failed after successful action")
			meta.Warning = string(platformerrors.ErrorTypeAuditWriteFailed)
		} else {
			metrics.AuditWritesTotal.WithLabelValues("ok").Inc()
			meta.AuditEntryID = entryID
		}
	}

	p.sample(def, started, collector.OutcomeSuccess)

	if reserved {
		payload, marshalErr := json.Marshal(storedResult{Data: data, AuditEntryID: meta.AuditEntryID})
		if marshalErr != nil {
			log.Error().Err(marshalErr).
				Str("idempotency_key", req.IdempotencyKey).
				Msg("idempotency result encode failed; releasing reservation so retries re-execute")
			p.releaseIfReserved(ctx, reserved, idemKey)
		} else if commitErr := p.idem.Commit(ctx, idemKey, payload); commitErr != nil {
			// Without the release a failed commit would wedge the key as
			// Pending until the TTL expires.
			log.Error().Err(commitErr).
				Str("idempotency_key", req.IdempotencyKey).
				Msg("idempotency commit failed; releasing reservation so retries re-execute")
			p.releaseIfReserved(ctx, reserved, idemKey)
		}
	}

	// A cancelled caller must not observe a false success: the committed
	// idempotency record stays available for a later retry, but the result
	// is dropped here.
	if ctx.Err() != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerPipeline, ctx.Err(), "caller abandoned request")
	}

	meta.LatencyMS = p.now().Sub(started).Milliseconds()
	return &Result{Status: "ok", Data: data, Metadata: meta}, nil
}

// replay serves a stored idempotency record. Later stages are skipped:
// audit was written on first execution, so only replay metrics move.
func (p *Pipeline) replay(def ActionDef, payload []byte, started time.Time) (*Result, error) {
	var stored storedResult
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, fmt.Errorf("decode stored idempotency result: %w", err)
	}
	metrics.IdempotencyReplaysTotal.WithLabelValues(def.Name).Inc()
	return &Result{
		Status: "ok",
		Data:   stored.Data,
		Metadata: Metadata{
			LatencyMS:    p.now().Sub(started).Milliseconds(),
			AuditEntryID: stored.AuditEntryID,
			Replayed:     true,
		},
	}, nil
}

// dispatch routes the validated request to an adapter capability or to the
// query engine and returns the serialized result, the entity reference for
// audit, and the before-state when the action declares one.
func (p *Pipeline) dispatch(ctx context.Context, def ActionDef, req Request) (data json.RawMessage, entityRef string, before json.RawMessage, err error) {
	switch def.Kind {
	case KindQuery:
		if p.queries == nil {
			return nil, "", nil, platformerrors.NewError(ctx, platformerrors.LayerPipeline,
				platformerrors.ErrorTypeNotSupported,
				"analytical queries are disabled: no mirror database configured", nil)
		}
		rows, runErr := p.queries.Run(ctx, query.Spec{
			Template: def.Template,
			TenantID: req.TenantID,
			Params:   req.Parameters,
		})
		if runErr != nil {
			return nil, "", nil, runErr
		}
		data, err = json.Marshal(rows)
		return data, "", nil, err

	case KindPlatform:
		return p.dispatchPlatform(ctx, def, req)

	default:
		return nil, "", nil, platformerrors.NewError(ctx, platformerrors.LayerPipeline,
			platformerrors.ErrorTypeInternal,
			fmt.Sprintf("action %q has unknown dispatch kind", def.Name), nil)
	}
}

func (p *Pipeline) dispatchPlatform(ctx context.Context, def ActionDef, req Request) (json.RawMessage, string, json.RawMessage, error) {
	switch def.Capability {
	case CapabilitySearch:
		var params searchParams
		if err := decodeParams(ctx, p.validate, req.Parameters, &params); err != nil {
			return nil, "", nil, err
		}
		adapter, err := p.registry.Resolve(ctx, connector.Platform(params.Platform))
		if err != nil {
			return nil, "", nil, err
		}
		entities, err := adapter.Search(ctx, params.query())
		if err != nil {
			return nil, "", nil, p.adapterError(ctx, err)
		}
		data, err := json.Marshal(entities)
		return data, "", nil, err

	case CapabilityGet:
		var params getParams
		if err := decodeParams(ctx, p.validate, req.Parameters, &params); err != nil {
			return nil, "", nil, err
		}
		adapter, err := p.registry.Resolve(ctx, connector.Platform(params.Platform))
		if err != nil {
			return nil, "", nil, err
		}
		entity, err := adapter.Get(ctx, params.ID)
		if err != nil {
			return nil, "", nil, p.adapterError(ctx, err)
		}
		data, err := json.Marshal(entity)
		return data, params.ID, nil, err

	case CapabilityCreate:
		var params createParams
		if err := decodeParams(ctx, p.validate, req.Parameters, &params); err != nil {
			return nil, "", nil, err
		}
		adapter, err := p.registry.Resolve(ctx, connector.Platform(params.Platform))
		if err != nil {
			return nil, "", nil, err
		}
		entity, err := adapter.Create(ctx, params.fields())
		if err != nil {
			return nil, "", nil, p.adapterError(ctx, err)
		}
		data, err := json.Marshal(entity)
		return data, entity.ExternalID, nil, err

	case CapabilityUpdate:
		var params updateParams
		if err := decodeParams(ctx, p.validate, req.Parameters, &params); err != nil {
			return nil, "", nil, err
		}
		adapter, err := p.registry.Resolve(ctx, connector.Platform(params.Platform))
		if err != nil {
			return nil, "", nil, err
		}
		before := p.fetchBefore(ctx, def, adapter, params.ID)
		entity, err := adapter.Update(ctx, params.ID, params.fields())
		if err != nil {
			return nil, "", nil, p.adapterError(ctx, err)
		}
		data, err := json.Marshal(entity)
		return data, params.ID, before, err

	case CapabilityTransition:
		var params transitionParams
		if err := decodeParams(ctx, p.validate, req.Parameters, &params); err != nil {
			return nil, "", nil, err
		}
		adapter, err := p.registry.Resolve(ctx, connector.Platform(params.Platform))
		if err != nil {
			return nil, "", nil, err
		}
		before := p.fetchBefore(ctx, def, adapter, params.ID)
		entity, err := adapter.Transition(ctx, params.ID, connector.Status(params.Target))
		if err != nil {
			return nil, "", nil, p.adapterError(ctx, err)
		}
		data, err := json.Marshal(entity)
		return data, params.ID, before, err

	case CapabilityComment:
		var params commentParams
		if err := decodeParams(ctx, p.validate, req.Parameters, &params); err != nil {
			return nil, "", nil, err
		}
		adapter, err := p.registry.Resolve(ctx, connector.Platform(params.Platform))
		if err != nil {
			return nil, "", nil, err
		}
		if err := adapter.Comment(ctx, params.ID, params.Text); err != nil {
			return nil, "", nil, p.adapterError(ctx, err)
		}
		data, err := json.Marshal(map[string]string{"commented": params.ID})
		return data, params.ID, nil, err

	case CapabilityLink:
		var params linkParams
		if err := decodeParams(ctx, p.validate, req.Parameters, &params); err != nil {
			return nil, "", nil, err
		}
		adapter, err := p.registry.Resolve(ctx, connector.Platform(params.Platform))
		if err != nil {
			return nil, "", nil, err
		}
		if err := adapter.Link(ctx, params.ID, params.OtherID, params.Relation); err != nil {
			return nil, "", nil, p.adapterError(ctx, err)
		}
		data, err := json.Marshal(map[string]string{"linked": params.ID, "other": params.OtherID})
		return data, params.ID, nil, err

	default:
		return nil, "", nil, platformerrors.NewError(ctx, platformerrors.LayerPipeline,
			platformerrors.ErrorTypeInternal,
			fmt.Sprintf("action %q has unknown capability", def.Name), nil)
	}
}

// fetchBefore captures the prior entity state for update-style audits.
// A failed fetch degrades to a null before-state rather than blocking the
// action.
func (p *Pipeline) fetchBefore(ctx context.Context, def ActionDef, adapter connector.Adapter, id string) json.RawMessage {
	if !def.FetchBefore {
		return nil
	}
	entity, err := adapter.Get(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("entity_id", id).Msg("before-state fetch failed")
		return nil
	}
	raw, err := json.Marshal(entity)
	if err != nil {
		return nil
	}
	return raw
}

// adapterError keeps typed platform errors intact and classifies everything
// else as an adapter failure.
func (p *Pipeline) adapterError(ctx context.Context, err error) error {
	var platformErr *platformerrors.PlatformError
	if errors.As(err, &platformErr) {
		return err
	}
	return platformerrors.NewError(ctx, platformerrors.LayerConnector,
		platformerrors.ErrorTypeAdapterFailure, "external platform call failed", err)
}

func (p *Pipeline) sample(def ActionDef, started time.Time, outcome collector.Outcome) {
	latency := p.now().Sub(started)
	p.stats.Record(collector.Sample{
		Action:    def.Name,
		Latency:   latency,
		Outcome:   outcome,
		Timestamp: p.now(),
	})
	metrics.InvocationsTotal.WithLabelValues(def.Name, string(outcome)).Inc()
	metrics.InvocationDuration.WithLabelValues(def.Name).Observe(latency.Seconds())
}

func (p *Pipeline) releaseIfReserved(ctx context.Context, reserved bool, key idempotency.Key) {
	if !reserved {
		return
	}
	if err := p.idem.Release(ctx, key); err != nil {
		log.Error().Err(err).Str("idempotency_key", key.Key).Msg("idempotency release failed")
	}
}
