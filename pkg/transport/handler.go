package transport

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sylphx/lens/pkg/analyzer"
	"github.com/sylphx/lens/pkg/logger"
	"github.com/sylphx/lens/pkg/models"
	"github.com/sylphx/lens/pkg/optimistic"
	"github.com/sylphx/lens/pkg/resource"
	"github.com/sylphx/lens/pkg/schema"
	"github.com/sylphx/lens/pkg/store"
)

// Handler dispatches request envelopes.
type Handler struct {
	Registry   *schema.Registry
	Service    *resource.Service
	Optimistic *optimistic.Manager
}

// Handle executes one request. Subscription requests are handled by
// the stream endpoint, not here.
func (h *Handler) Handle(ctx context.Context, req Request) (*Response, *Error) {
	if len(req.Path) == 0 {
		return nil, badRequest("empty path")
	}
	switch req.Type {
	case "query", "mutation":
	case "subscription":
		return nil, badRequest("subscriptions must use the stream endpoint")
	default:
		return nil, badRequest("unknown request type %q", req.Type)
	}
	if req.Path[0] == "optimistic" {
		return h.handleOptimistic(ctx, req)
	}
	return h.handleResource(ctx, req)
}

func (h *Handler) handleResource(ctx context.Context, req Request) (*Response, *Error) {
	if len(req.Path) != 2 {
		return nil, badRequest("resource path must be [resource, operation]")
	}
	name, op := req.Path[0], req.Path[1]
	api, err := h.Service.Resource(name)
	if err != nil {
		return nil, notFound("unknown resource %q", name)
	}
	sel, err := schema.ParseSelection(req.Select)
	if err != nil {
		return nil, badRequest("%v", err)
	}

	switch op {
	case "get", "list":
		if req.Type != "query" {
			return nil, typeMismatch(req.Type, op)
		}
	case "create", "update", "delete":
		if req.Type != "mutation" {
			return nil, typeMismatch(req.Type, op)
		}
	default:
		return nil, badRequest("unknown operation %q", op)
	}

	switch op {
	case "get":
		id, ok := req.Input["id"].(string)
		if !ok || id == "" {
			return nil, badRequest("get requires an id input")
		}
		meta, werr := h.analyze(api.Definition(), sel, req.Input)
		if werr != nil {
			return nil, werr
		}
		entity, err := api.GetByID(ctx, id, sel)
		if err != nil {
			return nil, wrap(err)
		}
		if entity == nil {
			return nil, notFound("%s %q not found", name, id)
		}
		return &Response{Data: entity, Meta: meta}, nil

	case "list":
		opts, werr := listOptions(req.Input)
		if werr != nil {
			return nil, werr
		}
		meta, werr := h.analyze(api.Definition(), sel, req.Input)
		if werr != nil {
			return nil, werr
		}
		rows, err := api.List(ctx, opts, sel)
		if err != nil {
			return nil, wrap(err)
		}
		return &Response{Data: rows, Meta: meta}, nil

	case "create":
		data, werr := dataInput(req.Input)
		if werr != nil {
			return nil, werr
		}
		entity, err := api.Create(ctx, data, mutateOptions(req.Input))
		if err != nil {
			return nil, wrap(err)
		}
		return &Response{Data: entity}, nil

	case "update":
		id, ok := req.Input["id"].(string)
		if !ok || id == "" {
			return nil, badRequest("update requires an id input")
		}
		data, werr := dataInput(req.Input)
		if werr != nil {
			return nil, werr
		}
		entity, err := api.Update(ctx, id, data, mutateOptions(req.Input))
		if err != nil {
			return nil, wrap(err)
		}
		return &Response{Data: entity}, nil

	default: // delete
		id, ok := req.Input["id"].(string)
		if !ok || id == "" {
			return nil, badRequest("delete requires an id input")
		}
		if err := api.Delete(ctx, id, mutateOptions(req.Input)); err != nil {
			return nil, wrap(err)
		}
		return &Response{Data: map[string]any{"id": id, "deleted": true}}, nil
	}
}

// analyze profiles query shapes. The analysis is always logged; it is
// returned in the response meta when the caller asks to explain.
func (h *Handler) analyze(def *schema.Resource, sel schema.Selection, input map[string]any) (map[string]any, *Error) {
	a, err := analyzer.Analyze(h.Registry, def, sel)
	if err != nil {
		return nil, badRequest("%v", err)
	}
	logger.Debug("query_analyzed", "summary", a.Describe())
	if explain, _ := input["explain"].(bool); !explain {
		return nil, nil
	}
	return map[string]any{
		"depth":             a.Depth,
		"relationships":     a.Relationships,
		"estimated_queries": a.EstimatedQueries,
		"has_n_plus_one":    a.HasNPlusOne,
		"complexity":        a.Complexity(),
	}, nil
}

func (h *Handler) handleOptimistic(ctx context.Context, req Request) (*Response, *Error) {
	if h.Optimistic == nil {
		return nil, notFound("optimistic layer not enabled")
	}
	if len(req.Path) != 2 {
		return nil, badRequest("optimistic path must be [optimistic, operation]")
	}
	op := req.Path[1]
	session, _ := req.Input["session"].(string)
	if session == "" {
		return nil, badRequest("optimistic operations require a session input")
	}

	switch op {
	case "state":
		if req.Type != "query" {
			return nil, typeMismatch(req.Type, op)
		}
		return &Response{Data: h.Optimistic.Project(session)}, nil
	case "apply", "confirm", "rollback", "reconcile":
		if req.Type != "mutation" {
			return nil, typeMismatch(req.Type, op)
		}
	default:
		return nil, badRequest("unknown optimistic operation %q", op)
	}

	switch op {
	case "apply":
		var operation optimistic.Operation
		if werr := reshape(req.Input["op"], &operation); werr != nil {
			return nil, werr
		}
		id, err := h.Optimistic.Apply(session, operation)
		if err != nil {
			return nil, validation(err)
		}
		return &Response{Data: map[string]any{"id": id}}, nil

	case "confirm", "rollback":
		id, ok := opID(req.Input["id"])
		if !ok {
			return nil, badRequest("%s requires a numeric id", op)
		}
		if op == "confirm" {
			var serverData *models.Message
			if raw, ok := req.Input["serverData"]; ok && raw != nil {
				serverData = &models.Message{}
				if werr := reshape(raw, serverData); werr != nil {
					return nil, werr
				}
			}
			h.Optimistic.Confirm(session, id, serverData)
		} else {
			h.Optimistic.Rollback(session, id)
		}
		return &Response{Data: map[string]any{"id": id}}, nil

	default: // reconcile
		var ev optimistic.ServerEvent
		if werr := reshape(req.Input["event"], &ev); werr != nil {
			return nil, werr
		}
		h.Optimistic.Reconcile(session, ev)
		return &Response{Data: h.Optimistic.Project(session)}, nil
	}
}

// reshape converts a decoded JSON value into a typed struct.
func reshape(in any, out any) *Error {
	if in == nil {
		return badRequest("missing input payload")
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return badRequest("%v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return badRequest("%v", err)
	}
	return nil
}

func opID(v any) (uint64, bool) {
	switch n := v.(type) {
	case float64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case uint64:
		return n, true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	}
	return 0, false
}

func dataInput(input map[string]any) (map[string]any, *Error) {
	data, ok := input["data"].(map[string]any)
	if !ok {
		return nil, badRequest("mutation requires a data object")
	}
	return data, nil
}

func mutateOptions(input map[string]any) resource.MutateOptions {
	skip, _ := input["skipHooks"].(bool)
	return resource.MutateOptions{SkipHooks: skip}
}

func listOptions(input map[string]any) (store.ListOptions, *Error) {
	var opts store.ListOptions
	if input == nil {
		return opts, nil
	}
	if w, ok := input["where"]; ok {
		m, ok := w.(map[string]any)
		if !ok {
			return opts, badRequest("where must be an object")
		}
		opts.Where = m
	}
	if o, ok := input["orderBy"].(string); ok {
		opts.OrderBy = o
	}
	if d, ok := input["desc"].(bool); ok {
		opts.Desc = d
	}
	if n, ok := input["limit"].(float64); ok {
		opts.Limit = int(n)
	}
	if n, ok := input["offset"].(float64); ok {
		opts.Offset = int(n)
	}
	if c, ok := input["cursor"].(string); ok {
		opts.Cursor = c
	}
	return opts, nil
}

// wrap maps internal errors onto wire errors. Schema validation and
// hook failures surface as validation errors; everything else is
// internal.
func wrap(err error) *Error {
	if errors.Is(err, store.ErrNotFound) {
		return notFound("%v", err)
	}
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		return validation(err)
	}
	var herr *resource.HookError
	if errors.As(err, &herr) {
		return validation(err)
	}
	return internal(err)
}
