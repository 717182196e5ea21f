// Package resource generates the CRUD and subscribe surface for every
// registered schema resource. One Service owns the store, the event
// bus and one batching loader per resource; the generated APIs are
// thin handles over it.
package resource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sylphx/lens/pkg/loader"
	"github.com/sylphx/lens/pkg/pubsub"
	"github.com/sylphx/lens/pkg/schema"
	"github.com/sylphx/lens/pkg/store"
	"github.com/sylphx/lens/pkg/subscribe"
	"github.com/sylphx/lens/pkg/utils"
)

// Deps are the collaborators a Service is generated over.
type Deps struct {
	Registry *schema.Registry
	Store    store.Store
	Bus      *pubsub.Bus
	// Channels names the item and list channels mutations publish on.
	// The subscription router must be built over the same function or
	// subscriptions will never see the publishes. Nil means
	// subscribe.DefaultChannel.
	Channels subscribe.ChannelFunc
	// LoaderOpts tune the per-resource loaders. Zero values take the
	// loader package defaults.
	LoaderOpts loader.Options
}

// Service owns the generated APIs and their shared loaders.
type Service struct {
	reg      *schema.Registry
	store    store.Store
	bus      *pubsub.Bus
	channels subscribe.ChannelFunc
	lopts    loader.Options

	mu      sync.Mutex
	loaders map[string]*loader.Loader
}

// NewService builds a service over the registry. Registry and Store
// are required; Bus may be nil when no subscribers exist.
func NewService(deps Deps) (*Service, error) {
	if deps.Registry == nil {
		return nil, fmt.Errorf("resource: registry is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("resource: store is required")
	}
	channels := deps.Channels
	if channels == nil {
		channels = subscribe.DefaultChannel
	}
	return &Service{
		reg:      deps.Registry,
		store:    deps.Store,
		bus:      deps.Bus,
		channels: channels,
		lopts:    deps.LoaderOpts,
		loaders:  make(map[string]*loader.Loader),
	}, nil
}

// Channels exposes the naming function mutations publish through, for
// building the subscription router over the same one.
func (s *Service) Channels() subscribe.ChannelFunc { return s.channels }

// Resource returns the generated API for a registered resource.
func (s *Service) Resource(name string) (*API, error) {
	def, ok := s.reg.Get(name)
	if !ok {
		return nil, fmt.Errorf("resource: %q is not registered", name)
	}
	return &API{svc: s, def: def}, nil
}

// Loader returns the shared batching loader for a resource, creating
// it on first use. The batch function resolves ids through the store;
// a missing id yields a nil value, not an error.
func (s *Service) Loader(name string) *loader.Loader {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.loaders[name]; ok {
		return l
	}
	resourceName := name
	l := loader.New(func(ctx context.Context, ids []string) []loader.Result {
		entities, err := s.store.GetMany(ctx, resourceName, ids)
		if err != nil {
			out := make([]loader.Result, len(ids))
			for i := range out {
				out[i] = loader.Result{Err: err}
			}
			return out
		}
		out := make([]loader.Result, len(ids))
		for i, e := range entities {
			if e != nil {
				out[i] = loader.Result{Value: e}
			}
		}
		return out
	}, s.lopts)
	s.loaders[name] = l
	return l
}

// HookError wraps a failure returned by a lifecycle hook so transports
// can classify it with errors.As instead of matching message text.
type HookError struct {
	Hook string
	Err  error
}

func (e *HookError) Error() string { return e.Hook + " hook: " + e.Err.Error() }

func (e *HookError) Unwrap() error { return e.Err }

// MutateOptions adjust one mutation call.
type MutateOptions struct {
	// SkipHooks bypasses all lifecycle hooks for this call.
	SkipHooks bool
}

func mergeMutateOptions(opts []MutateOptions) MutateOptions {
	var out MutateOptions
	for _, o := range opts {
		if o.SkipHooks {
			out.SkipHooks = true
		}
	}
	return out
}

// API is the generated surface for one resource.
type API struct {
	svc *Service
	def *schema.Resource
}

// Name returns the resource name.
func (a *API) Name() string { return a.def.Name }

// Definition exposes the schema definition backing this API.
func (a *API) Definition() *schema.Resource { return a.def }

func (a *API) publish(channel string, payload any) {
	if a.svc.bus == nil {
		return
	}
	a.svc.bus.Publish(channel, "mutation", payload)
}

// publishItem and publishList announce a mutation on the channels the
// shared naming function derives, the same ones Subscribe resolves.
func (a *API) publishItem(id string, payload any) {
	subscribe.AutoPublish(a.svc.bus, a.svc.channels, []string{a.def.Name}, map[string]any{"id": id}, payload)
}

func (a *API) publishList(payload any) {
	subscribe.AutoPublish(a.svc.bus, a.svc.channels, []string{a.def.Name}, nil, payload)
}

// Event channels follow the resource:<name>:<event> convention; item
// and list channels come from the shared naming function.

func (a *API) createdChannel() string { return "resource:" + a.def.Name + ":created" }
func (a *API) updatedChannel(id string) string {
	return "resource:" + a.def.Name + ":" + id + ":updated"
}
func (a *API) deletedChannel(id string) string {
	return "resource:" + a.def.Name + ":" + id + ":deleted"
}

// Subscribe opens a bus subscription on an item or list channel for
// this resource. An empty id subscribes to the list channel. Channels
// come from the same naming function mutations publish through.
func (a *API) Subscribe(id string) (*pubsub.Subscription, error) {
	if a.svc.bus == nil {
		return nil, fmt.Errorf("resource: no event bus configured")
	}
	var input map[string]any
	if id != "" {
		input = map[string]any{"id": id}
	}
	ch := a.svc.channels([]string{a.def.Name}, input)
	if ch == "" {
		return nil, fmt.Errorf("resource: no channel for %s", a.def.Name)
	}
	return a.svc.bus.Subscribe(ch), nil
}

// GetByID loads one entity through the batching loader and projects it
// through the selection. A missing id returns (nil, nil).
func (a *API) GetByID(ctx context.Context, id string, sel schema.Selection) (map[string]any, error) {
	if err := sel.Check(a.svc.reg, a.def); err != nil {
		return nil, err
	}
	v, err := a.svc.Loader(a.def.Name).Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	entity, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("resource: loader returned %T for %s/%s", v, a.def.Name, id)
	}
	return a.svc.project(ctx, a.def, entity, sel)
}

// List fetches entities matching opts and projects each one.
func (a *API) List(ctx context.Context, opts store.ListOptions, sel schema.Selection) ([]map[string]any, error) {
	if err := sel.Check(a.svc.reg, a.def); err != nil {
		return nil, err
	}
	entities, err := a.svc.store.List(ctx, a.def.Name, opts)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		p, err := a.svc.project(ctx, a.def, e, sel)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Create validates and persists a new entity. A missing id is
// generated. The created entity is primed into the loader cache and
// announced on the created and list channels.
func (a *API) Create(ctx context.Context, data map[string]any, opts ...MutateOptions) (map[string]any, error) {
	o := mergeMutateOptions(opts)
	if !o.SkipHooks && a.def.Hooks.BeforeCreate != nil {
		next, err := a.def.Hooks.BeforeCreate(ctx, data)
		if err != nil {
			return nil, &HookError{Hook: "beforeCreate", Err: err}
		}
		data = next
	}
	if err := a.def.ValidateCreate(data); err != nil {
		return nil, err
	}
	entity := make(map[string]any, len(data)+2)
	for k, v := range data {
		entity[k] = v
	}
	id, _ := entity["id"].(string)
	if id == "" {
		id = utils.GenID()
		entity["id"] = id
	}
	entity["createdAt"] = time.Now().UTC().UnixNano()
	if err := a.svc.store.Put(ctx, a.def.Name, id, entity); err != nil {
		return nil, err
	}
	a.svc.Loader(a.def.Name).ForcePrime(id, entity)

	a.publish(a.createdChannel(), entity)
	a.publishList(entity)
	if !o.SkipHooks && a.def.Hooks.AfterCreate != nil {
		if err := a.def.Hooks.AfterCreate(ctx, entity); err != nil {
			return nil, &HookError{Hook: "afterCreate", Err: err}
		}
	}
	return entity, nil
}

// Update merges data into an existing entity. Updating a missing id is
// an error.
func (a *API) Update(ctx context.Context, id string, data map[string]any, opts ...MutateOptions) (map[string]any, error) {
	o := mergeMutateOptions(opts)
	existing, err := a.svc.store.Get(ctx, a.def.Name, id)
	if err != nil {
		return nil, err
	}
	if !o.SkipHooks && a.def.Hooks.BeforeUpdate != nil {
		next, err := a.def.Hooks.BeforeUpdate(ctx, id, data)
		if err != nil {
			return nil, &HookError{Hook: "beforeUpdate", Err: err}
		}
		data = next
	}
	if err := a.def.ValidateUpdate(data); err != nil {
		return nil, err
	}
	for k, v := range data {
		if k == "id" {
			continue
		}
		existing[k] = v
	}
	existing["updatedAt"] = time.Now().UTC().UnixNano()
	if err := a.svc.store.Put(ctx, a.def.Name, id, existing); err != nil {
		return nil, err
	}
	a.svc.Loader(a.def.Name).ForcePrime(id, existing)

	a.publish(a.updatedChannel(id), existing)
	a.publishItem(id, existing)
	a.publishList(existing)
	if !o.SkipHooks && a.def.Hooks.AfterUpdate != nil {
		if err := a.def.Hooks.AfterUpdate(ctx, existing); err != nil {
			return nil, &HookError{Hook: "afterUpdate", Err: err}
		}
	}
	return existing, nil
}

// Delete removes an entity and clears it from the loader cache.
// Deleting a missing id is an error.
func (a *API) Delete(ctx context.Context, id string, opts ...MutateOptions) error {
	o := mergeMutateOptions(opts)
	if !o.SkipHooks && a.def.Hooks.BeforeDelete != nil {
		if err := a.def.Hooks.BeforeDelete(ctx, id); err != nil {
			return &HookError{Hook: "beforeDelete", Err: err}
		}
	}
	if err := a.svc.store.Delete(ctx, a.def.Name, id); err != nil {
		return err
	}
	a.svc.Loader(a.def.Name).Clear(id)

	a.publish(a.deletedChannel(id), map[string]any{"id": id})
	a.publishItem(id, map[string]any{"id": id, "deleted": true})
	a.publishList(map[string]any{"id": id, "deleted": true})
	if !o.SkipHooks && a.def.Hooks.AfterDelete != nil {
		if err := a.def.Hooks.AfterDelete(ctx, id); err != nil {
			return &HookError{Hook: "afterDelete", Err: err}
		}
	}
	return nil
}
