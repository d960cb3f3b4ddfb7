package container

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// ── Providers ─────────────────────────────────────────────────────────────────

// Provider describes how a token is satisfied when registered with Register.
type Provider interface {
	descriptor(r *Registry, token Token) (*Descriptor, error)
}

type providerFunc func(r *Registry, token Token) (*Descriptor, error)

func (f providerFunc) descriptor(r *Registry, token Token) (*Descriptor, error) { return f(r, token) }

// Value registers a pre-built instance. Every Resolve returns it unchanged.
//
//	c.Register(config.Token, container.Value(cfg))
func Value(v any) Provider {
	return providerFunc(func(_ *Registry, token Token) (*Descriptor, error) {
		return &Descriptor{
			Token:    token,
			Lifetime: LifetimeSingleton,
			Scope:    DefaultScope,
			value:    v,
			hasValue: true,
		}, nil
	})
}

// FactoryFunc registers a zero-argument factory. The result is cached, so
// the function runs at most once per successful construction.
func FactoryFunc(fn func() (any, error)) Provider {
	return providerFunc(func(_ *Registry, token Token) (*Descriptor, error) {
		return &Descriptor{
			Token:    token,
			Lifetime: LifetimeSingleton,
			Scope:    DefaultScope,
			Factory:  func(...any) (any, error) { return fn() },
		}, nil
	})
}

// Class registers the registry declaration of source. It fails with
// NotInjectableError when source was never declared.
func Class(source Token) Provider {
	return providerFunc(func(r *Registry, token Token) (*Descriptor, error) {
		d, ok := r.Lookup(source)
		if !ok {
			return nil, &NotInjectableError{Token: source}
		}
		d.Token = token
		return &d, nil
	})
}

// ── Container ─────────────────────────────────────────────────────────────────

// Resolver is anything that hands out instances by token.
type Resolver interface {
	Resolve(token Token) (any, error)
}

// Container resolves tokens into instances using the declarations it has
// been given. It is safe for concurrent use.
//
// Constructors must not call back into the container for their own token;
// dependencies are passed to them as arguments instead.
type Container struct {
	registry *Registry

	mu sync.RWMutex

	// token → active descriptor
	registrations map[Token]*Descriptor

	// token → cached singleton instance
	instances map[Token]any

	// contextual[consumer][needed] = replacement token
	contextual map[Token]map[Token]Token

	afterResolving []func(Token, any)

	// tokens whose graph passed checkCycles; reset on every graph mutation
	acyclic map[Token]bool

	// per-token construction guards
	guardsMu sync.Mutex
	guards   map[Token]*sync.Mutex
}

// New creates an empty container reading class declarations from registry.
// A nil registry gets a private empty one.
func New(registry *Registry) *Container {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Container{
		registry:      registry,
		registrations: make(map[Token]*Descriptor),
		instances:     make(map[Token]any),
		contextual:    make(map[Token]map[Token]Token),
		acyclic:       make(map[Token]bool),
		guards:        make(map[Token]*sync.Mutex),
	}
}

// Registry returns the registry the container reads declarations from.
func (c *Container) Registry() *Registry { return c.registry }

// ── Registration ──────────────────────────────────────────────────────────────

// Register binds token to provider, replacing any earlier registration and
// dropping its cached instance.
//
//	c.Register("clock", container.Value(time.Now))
//	c.Register(container.TypeOf[*Mailer](), container.Class(container.TypeOf[*Mailer]()))
func (c *Container) Register(token Token, provider Provider) error {
	d, err := provider.descriptor(c.registry, token)
	if err != nil {
		return err
	}

	g := c.guard(token)
	g.Lock()
	defer g.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.registrations[token] = d
	c.graphChanged()
	delete(c.instances, token)
	if d.hasValue {
		c.instances[token] = d.value
	}
	return nil
}

// RegisterClass registers a declared token under its own name.
func (c *Container) RegisterClass(token Token) error {
	return c.Register(token, Class(token))
}

// Unregister removes the registration and cached instance of token.
func (c *Container) Unregister(token Token) {
	g := c.guard(token)
	g.Lock()
	defer g.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.registrations, token)
	delete(c.instances, token)
	c.graphChanged()
}

// graphChanged forgets earlier cycle checks. It must be called with mu held.
func (c *Container) graphChanged() {
	if len(c.acyclic) > 0 {
		c.acyclic = make(map[Token]bool)
	}
}

// ── Resolution ────────────────────────────────────────────────────────────────

// Resolve returns the instance for token. Singletons are built once and
// cached; transients are built on every call.
func (c *Container) Resolve(token Token) (any, error) {
	return c.resolve(token, &resolution{}, false)
}

// ResolveOptional is Resolve that returns (nil, nil) for an unregistered token.
func (c *Container) ResolveOptional(token Token) (any, error) {
	return c.resolve(token, &resolution{}, true)
}

// resolution is the stack of tokens under construction in one Resolve call tree.
type resolution struct {
	stack []Token
}

func (r *resolution) cycle(token Token) []Token {
	for i, t := range r.stack {
		if t == token {
			path := append([]Token(nil), r.stack[i:]...)
			return append(path, token)
		}
	}
	return nil
}

func (r *resolution) push(token Token) { r.stack = append(r.stack, token) }
func (r *resolution) pop()             { r.stack = r.stack[:len(r.stack)-1] }

func (c *Container) resolve(token Token, res *resolution, optional bool) (any, error) {
	if path := res.cycle(token); path != nil {
		return nil, &CircularDependencyError{Path: path}
	}

	c.mu.RLock()
	d, registered := c.registrations[token]
	inst, cached := c.instances[token]
	c.mu.RUnlock()

	if cached {
		return inst, nil
	}
	if !registered {
		if optional {
			return nil, nil
		}
		return nil, &ServiceNotFoundError{Token: token}
	}

	// The whole graph is checked before any guard is taken, so cycles fail
	// fast instead of leaving two goroutines waiting on each other's guards.
	if len(res.stack) == 0 {
		if err := c.checkCycles(token); err != nil {
			return nil, err
		}
	}

	if !d.Singleton() {
		return c.build(token, d, res)
	}
	return c.resolveSingleton(token, res)
}

func (c *Container) resolveSingleton(token Token, res *resolution) (any, error) {
	g := c.guard(token)
	g.Lock()
	defer g.Unlock()

	// Someone else may have finished while we waited.
	c.mu.RLock()
	inst, cached := c.instances[token]
	d, registered := c.registrations[token]
	c.mu.RUnlock()
	if cached {
		return inst, nil
	}
	if !registered {
		return nil, &ServiceNotFoundError{Token: token}
	}

	inst, err := c.build(token, d, res)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.registrations[token] == d {
		c.instances[token] = inst
	}
	c.mu.Unlock()
	return inst, nil
}

// build runs constructor injection then property injection for one token.
func (c *Container) build(token Token, d *Descriptor, res *resolution) (any, error) {
	res.push(token)
	defer res.pop()

	args := make([]any, len(d.Dependencies))
	for i, dep := range d.Dependencies {
		v, err := c.resolve(c.contextualToken(token, dep.Token), res, false)
		if err != nil {
			if dep.Optional && absent(err, c.contextualToken(token, dep.Token)) {
				continue
			}
			return nil, err
		}
		args[i] = v
	}

	if d.Factory == nil {
		return nil, &ServiceConstructionError{Token: token, Err: errors.New("no constructor declared")}
	}
	inst, err := construct(d.Factory, args)
	if err != nil {
		return nil, &ServiceConstructionError{Token: token, Err: err}
	}
	if inst == nil {
		return nil, &ServiceConstructionError{Token: token, Err: errors.New("constructor returned nil")}
	}

	for _, p := range d.Properties {
		v, err := c.resolve(c.contextualToken(token, p.Token), res, false)
		if err != nil {
			if p.Optional && absent(err, c.contextualToken(token, p.Token)) {
				continue
			}
			return nil, err
		}
		if err := setField(inst, p.Name, v); err != nil {
			return nil, &ServiceConstructionError{Token: token, Err: err}
		}
	}

	c.fireAfterResolving(token, inst)
	return inst, nil
}

// absent reports whether err says token itself is unregistered. A missing
// token deeper in the graph, or a construction error wrapping one, is not
// an absence of token.
func absent(err error, token Token) bool {
	nf, ok := err.(*ServiceNotFoundError)
	return ok && nf.Token == token
}

func construct(fn Constructor, args []any) (inst any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			inst = nil
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn(args...)
}

func setField(instance any, name string, value any) error {
	rv := reflect.ValueOf(instance)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("property %s: %T is not a pointer to a struct", name, instance)
	}
	field := rv.Elem().FieldByName(name)
	if !field.IsValid() {
		return fmt.Errorf("property %s: %T has no such field", name, instance)
	}
	if !field.CanSet() {
		return fmt.Errorf("property %s: field of %T is not settable", name, instance)
	}
	if value == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}
	v := reflect.ValueOf(value)
	if !v.Type().AssignableTo(field.Type()) {
		return fmt.Errorf("property %s: cannot assign %T to %s", name, value, field.Type())
	}
	field.Set(v)
	return nil
}

// checkCycles walks the registered dependency graph from root without
// building anything. Cached and value tokens end a branch. A root that
// passed is not walked again until the graph changes.
func (c *Container) checkCycles(root Token) error {
	c.mu.RLock()
	known := c.acyclic[root]
	c.mu.RUnlock()
	if known {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.walkCycles(root); err != nil {
		return err
	}
	c.acyclic[root] = true
	return nil
}

// walkCycles must be called with mu held.
func (c *Container) walkCycles(root Token) error {

	done := make(map[Token]bool)
	res := &resolution{}

	var visit func(t Token) error
	visit = func(t Token) error {
		if path := res.cycle(t); path != nil {
			return &CircularDependencyError{Path: path}
		}
		if done[t] {
			return nil
		}
		d, ok := c.registrations[t]
		if !ok || d.hasValue {
			return nil
		}
		if _, cached := c.instances[t]; cached {
			return nil
		}

		res.push(t)
		for _, dep := range d.Dependencies {
			if err := visit(c.contextualLocked(t, dep.Token)); err != nil {
				return err
			}
		}
		for _, p := range d.Properties {
			if err := visit(c.contextualLocked(t, p.Token)); err != nil {
				return err
			}
		}
		res.pop()
		done[t] = true
		return nil
	}
	return visit(root)
}

func (c *Container) guard(token Token) *sync.Mutex {
	c.guardsMu.Lock()
	defer c.guardsMu.Unlock()
	g, ok := c.guards[token]
	if !ok {
		g = &sync.Mutex{}
		c.guards[token] = g
	}
	return g
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// Has reports whether token is registered.
func (c *Container) Has(token Token) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.registrations[token]
	return ok
}

// RegisteredServices returns the registered tokens, sorted.
func (c *Container) RegisteredServices() []Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Token, 0, len(c.registrations))
	for t := range c.registrations {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Instances returns a copy of the cached singleton instances.
func (c *Container) Instances() map[Token]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[Token]any, len(c.instances))
	for t, inst := range c.instances {
		out[t] = inst
	}
	return out
}

// Clear drops every registration, cached instance and contextual override.
// AfterResolving callbacks are kept.
func (c *Container) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registrations = make(map[Token]*Descriptor)
	c.instances = make(map[Token]any)
	c.contextual = make(map[Token]map[Token]Token)
	c.graphChanged()
}

// AfterResolving registers a callback fired after every construction.
func (c *Container) AfterResolving(cb func(token Token, instance any)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.afterResolving = append(c.afterResolving, cb)
}

func (c *Container) fireAfterResolving(token Token, instance any) {
	c.mu.RLock()
	cbs := c.afterResolving
	c.mu.RUnlock()
	for _, cb := range cbs {
		cb(token, instance)
	}
}

// ── Generics helpers ──────────────────────────────────────────────────────────

// Resolve resolves token and type-asserts the result.
//
//	logger, err := container.Resolve[*zap.Logger](c, logging.Token)
func Resolve[T any](r Resolver, token Token) (T, error) {
	var zero T
	instance, err := r.Resolve(token)
	if err != nil {
		return zero, err
	}
	typed, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("container: Resolve[%T]: [%s] resolved to %T", zero, token, instance)
	}
	return typed, nil
}

// MustResolve is Resolve that panics on error. Meant for bootstrap code
// where a missing infrastructure service is fatal.
func MustResolve[T any](r Resolver, token Token) T {
	v, err := Resolve[T](r, token)
	if err != nil {
		panic(err)
	}
	return v
}

// Dep returns deps[i] as T, or the zero T when the slot is missing, nil or
// of another type. Constructors use it to read optional dependencies.
func Dep[T any](deps []any, i int) T {
	var zero T
	if i < 0 || i >= len(deps) || deps[i] == nil {
		return zero
	}
	typed, ok := deps[i].(T)
	if !ok {
		return zero
	}
	return typed
}
