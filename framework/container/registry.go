package container

import "sync"

// Lifetime controls instance caching for a token.
type Lifetime string

const (
	// LifetimeSingleton builds one instance and reuses it for every resolution.
	LifetimeSingleton Lifetime = "singleton"
	// LifetimeTransient builds a fresh instance on every resolution.
	LifetimeTransient Lifetime = "transient"
)

// DefaultScope is the scope recorded when none is declared.
const DefaultScope = "root"

// Constructor builds an instance from its resolved dependencies, passed in
// declaration order. Absent optional dependencies arrive as nil.
type Constructor func(deps ...any) (any, error)

// Descriptor is the declaration metadata for one token.
type Descriptor struct {
	Token        Token
	Lifetime     Lifetime
	Scope        string
	Factory      Constructor
	Dependencies []Dependency
	Properties   []Property

	// value is set for Value providers; such descriptors are never built.
	value    any
	hasValue bool
}

// Singleton reports whether instances of d are cached.
func (d Descriptor) Singleton() bool { return d.Lifetime != LifetimeTransient }

// DependencyTokens returns the constructor dependency tokens in order.
func (d Descriptor) DependencyTokens() []Token {
	out := make([]Token, len(d.Dependencies))
	for i, dep := range d.Dependencies {
		out[i] = dep.Token
	}
	return out
}

// OptionalFlags returns, parallel to DependencyTokens, which dependencies
// tolerate absence.
func (d Descriptor) OptionalFlags() []bool {
	out := make([]bool, len(d.Dependencies))
	for i, dep := range d.Dependencies {
		out[i] = dep.Optional
	}
	return out
}

func (d Descriptor) clone() Descriptor {
	d.Dependencies = append([]Dependency(nil), d.Dependencies...)
	d.Properties = append([]Property(nil), d.Properties...)
	return d
}

// Option configures a Descriptor at declaration time.
type Option func(*Descriptor)

// Singleton declares a cached lifetime (the default).
func Singleton() Option { return func(d *Descriptor) { d.Lifetime = LifetimeSingleton } }

// Transient declares a fresh instance per resolution.
func Transient() Option { return func(d *Descriptor) { d.Lifetime = LifetimeTransient } }

// InScope records the declaration scope.
func InScope(scope string) Option { return func(d *Descriptor) { d.Scope = scope } }

// WithFactory overrides the constructor.
func WithFactory(fn Constructor) Option { return func(d *Descriptor) { d.Factory = fn } }

// DependsOn appends positional constructor dependencies.
//
//	registry.Declare("mailer", container.DependsOn(
//	    container.Arg(logging.Token),
//	    container.OptionalArg(metrics.Token),
//	))
func DependsOn(deps ...Dependency) Option {
	return func(d *Descriptor) { d.Dependencies = append(d.Dependencies, deps...) }
}

// Needs is DependsOn for required dependencies given as bare tokens.
func Needs(tokens ...Token) Option {
	return func(d *Descriptor) {
		for _, t := range tokens {
			d.Dependencies = append(d.Dependencies, Arg(t))
		}
	}
}

// Inject appends property markers, applied after construction.
func Inject(props ...Property) Option {
	return func(d *Descriptor) { d.Properties = append(d.Properties, props...) }
}

// Registry is the set of injectable declarations. One Registry is created per
// process (or per test) and handed to the containers that read it.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[Token]Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{descriptors: make(map[Token]Descriptor)}
}

// Declare records the descriptor for token, replacing any earlier one.
func (r *Registry) Declare(token Token, opts ...Option) Descriptor {
	d := Descriptor{Token: token, Lifetime: LifetimeSingleton, Scope: DefaultScope}
	for _, opt := range opts {
		opt(&d)
	}
	if d.Scope == "" {
		d.Scope = DefaultScope
	}

	r.mu.Lock()
	r.descriptors[token] = d
	r.mu.Unlock()
	return d.clone()
}

// DeclareType declares *T under TypeOf[*T](). Without a WithFactory option
// the instance is new(T), which suits types wired by property injection.
func DeclareType[T any](r *Registry, opts ...Option) Descriptor {
	defaults := WithFactory(func(...any) (any, error) { return new(T), nil })
	return r.Declare(TypeOf[*T](), append([]Option{defaults}, opts...)...)
}

// Lookup returns the descriptor for token.
func (r *Registry) Lookup(token Token) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[token]
	if !ok {
		return Descriptor{}, false
	}
	return d.clone(), true
}

// IsDeclared reports whether token has a descriptor.
func (r *Registry) IsDeclared(token Token) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.descriptors[token]
	return ok
}

// ListAll returns every descriptor, in no particular order.
func (r *Registry) ListAll() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, d.clone())
	}
	return out
}

// Reset drops all descriptors. Only for use between independent bootstraps.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors = make(map[Token]Descriptor)
}
