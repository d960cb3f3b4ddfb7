// Package container is the service-composition runtime: a Registry of
// injectable declarations and a Container that resolves them into object
// graphs.
//
// # Declaring
//
// Dependencies are explicit. Each declaration lists the tokens its
// constructor receives, in order, and the fields it wants assigned after
// construction.
//
//	reg := container.NewRegistry()
//	reg.Declare("db", container.WithFactory(func(...any) (any, error) {
//	    return &Database{}, nil
//	}))
//	reg.Declare("users",
//	    container.DependsOn(container.Arg("db"), container.OptionalArg("cache")),
//	    container.WithFactory(func(deps ...any) (any, error) {
//	        return NewUsers(deps[0].(*Database), container.Dep[Cache](deps, 1)), nil
//	    }),
//	)
//
//	// Property injection on a zero-value struct
//	container.DeclareType[Reports](reg, container.Inject(container.Field("DB", "db")))
//
// # Registering and resolving
//
//	c := container.New(reg)
//	c.RegisterClass("db")
//	c.RegisterClass("users")
//	c.Register("config", container.Value(cfg))
//	c.Register("clock", container.FactoryFunc(func() (any, error) { return realClock{}, nil }))
//
//	users, err := container.Resolve[*Users](c, "users")
//
// Singletons are constructed once, under a per-token guard, and cached.
// Transients are constructed on every Resolve. Errors are typed:
// ServiceNotFoundError, CircularDependencyError, NotInjectableError and
// ServiceConstructionError. Optional dependencies swallow only
// ServiceNotFoundError.
//
// # Contextual overrides
//
//	c.When("users").Needs("db").Give("db.replica")
package container
