package container

// Dependency is a constructor-parameter marker: the token resolved for one
// positional constructor argument.
type Dependency struct {
	Token    Token
	Optional bool
}

// Property is a property marker: after construction the container resolves
// Token and assigns it to the exported field Name of the new instance.
type Property struct {
	Name     string
	Token    Token
	Optional bool
}

// Arg marks a required positional dependency.
func Arg(token Token) Dependency { return Dependency{Token: token} }

// OptionalArg marks a positional dependency that resolves to nil when the
// token is not registered.
func OptionalArg(token Token) Dependency { return Dependency{Token: token, Optional: true} }

// Field marks a required property dependency.
func Field(name string, token Token) Property { return Property{Name: name, Token: token} }

// OptionalField marks a property dependency that is left untouched when the
// token is not registered.
func OptionalField(name string, token Token) Property {
	return Property{Name: name, Token: token, Optional: true}
}
