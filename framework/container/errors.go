package container

import (
	"errors"
	"fmt"
	"strings"
)

// ServiceNotFoundError is returned when a token has no registration and was
// not requested as optional.
type ServiceNotFoundError struct {
	Token Token
}

func (e *ServiceNotFoundError) Error() string {
	return fmt.Sprintf("container: no service registered for [%s]", e.Token)
}

// CircularDependencyError is returned when resolution re-enters a token that
// is already under construction. Path runs from the first occurrence of the
// token to its repeat.
type CircularDependencyError struct {
	Path []Token
}

func (e *CircularDependencyError) Error() string {
	parts := make([]string, len(e.Path))
	for i, t := range e.Path {
		parts[i] = string(t)
	}
	return fmt.Sprintf("container: circular dependency: %s", strings.Join(parts, " -> "))
}

// NotInjectableError is returned when a class reference has no descriptor in
// the registry.
type NotInjectableError struct {
	Token Token
}

func (e *NotInjectableError) Error() string {
	return fmt.Sprintf("container: [%s] is not declared as injectable", e.Token)
}

// ServiceConstructionError wraps a failure raised while building a token.
type ServiceConstructionError struct {
	Token Token
	Err   error
}

func (e *ServiceConstructionError) Error() string {
	return fmt.Sprintf("container: constructing [%s]: %v", e.Token, e.Err)
}

func (e *ServiceConstructionError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is, or wraps, a ServiceNotFoundError.
func IsNotFound(err error) bool {
	var nf *ServiceNotFoundError
	return errors.As(err, &nf)
}
