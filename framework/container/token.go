package container

import "reflect"

// Token names a service within a Registry or Container.
type Token string

func (t Token) String() string { return string(t) }

// TypeOf returns the package-qualified type name of T as a Token. Pointer
// types keep a leading "*" so that *Foo and Foo stay distinct services.
//
//	container.TypeOf[*UserRepository]()  // "*github.com/acme/app.UserRepository"
//	container.TypeOf[Mailer]()           // "github.com/acme/app.Mailer"
func TypeOf[T any]() Token {
	return typeToken(reflect.TypeOf((*T)(nil)).Elem())
}

func typeToken(t reflect.Type) Token {
	prefix := ""
	for t.Kind() == reflect.Ptr {
		prefix += "*"
		t = t.Elem()
	}
	if t.Name() == "" {
		return Token(prefix + t.String())
	}
	return Token(prefix + t.PkgPath() + "." + t.Name())
}
