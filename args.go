package initargs

import "reflect"

// MaxArguments is the largest number of arguments an Init method can take.
const MaxArguments = 12

// Args are the resolved arguments passed to Target.Init, in declaration
// order. Missing arguments are nil.
type Args []any

// Arg returns args[i] as a T. It reports false when the argument is absent,
// nil or of another type.
func Arg[T any](args Args, i int) (T, bool) {
	var zero T
	if i < 0 || i >= len(args) || args[i] == nil {
		return zero, false
	}
	v, ok := args[i].(T)
	return v, ok
}

// Tuple marks a struct argument whose fields are the real dependencies.
// Embed it as the first field:
//
//	type Inputs struct {
//		initargs.Tuple
//		Keyboard *Keyboard
//		Mouse    *Mouse
//	}
//
// Execution ordering looks through the tuple at its field types.
type Tuple struct{}

var tupleType = reflect.TypeFor[Tuple]()

func tupleElements(t reflect.Type) []reflect.Type {
	if t == nil || t.Kind() != reflect.Struct || t.NumField() == 0 {
		return nil
	}
	if f := t.Field(0); !f.Anonymous || f.Type != tupleType {
		return nil
	}

	elems := make([]reflect.Type, 0, t.NumField()-1)
	for i := 1; i < t.NumField(); i++ {
		elems = append(elems, t.Field(i).Type)
	}
	return elems
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return rv.IsNil()
	default:
		return false
	}
}
