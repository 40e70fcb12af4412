package order

import (
	"fmt"

	"github.com/mazrean/initargs/internal/pkg/collection"
)

// TypeID identifies a type by name. Two declarations refer to the same type
// iff their TypeIDs are equal.
type TypeID string

// TypeInfo describes what the graph builder needs to know about one type.
type TypeInfo struct {
	ID       TypeID
	Assembly string

	// Implements lists the types values of this type are assignable to
	// (interfaces, embedded bases). Assignability is transitive.
	Implements []TypeID

	// Provides lists the value types this type supplies when used as a value
	// provider, i.e. the X in "implements IProvider<X>".
	Provides []TypeID

	// Elements is non-empty for tuple types. A tuple argument is unpacked
	// into its element types since the tuple itself carries no ordering
	// information.
	Elements []TypeID

	// Constructible reports whether the type can be created without any of
	// its Init arguments (a parameterless path, or created by the host).
	Constructible bool
}

// Types is the registry of known types. The zero value is empty and usable.
type Types struct {
	infos map[TypeID]*TypeInfo
}

func NewTypes(infos ...TypeInfo) *Types {
	t := &Types{infos: make(map[TypeID]*TypeInfo, len(infos))}
	for _, info := range infos {
		t.Add(info)
	}
	return t
}

// Add registers info, replacing any previous entry with the same ID.
func (t *Types) Add(info TypeInfo) {
	if t.infos == nil {
		t.infos = make(map[TypeID]*TypeInfo)
	}
	info.Implements = append([]TypeID(nil), info.Implements...)
	info.Provides = append([]TypeID(nil), info.Provides...)
	info.Elements = append([]TypeID(nil), info.Elements...)
	t.infos[info.ID] = &info
}

func (t *Types) Lookup(id TypeID) (TypeInfo, bool) {
	if t == nil || t.infos == nil {
		return TypeInfo{ID: id}, false
	}
	info, ok := t.infos[id]
	if !ok {
		return TypeInfo{ID: id}, false
	}
	return *info, true
}

func (t *Types) Len() int {
	if t == nil {
		return 0
	}
	return len(t.infos)
}

// Assignable reports whether a value of type from can be passed where type to
// is expected.
func (t *Types) Assignable(to, from TypeID) bool {
	if to == from {
		return true
	}

	visited := map[TypeID]struct{}{from: {}}
	queue := collection.NewQueue(from)
	for cur := range queue.Drain {
		info, ok := t.Lookup(cur)
		if !ok {
			continue
		}
		for _, impl := range info.Implements {
			if impl == to {
				return true
			}
			if _, seen := visited[impl]; seen {
				continue
			}
			visited[impl] = struct{}{}
			queue.Push(impl)
		}
	}

	return false
}

// ProviderOf reports whether provider supplies values assignable to value.
func (t *Types) ProviderOf(provider, value TypeID) bool {
	info, ok := t.Lookup(provider)
	if !ok {
		return false
	}
	for _, provided := range info.Provides {
		if t.Assignable(value, provided) {
			return true
		}
	}
	return false
}

// Unpack expands tuple types into their element types, recursively.
// Non-tuple types are returned as a single element.
func (t *Types) Unpack(id TypeID) []TypeID {
	return t.unpack(id, map[TypeID]struct{}{})
}

func (t *Types) unpack(id TypeID, seen map[TypeID]struct{}) []TypeID {
	info, ok := t.Lookup(id)
	if !ok || len(info.Elements) == 0 {
		return []TypeID{id}
	}
	if _, loop := seen[id]; loop {
		return nil
	}
	seen[id] = struct{}{}

	var out []TypeID
	for _, elem := range info.Elements {
		out = append(out, t.unpack(elem, seen)...)
	}
	return out
}

func (t *Types) Constructible(id TypeID) bool {
	info, _ := t.Lookup(id)
	return info.Constructible
}

// Declaration is the static description of one initializer type.
type Declaration struct {
	// Name identifies the initializer type.
	Name string

	// Target is the type the initializer produces.
	Target TypeID

	// Args are the declared argument types, in Init parameter order.
	Args []TypeID

	// InitAfter names initializers that must run before this one.
	InitAfter []string

	// Priority is a manual execution order. Manual priorities are never
	// renumbered.
	Priority *int

	// Assembly is the compilation unit of the initializer. Defaults to the
	// assembly of the target type.
	Assembly string
}

func (d *Declaration) assembly(types *Types) string {
	if d.Assembly != "" {
		return d.Assembly
	}
	info, _ := types.Lookup(d.Target)
	return info.Assembly
}

// EdgeKind tells where an edge came from.
type EdgeKind int

const (
	// EdgeType is inferred from argument and target types.
	EdgeType EdgeKind = iota
	// EdgeUser is declared with InitAfter.
	EdgeUser
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeType:
		return "type"
	case EdgeUser:
		return "user"
	default:
		return "unknown"
	}
}

func (k EdgeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *EdgeKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "type":
		*k = EdgeType
	case "user":
		*k = EdgeUser
	default:
		return fmt.Errorf("unknown edge kind %q", text)
	}
	return nil
}

// Edge means From requires To: To is initialized before From.
type Edge struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Kind EdgeKind `json:"kind"`

	// Via is the argument type that produced a type edge.
	Via TypeID `json:"via,omitempty"`
}
