// class.go — class descriptors, C3 linearization and instances.
//
// A class descriptor is immutable after its one-time linearization, so
// descriptors are safe to share across concurrent executions. Member lookup
// is a plain ordered search over the precomputed precedence list; there are
// no virtual-dispatch tables.
package lyng

import (
	"fmt"
	"strings"
)

// ClassMember is one resolved class-body declaration.
type ClassMember struct {
	Kind      MemberKind
	Name      string
	Fn        *FnDecl // MemberMethod
	Getter    *FnDecl // MemberProperty
	Setter    *FnDecl
	Init      Node // MemberField initializer
	Deleg     Node // MemberDelegated delegate expression
	Mutable   bool
	Override  bool
	Static    bool
	Private   bool
	Transient bool
	Owner     *Class
}

// FieldSpec records one instance field in declaration order: constructor
// header fields first, then body fields. The order is the codec's field
// order.
type FieldSpec struct {
	Name      string
	Mutable   bool
	Transient bool
	Init      Node // body-field initializer (nil for ctor fields)
	FromCtor  bool
}

// Class is a runtime class descriptor.
//
// Bases is the declared base list (multiple inheritance allowed); mro is the
// C3 linearization computed once at declaration. declScope is the lexical
// scope the class was declared in — method bodies close over it.
type Class struct {
	Name       string
	Bases      []*Class
	CtorParams []Param
	Members    map[string]*ClassMember
	Statics    map[string]Value
	Fields     []FieldSpec

	mro       []*Class
	declScope *Scope
	native    bool // built-in classes (exceptions etc.) without field specs
}

// MRO returns the linearized ancestor list, the class itself first.
func (c *Class) MRO() []*Class { return c.mro }

// IsSubclassOf walks the linearization.
func (c *Class) IsSubclassOf(other *Class) bool {
	for _, a := range c.mro {
		if a == other {
			return true
		}
	}
	return false
}

// lookup finds the first member named name along the precedence list.
func (c *Class) lookup(name string) (*ClassMember, bool) {
	for _, cl := range c.mro {
		if m, ok := cl.Members[name]; ok {
			return m, true
		}
	}
	return nil, false
}

// lookupStatic finds a static value along the precedence list.
func (c *Class) lookupStatic(name string) (Value, bool) {
	for _, cl := range c.mro {
		if v, ok := cl.Statics[name]; ok {
			return v, true
		}
	}
	return Value{}, false
}

// allFields returns the effective field specs for instances of c: inherited
// fields first (per reversed MRO so roots come first), own fields last.
// Shadowed names keep the most derived spec.
func (c *Class) allFields() []FieldSpec {
	var out []FieldSpec
	seen := map[string]int{}
	for i := len(c.mro) - 1; i >= 0; i-- {
		for _, fs := range c.mro[i].Fields {
			if at, ok := seen[fs.Name]; ok {
				out[at] = fs
				continue
			}
			seen[fs.Name] = len(out)
			out = append(out, fs)
		}
	}
	return out
}

// linearizeC3 computes the method-resolution order of c given its direct
// bases: merge each base's own linearization with the explicit base list,
// repeatedly selecting the next class that appears only as a head of the
// remaining lists. A descriptive error is returned when no such class
// exists (inconsistent hierarchy).
func linearizeC3(c *Class) ([]*Class, error) {
	seqs := make([][]*Class, 0, len(c.Bases)+1)
	for _, b := range c.Bases {
		seqs = append(seqs, append([]*Class(nil), b.mro...))
	}
	seqs = append(seqs, append([]*Class(nil), c.Bases...))

	out := []*Class{c}
	for {
		// drop exhausted sequences
		live := seqs[:0]
		for _, s := range seqs {
			if len(s) > 0 {
				live = append(live, s)
			}
		}
		seqs = live
		if len(seqs) == 0 {
			return out, nil
		}

		// pick the first head not occurring in any tail
		var next *Class
		for _, s := range seqs {
			head := s[0]
			inTail := false
			for _, t := range seqs {
				for _, x := range t[1:] {
					if x == head {
						inTail = true
						break
					}
				}
				if inTail {
					break
				}
			}
			if !inTail {
				next = head
				break
			}
		}
		if next == nil {
			return nil, fmt.Errorf(
				"cannot linearize class %s: inconsistent base order among %s",
				c.Name, baseNames(c.Bases))
		}

		out = append(out, next)
		for i, s := range seqs {
			if len(s) > 0 && s[0] == next {
				seqs[i] = s[1:]
			}
		}
	}
}

func baseNames(bases []*Class) string {
	names := make([]string, len(bases))
	for i, b := range bases {
		names[i] = b.Name
	}
	return strings.Join(names, ", ")
}

// validateOverrides enforces the override discipline: a member redeclared
// anywhere in the ancestor chain must carry `override`, and `override`
// without any ancestor declaration is an error.
func validateOverrides(c *Class) error {
	for name, m := range c.Members {
		declaredAbove := false
		for _, a := range c.mro[1:] {
			if _, ok := a.Members[name]; ok {
				declaredAbove = true
				break
			}
		}
		if declaredAbove && !m.Override {
			return fmt.Errorf(
				"class %s: member %q hides an inherited declaration; mark it override",
				c.Name, name)
		}
		if !declaredAbove && m.Override {
			return fmt.Errorf(
				"class %s: member %q is marked override but no ancestor declares it",
				c.Name, name)
		}
	}
	return nil
}

// newNativeClass builds a descriptor for built-in classes (exception
// hierarchy, enum roots). Linearization is infallible here: native
// hierarchies are single-inheritance chains.
func newNativeClass(name string, bases ...*Class) *Class {
	c := &Class{
		Name:    name,
		Bases:   bases,
		Members: map[string]*ClassMember{},
		Statics: map[string]Value{},
		native:  true,
	}
	mro, err := linearizeC3(c)
	if err != nil {
		panic("native class hierarchy must linearize: " + err.Error())
	}
	c.mro = mro
	return c
}

// ----- instances -----

// Instance pairs a shared read-only class descriptor with its field table.
// delegates holds per-instance delegate objects for `by` members.
type Instance struct {
	Class     *Class
	Fields    map[string]Value
	delegates map[string]Value
}

func NewInstance(c *Class) *Instance {
	return &Instance{Class: c, Fields: map[string]Value{}}
}

// equal implements structural instance equality: matching class, then all
// non-transient declared fields.
func (i *Instance) equal(o *Instance) bool {
	if i == o {
		return true
	}
	if i.Class != o.Class {
		return false
	}
	for _, fs := range i.Class.allFields() {
		if fs.Transient {
			continue
		}
		av, aok := i.Fields[fs.Name]
		bv, bok := o.Fields[fs.Name]
		if aok != bok {
			return false
		}
		if aok && !Equal(av, bv) {
			return false
		}
	}
	return true
}

func (i *Instance) hashInto(h hasher) {
	_, _ = h.Write([]byte("i" + i.Class.Name))
	for _, fs := range i.Class.allFields() {
		if fs.Transient {
			continue
		}
		if v, ok := i.Fields[fs.Name]; ok {
			_, _ = h.Write([]byte(fs.Name + "="))
			hashInto(h, v)
		}
	}
}

func (i *Instance) display() string {
	fields := i.Class.allFields()
	if len(fields) == 0 {
		return i.Class.Name + "()"
	}
	parts := make([]string, 0, len(fields))
	for _, fs := range fields {
		if v, ok := i.Fields[fs.Name]; ok {
			parts = append(parts, fs.Name+"="+v.Inspect())
		}
	}
	return i.Class.Name + "(" + strings.Join(parts, ", ") + ")"
}
