package target

import (
	"fmt"
	"sort"

	"github.com/Norgate-AV/ghostbind/internal/codes"
)

// Mapper translates foreign descriptors to native triples and back
type Mapper struct {
	forward map[Descriptor]Triple
	reverse map[Triple]Descriptor
}

// NewMapper builds a mapper from the built-in table
func NewMapper() *Mapper {
	m, err := newMapper(defaultTable)
	if err != nil {
		panic(err)
	}

	return m
}

func newMapper(table []entry) (*Mapper, error) {
	m := &Mapper{
		forward: make(map[Descriptor]Triple, len(table)),
		reverse: make(map[Triple]Descriptor, len(table)),
	}

	for _, e := range table {
		d, err := ParseDescriptor(e.foreign)
		if err != nil {
			return nil, err
		}

		t, err := ParseTriple(e.native)
		if err != nil {
			return nil, err
		}

		if _, dup := m.forward[d]; dup {
			return nil, fmt.Errorf("duplicate target table entry for %s", e.foreign)
		}

		if _, dup := m.reverse[t]; dup {
			return nil, fmt.Errorf("native triple %s mapped more than once", e.native)
		}

		m.forward[d] = t
		m.reverse[t] = d
	}

	return m, nil
}

// Map looks up the native triple for d
func (m *Mapper) Map(d Descriptor) (Triple, error) {
	t, ok := m.forward[d]
	if !ok {
		return Triple{}, codes.New(codes.ErrUnsupportedTarget, "no native triple for %q (pass an explicit native target to override)", d.String())
	}

	return t, nil
}

// MapString parses a foreign triple and maps it
func (m *Mapper) MapString(foreign string) (Triple, error) {
	d, err := ParseDescriptor(foreign)
	if err != nil {
		return Triple{}, err
	}

	return m.Map(d)
}

// Reverse returns the foreign descriptor for a native triple. It is only
// defined for triples present in the table and exists for diagnostics.
func (m *Mapper) Reverse(t Triple) (Descriptor, bool) {
	d, ok := m.reverse[t]
	return d, ok
}

// Resolve picks the native triple for a request. An explicit override always
// wins and never consults the table. With neither value set the zero Triple
// is returned, meaning the host triple reported by the toolchain.
func (m *Mapper) Resolve(foreign, override string) (Triple, error) {
	if override != "" {
		t, err := ParseTriple(override)
		if err != nil {
			return Triple{}, codes.Wrap(codes.ErrUnsupportedTarget, err, "invalid native target override")
		}

		return t, nil
	}

	if foreign == "" {
		return Triple{}, nil
	}

	return m.MapString(foreign)
}

// Supported lists every foreign triple in the table, sorted
func (m *Mapper) Supported() []string {
	out := make([]string, 0, len(m.forward))
	for d := range m.forward {
		out = append(out, d.String())
	}

	sort.Strings(out)

	return out
}
