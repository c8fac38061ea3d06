package jitlink

// binding is one resolved name. Local addresses are image relative and are
// rebased when the final load address is known, firmware addresses are
// absolute.
type binding struct {
	addr  uint64
	local bool
	kind  SymbolKind
}

// Bindings maps every referenced name to exactly one definition. It is
// immutable after Resolve; Diagnostics carries the non-fatal findings.
type Bindings struct {
	byName      map[string]binding
	order       []string
	Diagnostics []Diagnostic
}

// Resolve binds every reference of the object, local definitions first and
// the firmware table second so a firmware export never shadows a local
// helper of the same name. It fails fast with *UnresolvedSymbolError on the
// first name (in relocation parse order) that neither side defines, a
// partial binding is never returned.
func Resolve(obj *JitObject, table *FirmwareTable) (*Bindings, error) {
	b := &Bindings{byName: make(map[string]binding)}
	flagged := make(map[string]bool)
	for i := range obj.relocs {
		rel := &obj.relocs[i]
		if rel.Symbol == "" {
			continue
		}
		bound, ok := b.byName[rel.Symbol]
		if !ok {
			if ls, def := obj.locals[rel.Symbol]; def {
				bound = binding{addr: obj.localAddr(ls), local: true, kind: ls.kind}
			} else if fw, def := table.Lookup(rel.Symbol); def {
				bound = binding{addr: fw.Address, kind: fw.Kind}
			} else {
				return nil, &UnresolvedSymbolError{Name: rel.Symbol}
			}
			b.byName[rel.Symbol] = bound
			b.order = append(b.order, rel.Symbol)
		}
		want := rel.Kind.expects()
		if want != KindUnknown && bound.kind != KindUnknown && bound.kind != want && !flagged[rel.Symbol] {
			flagged[rel.Symbol] = true
			b.Diagnostics = append(b.Diagnostics, Diagnostic{Symbol: rel.Symbol, Want: want, Got: bound.kind})
		}
	}
	return b, nil
}

// AddressOf yields the bound address of name with local definitions rebased
// onto base.
func (b *Bindings) AddressOf(name string, base uint64) (uint64, bool) {
	bound, ok := b.byName[name]
	if !ok {
		return 0, false
	}
	if bound.local {
		return base + bound.addr, true
	}
	return bound.addr, true
}

// Resolved dumps the full name to address mapping at base, the diagnostic
// view a driving tool reports to its user.
func (b *Bindings) Resolved(base uint64) map[string]uint64 {
	v := make(map[string]uint64, len(b.byName))
	for _, name := range b.order {
		addr, _ := b.AddressOf(name, base)
		v[name] = addr
	}
	return v
}

// Names in first-reference order.
func (b *Bindings) Names() []string {
	return append([]string(nil), b.order...)
}
