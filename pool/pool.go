package pool

import (
	"errors"
	"sync"

	"github.com/ZenLiuCN/fn"
	. "github.com/p4jit/jitlink"
)

// Pool links fixtures in a batch against one shared firmware table. The
// table is read-only and safe to share, the allocator is the only resource
// the pool serializes between operations (its implementations lock
// internally, the pool's lock covers the registry).
type Pool struct {
	Table   *FirmwareTable
	Modules map[string]*LinkedModule
	Loaded  []string
	alloc   Allocator
	sync.RWMutex
}

var (
	ErrAlreadyLoad   = errors.New("module already loaded")
	ErrNotLoad       = errors.New("module not loaded")
	ErrMissingModule = errors.New("module not found in pool")
)

// NewPool creates a pool over a parsed firmware table and an allocator.
func NewPool(table *FirmwareTable, alloc Allocator) *Pool {
	return &Pool{
		Table:   table,
		Modules: make(map[string]*LinkedModule),
		alloc:   alloc,
	}
}

// Load links object under name with the nominated entry symbol.
func (p *Pool) Load(name string, object []byte, entry string) (err error) {
	p.Lock()
	defer p.Unlock()
	if _, ok := p.Modules[name]; ok {
		return ErrAlreadyLoad
	}
	m, err := Link(p.Table, p.alloc, object, entry)
	if err != nil {
		return
	}
	p.Modules[name] = m
	p.Loaded = append(p.Loaded, name)
	return
}

// Reload frees the previous module under name and links object in its place.
func (p *Pool) Reload(name string, object []byte, entry string) (err error) {
	p.Lock()
	defer p.Unlock()
	m, ok := p.Modules[name]
	if !ok {
		return ErrNotLoad
	}
	next, err := Link(p.Table, p.alloc, object, entry)
	if err != nil {
		return
	}
	_ = m.Free()
	p.Modules[name] = next
	return
}

// Require fetches a loaded module, panics with ErrMissingModule when absent.
func (p *Pool) Require(name string) *LinkedModule {
	p.RLock()
	defer p.RUnlock()
	if m, ok := p.Modules[name]; ok {
		return m
	}
	panic(ErrMissingModule)
}

// Fetch fetches a loaded module.
func (p *Pool) Fetch(name string) (*LinkedModule, bool) {
	p.RLock()
	defer p.RUnlock()
	m, ok := p.Modules[name]
	return m, ok
}

// Names dumps the loaded module names.
func (p *Pool) Names() []string {
	p.RLock()
	defer p.RUnlock()
	return fn.MapKeys(p.Modules)
}

// Unload frees one module and forgets it.
func (p *Pool) Unload(name string) error {
	p.Lock()
	defer p.Unlock()
	m, ok := p.Modules[name]
	if !ok {
		return ErrNotLoad
	}
	delete(p.Modules, name)
	for i, n := range p.Loaded {
		if n == name {
			p.Loaded = append(p.Loaded[:i], p.Loaded[i+1:]...)
			break
		}
	}
	return m.Free()
}

// Close frees every module in reverse load order.
func (p *Pool) Close() {
	p.Lock()
	defer p.Unlock()
	for i := len(p.Loaded) - 1; i >= 0; i-- {
		name := p.Loaded[i]
		if m, ok := p.Modules[name]; ok {
			_ = m.Free()
			delete(p.Modules, name)
		}
	}
	p.Loaded = p.Loaded[:0]
}
