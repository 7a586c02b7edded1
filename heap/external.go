// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package heap

import "github.com/probechain/pscript/value"

// ExternalKind identifies a host-registered external type (§6
// vm_external_prototype / vm_external_create): an opaque Go value
// exposed to script through a dedicated prototype, the way the source
// engine lets an embedder expose fs.FileHandle-like objects without
// modeling them as plain JS objects.
type ExternalKind struct {
	Name  string
	Proto *Object
}

// External wraps a host-owned Go value so it can flow through Value
// without the engine reaching into its internals; only the host's own
// native functions (registered against ExternalKind.Proto) know how to
// interpret Data.
type External struct {
	Kind *ExternalKind
	Data interface{}
}

// ValueKind satisfies value.Ref.
func (e *External) ValueKind() value.Tag { return value.External }

// NewExternal wraps data under kind.
func NewExternal(kind *ExternalKind, data interface{}) *External {
	return &External{Kind: kind, Data: data}
}

// ExternalRegistry tracks the host's registered external kinds, keyed by
// name, so vm_external_prototype can be looked up by script-visible
// constructors (e.g. a host `fs` module's FileHandle).
type ExternalRegistry struct {
	kinds map[string]*ExternalKind
}

// NewExternalRegistry creates an empty registry.
func NewExternalRegistry() *ExternalRegistry {
	return &ExternalRegistry{kinds: make(map[string]*ExternalKind)}
}

// Register associates name with proto, returning the new ExternalKind.
// Re-registering an existing name replaces its prototype (host reload).
func (r *ExternalRegistry) Register(name string, proto *Object) *ExternalKind {
	k := &ExternalKind{Name: name, Proto: proto}
	r.kinds[name] = k
	return k
}

// Lookup returns the registered kind for name, or ok=false.
func (r *ExternalRegistry) Lookup(name string) (*ExternalKind, bool) {
	k, ok := r.kinds[name]
	return k, ok
}
