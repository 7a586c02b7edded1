// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package host

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/probechain/pscript/heap"
	"github.com/probechain/pscript/proptable"
	"github.com/probechain/pscript/value"
)

// PropertyDescriptor is §6's `{property, name|symbol, handler_get,
// handler_set, magic}`: a dynamic property on an external, backed by
// Go closures rather than a script-visible getter/setter pair.
type PropertyDescriptor struct {
	Name  string
	Sym   value.Ref // set instead of Name for a symbol-keyed property
	Get   func(ptr interface{}, magic int) (value.Value, error)
	Set   func(ptr interface{}, magic int, v value.Value) error
	Magic int
}

// MethodDescriptor is §6's `{method, name, native_fn, magic, ctor?}`.
type MethodDescriptor struct {
	Name  string
	Fn    func(ptr interface{}, magic int, args []value.Value) (value.Value, error)
	Magic int
	Ctor  bool
}

// StaticDescriptor is §6's `{property, name, value}`: a plain own value,
// not dispatched through the wrapped pointer at all.
type StaticDescriptor struct {
	Name  string
	Value value.Value
}

// Descriptor is one entry of vm_external_prototype's descriptor list;
// exactly one of Property/Method/Static is set.
type Descriptor struct {
	Property *PropertyDescriptor
	Method   *MethodDescriptor
	Static   *StaticDescriptor
}

// hostObject is the JS-visible shape of a vm_external_create'd value: an
// ordinary walkable object (so its registered prototype's handler/method
// descriptors resolve through propquery's normal Found path) carrying
// the wrapped Go pointer via an embedded heap.External for
// vm_external's identity-checked unwrap.
type hostObject struct {
	*heap.Object
	ext *heap.External
}

// ValueKind overrides the ambiguous promotion from the two embedded
// ValueKind methods (*heap.Object and *heap.External both define one);
// a host-created external is always object-kinded to script.
func (h *hostObject) ValueKind() value.Tag { return value.Object }

type externalRegistry struct {
	kinds *heap.ExternalRegistry
	byID  map[uuid.UUID]*heap.ExternalKind
}

func newExternalRegistry() *externalRegistry {
	return &externalRegistry{
		kinds: heap.NewExternalRegistry(),
		byID:  make(map[uuid.UUID]*heap.ExternalKind),
	}
}

// RegisterExternalPrototype implements vm_external_prototype(descriptors)
// -> proto_id. The returned id is a github.com/google/uuid value per
// §10's wiring of that library to "proto_id handles."
func (vm *VM) RegisterExternalPrototype(name string, descs []Descriptor) (uuid.UUID, error) {
	proto := heap.NewPrototypeObject(vm.Inner.Heap.ObjectProto)
	table := proto.MutableOwn()

	for _, d := range descs {
		switch {
		case d.Property != nil:
			table.Insert(proptable.Descriptor{
				Kind:         proptable.KindHandler,
				Key:          externalKey(d.Property.Name, d.Property.Sym),
				Handler:      vm.propertyHandler(d.Property),
				Enumerable:   true,
				Configurable: true,
			})
		case d.Method != nil:
			m := d.Method
			native := heap.NewNativeFunction(vm.Inner.Heap.FunctionProto, m.Name, nil, vm.methodBody(m))
			if m.Ctor {
				native.Flags |= heap.FuncCtor
			}
			table.Insert(proptable.Descriptor{
				Kind:         proptable.KindData,
				Key:          value.PropertyKey{Str: m.Name},
				Value:        value.FromRef(value.Function, native, true),
				Writable:     true,
				Configurable: true,
			})
		case d.Static != nil:
			table.Insert(proptable.Descriptor{
				Kind:         proptable.KindData,
				Key:          value.PropertyKey{Str: d.Static.Name},
				Value:        d.Static.Value,
				Enumerable:   true,
				Configurable: true,
			})
		default:
			return uuid.UUID{}, errors.New("host: descriptor has neither Property, Method, nor Static set")
		}
	}

	id := uuid.New()
	kind := vm.externs.kinds.Register(name, proto)
	vm.externs.byID[id] = kind
	return id, nil
}

func externalKey(name string, sym value.Ref) value.PropertyKey {
	if sym != nil {
		return value.PropertyKey{Sym: sym}
	}
	return value.PropertyKey{Str: name}
}

func (vm *VM) propertyHandler(p *PropertyDescriptor) proptable.HandlerFunc {
	return func(this value.Value, setVal *value.Value) (value.Value, error) {
		ptr, err := vm.unwrapSelf(this)
		if err != nil {
			return value.Value{}, err
		}
		if setVal != nil {
			if p.Set == nil {
				return value.Undef(), nil
			}
			return value.Undef(), p.Set(ptr, p.Magic, *setVal)
		}
		if p.Get == nil {
			return value.Undef(), nil
		}
		return p.Get(ptr, p.Magic)
	}
}

func (vm *VM) methodBody(m *MethodDescriptor) heap.NativeFunc {
	return func(this value.Value, args []value.Value) (value.Value, error) {
		ptr, err := vm.unwrapSelf(this)
		if err != nil {
			return value.Value{}, err
		}
		return m.Fn(ptr, m.Magic, args)
	}
}

func (vm *VM) unwrapSelf(this value.Value) (interface{}, error) {
	ho, ok := this.Ref().(*hostObject)
	if !ok {
		return nil, vm.Inner.NewTypeError("method called on a receiver that is not this external type")
	}
	return ho.ext.Data, nil
}

// CreateExternal implements vm_external_create(proto_id, ptr) -> value:
// wraps ptr as a JS value of protoID's registered prototype.
func (vm *VM) CreateExternal(protoID uuid.UUID, ptr interface{}) (value.Value, error) {
	kind, ok := vm.externs.byID[protoID]
	if !ok {
		return value.Value{}, errors.Errorf("host: unknown external prototype id %s", protoID)
	}
	ho := &hostObject{
		Object: heap.NewInstanceOf(kind.Proto, value.Object),
		ext:    heap.NewExternal(kind, ptr),
	}
	return value.FromRef(value.Object, ho, true), nil
}

// Unwrap implements vm_external(value, proto_id) -> ptr: validates v was
// created against protoID before returning its wrapped pointer.
func (vm *VM) Unwrap(v value.Value, protoID uuid.UUID) (interface{}, error) {
	kind, ok := vm.externs.byID[protoID]
	if !ok {
		return nil, errors.Errorf("host: unknown external prototype id %s", protoID)
	}
	ho, ok := v.Ref().(*hostObject)
	if !ok || ho.ext.Kind != kind {
		return nil, vm.Inner.NewTypeError("value does not match external prototype %q", kind.Name)
	}
	return ho.ext.Data, nil
}
