// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

// Buffer wiring: the njs_buffer.c-derived host object of §11, backed by
// the buffer package's encode/decode codecs and exposed through the
// same vm_external_prototype surface fs.go uses.
package host

import (
	"github.com/pkg/errors"

	"github.com/probechain/pscript/buffer"
	"github.com/probechain/pscript/heap"
	"github.com/probechain/pscript/proptable"
	"github.com/probechain/pscript/value"
)

func registerBuffer(vm *VM) error {
	protoID, err := vm.RegisterExternalPrototype("Buffer", []Descriptor{
		{Method: &MethodDescriptor{Name: "toString", Fn: vm.bufferToString}},
		{Property: &PropertyDescriptor{Name: "length", Get: vm.bufferLength}},
	})
	if err != nil {
		return errors.Wrap(err, "registering Buffer prototype")
	}
	vm.bufferProtoID = protoID

	global := heap.NewObject(vm.Inner.Heap.ObjectProto)
	from := heap.NewNativeFunction(vm.Inner.Heap.FunctionProto, "from", nil, vm.bufferFrom)
	global.MutableOwn().Insert(proptable.Descriptor{
		Kind: proptable.KindData, Key: value.PropertyKey{Str: "from"},
		Value: value.FromRef(value.Function, from, true), Writable: true, Configurable: true,
	})
	return vm.Bind("Buffer", value.FromRef(value.Object, global, true))
}

// NewBuffer wraps data as a Buffer external, the construction path both
// the fs addon (file contents) and Buffer.from use.
func (vm *VM) NewBuffer(data []byte) (value.Value, error) {
	return vm.CreateExternal(vm.bufferProtoID, data)
}

func (vm *VM) bufferFrom(this value.Value, args []value.Value) (value.Value, error) {
	if len(args) < 1 {
		return value.Value{}, errors.New("Buffer.from: data argument required")
	}
	encName := ""
	if len(args) > 1 {
		s, _ := value.StringContent(args[1])
		encName = s
	}
	enc, err := buffer.ParseEncoding(encName)
	if err != nil {
		return value.Value{}, err
	}
	s, ok := value.StringContent(args[0])
	if !ok {
		return value.Value{}, errors.New("Buffer.from: data must be a string in this addon")
	}
	data, err := buffer.Decode(s, enc)
	if err != nil {
		return value.Value{}, errors.Wrap(err, "Buffer.from")
	}
	return vm.NewBuffer(data)
}

func (vm *VM) bufferToString(ptr interface{}, _ int, args []value.Value) (value.Value, error) {
	data, ok := ptr.([]byte)
	if !ok {
		return value.Value{}, errors.New("Buffer.prototype.toString: receiver is not a Buffer")
	}
	encName := ""
	if len(args) > 0 {
		s, _ := value.StringContent(args[0])
		encName = s
	}
	enc, err := buffer.ParseEncoding(encName)
	if err != nil {
		return value.Value{}, err
	}
	s, err := buffer.Encode(data, enc)
	if err != nil {
		return value.Value{}, err
	}
	return vm.Inner.Heap.Strings.NewString(s), nil
}

func (vm *VM) bufferLength(ptr interface{}, _ int) (value.Value, error) {
	data, ok := ptr.([]byte)
	if !ok {
		return value.Value{}, errors.New("Buffer.prototype.length: receiver is not a Buffer")
	}
	return value.Number1(float64(len(data))), nil
}
