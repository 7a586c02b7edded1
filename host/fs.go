// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package host

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/probechain/pscript/heap"
	"github.com/probechain/pscript/proptable"
	"github.com/probechain/pscript/value"
)

// initialReadBufferSize is the fallback buffer size njs_fs_module.c /
// qjs_fs_module.c use when stat reports size==0 (procfs-style files,
// pipes): start small and grow, rather than trusting a reported length
// of zero to mean "empty" (§11 Supplemented features).
const initialReadBufferSize = 4096

// registerFS implements the example fs addon of §11: readFileSync and
// promises.readFile, registered as host-type methods the way a real
// addon would use vm_external_prototype rather than ad hoc natives.
// Skipped entirely when the VM was created with Options.Sandbox (§6
// "sandbox disables the module loader and filesystem externals").
func registerFS(vm *VM) error {
	fsProtoID, err := vm.RegisterExternalPrototype("fs", []Descriptor{
		{Method: &MethodDescriptor{Name: "readFileSync", Fn: vm.fsReadFileSync}},
		{Method: &MethodDescriptor{Name: "readFile", Fn: vm.fsReadFileAsync}},
	})
	if err != nil {
		return errors.Wrap(err, "registering fs prototype")
	}

	fsValue, err := vm.CreateExternal(fsProtoID, nil)
	if err != nil {
		return errors.Wrap(err, "creating fs external")
	}

	promises := heap.NewObject(vm.Inner.Heap.ObjectProto)
	readFile := heap.NewNativeFunction(vm.Inner.Heap.FunctionProto, "readFile", nil, func(this value.Value, args []value.Value) (value.Value, error) {
		return vm.fsReadFileAsync(nil, 0, args)
	})
	promises.MutableOwn().Insert(proptable.Descriptor{
		Kind: proptable.KindData, Key: value.PropertyKey{Str: "readFile"},
		Value: value.FromRef(value.Function, readFile, true), Writable: true, Configurable: true,
	})
	fsObj, ok := fsValue.Ref().(*hostObject)
	if ok {
		fsObj.MutableOwn().Insert(proptable.Descriptor{
			Kind: proptable.KindData, Key: value.PropertyKey{Str: "promises"},
			Value: value.FromRef(value.Object, promises, true), Writable: true, Configurable: true,
		})
	}

	return vm.Bind("fs", fsValue)
}

func (vm *VM) fsReadFileSync(_ interface{}, _ int, args []value.Value) (value.Value, error) {
	if len(args) < 1 {
		return value.Value{}, errors.New("fs.readFileSync: path argument required")
	}
	path, ok := value.StringContent(args[0])
	if !ok {
		return value.Value{}, errors.New("fs.readFileSync: path must be a string")
	}
	data, err := readFileWithSizeHeuristic(path)
	if err != nil {
		return value.Value{}, errors.Wrapf(err, "fs.readFileSync(%q)", path)
	}
	return vm.NewBuffer(data)
}

// fsReadFileAsync is a synchronous stand-in for fs.promises.readFile:
// the host's real event loop would wrap this in a Promise via the
// NativeFunc AGAIN/then protocol (§4.5); kept synchronous here since
// this addon exists to exercise the host-type registration surface,
// not to model a full async filesystem.
func (vm *VM) fsReadFileAsync(ptr interface{}, magic int, args []value.Value) (value.Value, error) {
	return vm.fsReadFileSync(ptr, magic, args)
}

func readFileWithSizeHeuristic(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	if size := info.Size(); size > 0 {
		buf := make([]byte, size)
		n, err := io.ReadFull(f, buf)
		if err != nil && err != io.ErrUnexpectedEOF {
			return nil, err
		}
		return buf[:n], nil
	}

	// size == 0: procfs/pipe-like source. Read in fixed chunks of
	// initialReadBufferSize into a growing buffer rather than trusting
	// the reported length (§11).
	var out bytes.Buffer
	chunk := make([]byte, initialReadBufferSize)
	for {
		n, err := f.Read(chunk)
		out.Write(chunk[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return out.Bytes(), nil
}
