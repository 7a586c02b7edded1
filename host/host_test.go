// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package host

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/probechain/pscript/ast"
	"github.com/probechain/pscript/value"
)

// emptyFrontend is a stand-in Frontend returning an empty program body;
// vm_compile has no bundled parser (§1), so tests that only need a
// compilable no-op program supply this rather than real source text.
func emptyFrontend(source, name string, asModule bool) (*ast.Program, error) {
	return &ast.Program{IsModule: asModule}, nil
}

func TestCreateBindsProcessArgv(t *testing.T) {
	vm, err := Create(Options{Argv: []string{"pscript", "-c", "1"}})
	require.NoError(t, err)

	d, ok := vm.Inner.Heap.Global.OwnTable().Find(value.PropertyKey{Str: "process"})
	require.True(t, ok)
	require.Equal(t, value.Object, d.Value.Tag())
}

func TestBindInjectsGlobal(t *testing.T) {
	vm, err := Create(Options{})
	require.NoError(t, err)

	require.NoError(t, vm.Bind("answer", value.Number1(42)))
	d, ok := vm.Inner.Heap.Global.OwnTable().Find(value.PropertyKey{Str: "answer"})
	require.True(t, ok)
	require.Equal(t, float64(42), d.Value.AsFloat64())
}

func TestCompileRequiresFrontend(t *testing.T) {
	vm, err := Create(Options{})
	require.NoError(t, err)

	_, err = vm.Compile("1 + 1", "<test>")
	require.Error(t, err)
}

func TestCompileAndStartWithFrontend(t *testing.T) {
	vm, err := Create(Options{Frontend: emptyFrontend})
	require.NoError(t, err)

	code, err := vm.Compile("", "<test>")
	require.NoError(t, err)

	v, err := vm.Start(code)
	require.NoError(t, err)
	require.Equal(t, value.Undefined, v.Tag())
}

func TestExternalPrototypeRoundTrip(t *testing.T) {
	vm, err := Create(Options{Sandbox: true})
	require.NoError(t, err)

	id, err := vm.RegisterExternalPrototype("Counter", []Descriptor{
		{Property: &PropertyDescriptor{
			Name: "value",
			Get: func(ptr interface{}, magic int) (value.Value, error) {
				return value.Number1(float64(*ptr.(*int))), nil
			},
		}},
		{Method: &MethodDescriptor{
			Name: "increment",
			Fn: func(ptr interface{}, magic int, args []value.Value) (value.Value, error) {
				p := ptr.(*int)
				*p++
				return value.Number1(float64(*p)), nil
			},
		}},
	})
	require.NoError(t, err)

	counter := new(int)
	v, err := vm.CreateExternal(id, counter)
	require.NoError(t, err)

	fn, ok := vm.Inner.Method(v, "increment")
	require.True(t, ok)
	result, err := vm.Inner.CallFunction(fn, v, nil)
	require.NoError(t, err)
	require.Equal(t, float64(1), result.AsFloat64())

	unwrapped, err := vm.Unwrap(v, id)
	require.NoError(t, err)
	require.Equal(t, 1, *unwrapped.(*int))
}

func TestUnwrapRejectsWrongPrototype(t *testing.T) {
	vm, err := Create(Options{Sandbox: true})
	require.NoError(t, err)

	id1, err := vm.RegisterExternalPrototype("A", nil)
	require.NoError(t, err)
	id2, err := vm.RegisterExternalPrototype("B", nil)
	require.NoError(t, err)

	v, err := vm.CreateExternal(id1, "data")
	require.NoError(t, err)

	_, err = vm.Unwrap(v, id2)
	require.Error(t, err)
}

func TestBufferToStringAndLength(t *testing.T) {
	vm, err := Create(Options{Sandbox: true})
	require.NoError(t, err)

	buf, err := vm.NewBuffer([]byte("hello"))
	require.NoError(t, err)

	fn, ok := vm.Inner.Method(buf, "toString")
	require.True(t, ok)
	s, err := vm.Inner.CallFunction(fn, buf, nil)
	require.NoError(t, err)
	content, ok := value.StringContent(s)
	require.True(t, ok)
	require.Equal(t, "hello", content)

	// length is a handler property on the prototype, not a method.
	ho, ok := buf.Ref().(*hostObject)
	require.True(t, ok)
	lenDesc, ok := ho.Proto().OwnTable().Find(value.PropertyKey{Str: "length"})
	require.True(t, ok)
	n, err := lenDesc.Handler(buf, nil)
	require.NoError(t, err)
	require.Equal(t, float64(5), n.AsFloat64())
}

func TestFSReadFileSync(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "pscript-fs-*.txt")
	require.NoError(t, err)
	_, err = f.WriteString("file contents")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	vm, err := Create(Options{})
	require.NoError(t, err)

	d, ok := vm.Inner.Heap.Global.OwnTable().Find(value.PropertyKey{Str: "fs"})
	require.True(t, ok)

	readFileSync, ok := vm.Inner.Method(d.Value, "readFileSync")
	require.True(t, ok)
	pathArg := vm.Inner.Heap.Strings.NewString(f.Name())
	buf, err := vm.Inner.CallFunction(readFileSync, d.Value, []value.Value{pathArg})
	require.NoError(t, err)

	toString, ok := vm.Inner.Method(buf, "toString")
	require.True(t, ok)
	s, err := vm.Inner.CallFunction(toString, buf, nil)
	require.NoError(t, err)
	content, ok := value.StringContent(s)
	require.True(t, ok)
	require.Equal(t, "file contents", content)
}

func TestSandboxSkipsFS(t *testing.T) {
	vm, err := Create(Options{Sandbox: true})
	require.NoError(t, err)

	_, ok := vm.Inner.Heap.Global.OwnTable().Find(value.PropertyKey{Str: "fs"})
	require.False(t, ok)
}
