// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package heap

import (
	"fmt"

	"github.com/dlclark/regexp2"

	"github.com/probechain/pscript/proptable"
	"github.com/probechain/pscript/value"
)

// RegExpFlags mirrors the JS literal flag letters.
type RegExpFlags struct {
	Global     bool
	IgnoreCase bool
	Multiline  bool
	Sticky     bool
	Unicode    bool
	DotAll     bool
}

// RegExp is the heap form of a compiled regular expression (§4.5
// REGEXP opcode). JS regex syntax includes backreferences and
// lookaround that Go's RE2-based regexp package cannot express, so
// compilation goes through dlclark/regexp2, a backtracking engine with
// .NET/JS-flavored syntax support.
type RegExp struct {
	*Object
	Source   string
	Flags    RegExpFlags
	compiled *regexp2.Regexp
	LastIndex int
}

// NewRegExp compiles pattern under flags. A malformed pattern returns an
// error the caller surfaces as a SyntaxError (REGEXP opcode contract).
func NewRegExp(proto *Object, pattern string, flags RegExpFlags) (*RegExp, error) {
	opts := regexp2.None
	if flags.IgnoreCase {
		opts |= regexp2.IgnoreCase
	}
	if flags.Multiline {
		opts |= regexp2.Multiline
	}
	if flags.DotAll {
		opts |= regexp2.Singleline
	}
	re, err := regexp2.Compile(pattern, opts)
	if err != nil {
		return nil, err
	}
	return &RegExp{
		Object:   NewInstanceOf(proto, value.Regexp),
		Source:   pattern,
		Flags:    flags,
		compiled: re,
	}, nil
}

// ValueKind satisfies value.Ref.
func (r *RegExp) ValueKind() value.Tag { return value.Regexp }

// MatchResult is one successful RegExp.prototype.exec outcome.
type MatchResult struct {
	Index  int
	Input  string
	Groups []string // Groups[0] is the whole match
}

// Exec runs the pattern against s, honoring lastIndex/global/sticky the
// way RegExp.prototype.exec does, returning ok=false on no match.
func (r *RegExp) Exec(s string) (MatchResult, bool, error) {
	start := 0
	if r.Flags.Global || r.Flags.Sticky {
		start = r.LastIndex
	}
	if start > len(s) {
		r.LastIndex = 0
		return MatchResult{}, false, nil
	}
	m, err := r.compiled.FindStringMatchStartingAt(s, start)
	if err != nil {
		return MatchResult{}, false, err
	}
	if m == nil {
		if r.Flags.Global || r.Flags.Sticky {
			r.LastIndex = 0
		}
		return MatchResult{}, false, nil
	}
	if r.Flags.Sticky && m.Index != start {
		r.LastIndex = 0
		return MatchResult{}, false, nil
	}
	groups := make([]string, len(m.Groups()))
	for i, g := range m.Groups() {
		groups[i] = g.String()
	}
	if r.Flags.Global || r.Flags.Sticky {
		r.LastIndex = m.Index + m.Length
		if m.Length == 0 {
			r.LastIndex++
		}
	}
	return MatchResult{Index: m.Index, Input: s, Groups: groups}, true, nil
}

// Test reports whether the pattern matches anywhere in s (same lastIndex
// bookkeeping as Exec, but discards capture groups).
func (r *RegExp) Test(s string) (bool, error) {
	_, ok, err := r.Exec(s)
	return ok, err
}

// installRegExpMethods wires RegExp.prototype.exec/test as native
// functions (§4.5: PROPERTY_GET on RegExp.prototype.exec/test, invoked
// through FUNCTION_CALL like any other method). Called once from
// Heap.New, after RegExpProto/ArrayProto/Strings exist.
func installRegExpMethods(h *Heap) {
	install := func(name string, fn NativeFunc) {
		f := NewNativeFunction(h.FunctionProto, name, []ArgCoercion{ArgString}, fn)
		h.RegExpProto.MutableOwn().Insert(proptable.Descriptor{
			Kind: proptable.KindData, Key: value.PropertyKey{Str: name},
			Value: value.FromRef(value.Function, f, true), Writable: true, Configurable: true,
		})
	}
	install("exec", func(this value.Value, args []value.Value) (value.Value, error) {
		re, ok := thisRegExp(this)
		if !ok {
			return value.Value{}, fmt.Errorf("heap: RegExp.prototype.exec called on a non-RegExp receiver")
		}
		m, matched, err := re.Exec(execArg(args))
		if err != nil {
			return value.Value{}, err
		}
		if !matched {
			return value.Null1(), nil
		}
		return h.matchResultArray(m), nil
	})
	install("test", func(this value.Value, args []value.Value) (value.Value, error) {
		re, ok := thisRegExp(this)
		if !ok {
			return value.Value{}, fmt.Errorf("heap: RegExp.prototype.test called on a non-RegExp receiver")
		}
		matched, err := re.Test(execArg(args))
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool1(matched), nil
	})
}

func thisRegExp(this value.Value) (*RegExp, bool) {
	re, ok := this.Ref().(*RegExp)
	return re, ok
}

// execArg is RegExp.prototype.exec/test's lone string argument; an
// omitted argument coerces the same way String(undefined) would.
func execArg(args []value.Value) string {
	if len(args) == 0 {
		return "undefined"
	}
	s, _ := value.StringContent(args[0])
	return s
}

// matchResultArray builds the array RegExp.prototype.exec returns on a
// match: the whole match and capture groups by index, plus the
// non-index-keyed `index`/`input` properties §4.5's exec result carries.
func (h *Heap) matchResultArray(m MatchResult) value.Value {
	arr := NewArray(h.ArrayProto, len(m.Groups))
	for i, g := range m.Groups {
		arr.Set(i, h.Strings.NewString(g))
	}
	arr.MutableOwn().Insert(proptable.Descriptor{
		Kind: proptable.KindData, Key: value.PropertyKey{Str: "index"},
		Value: value.Number1(float64(m.Index)), Writable: true, Configurable: true,
	})
	arr.MutableOwn().Insert(proptable.Descriptor{
		Kind: proptable.KindData, Key: value.PropertyKey{Str: "input"},
		Value: h.Strings.NewString(m.Input), Writable: true, Configurable: true,
	})
	return value.FromRef(value.Array, arr, true)
}
