// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package propquery

import (
	"github.com/probechain/pscript/heap"
	"github.com/probechain/pscript/proptable"
	"github.com/probechain/pscript/value"
)

// Caller invokes a function value with an explicit receiver; implemented
// by interp so propquery can run getters/setters without importing the
// interpreter.
type Caller interface {
	CallFunction(fn value.Value, this value.Value, args []value.Value) (value.Value, error)
}

// StringCharAt is supplied by the caller so Get/Set can finish the
// StringValue outcome without propquery
// importing heap's String helpers directly into its control flow.
type Accessors struct {
	StringCharAt func(base value.Value, index int) value.Value
}

// Get implements §4.3 get-mode semantics on top of Query.
func Get(caller Caller, ctx Context, acc Accessors, base value.Value, key value.PropertyKey) (value.Value, error) {
	res, err := Query(ctx, base, key, Get)
	if err != nil {
		return value.Value{}, err
	}
	switch res.Outcome {
	case Found:
		switch res.Descriptor.Kind {
		case proptable.KindAccessor:
			if res.Descriptor.Get.Tag() == value.Undefined {
				return value.Undef(), nil
			}
			return caller.CallFunction(res.Descriptor.Get, base, nil)
		case proptable.KindHandler:
			return res.Descriptor.Handler(base, nil)
		default:
			return res.Descriptor.Value, nil
		}
	case StringValue:
		return acc.StringCharAt(base, res.Index), nil
	case ArrayValue:
		arr := base.Ref().(*heap.Array)
		return arr.Get(res.Index), nil
	case ExternalValue:
		return value.Undef(), nil // host addon is expected to intercept before reaching here
	default:
		return value.Undef(), nil
	}
}

// Set implements §4.3 set-mode semantics: cloning a shared descriptor
// into the instance before assignment, invoking accessor setters and
// handlers, and inserting a new own data property when nothing was
// found and the base is extensible.
func Set(caller Caller, ctx Context, base value.Value, key value.PropertyKey, v value.Value) error {
	res, err := Query(ctx, base, key, Set)
	if err != nil {
		return err
	}
	switch res.Outcome {
	case Found:
		switch res.Descriptor.Kind {
		case proptable.KindAccessor:
			if res.Descriptor.Set.Tag() == value.Undefined {
				return nil // no setter: silently ignored outside strict mode
			}
			_, err := caller.CallFunction(res.Descriptor.Set, base, []value.Value{v})
			return err
		case proptable.KindHandler:
			_, err := res.Descriptor.Handler(base, &v)
			return err
		default:
			if !res.Descriptor.Writable {
				return nil
			}
			d := res.Descriptor
			d.Value = v
			if res.Shared || !res.Own {
				// Cloned-on-write: the instance (not the holder) receives
				// its own copy of the property before assignment.
				obj, ok := base.Ref().(Holder)
				if !ok {
					return nil
				}
				obj.MutableOwn().Replace(d)
				return nil
			}
			res.Holder.MutableOwn().Replace(d)
			return nil
		}
	case ArrayValue:
		arr := base.Ref().(*heap.Array)
		arr.Set(res.Index, v)
		return nil
	case StringValue, PrimitiveValue, ExternalValue:
		return nil
	case Declined:
		obj, ok := base.Ref().(Holder)
		if !ok {
			return nil
		}
		if eo, ok := obj.(interface{ Extensible() bool }); ok && !eo.Extensible() {
			return nil
		}
		obj.MutableOwn().Insert(proptable.Descriptor{
			Kind: proptable.KindData, Key: key, Value: v,
			Writable: true, Enumerable: true, Configurable: true,
		})
		return nil
	default:
		return nil
	}
}

// Delete implements §4.3 delete-mode semantics: only configurable own
// properties are removed outright; a shadowed shared property is
// replaced with a whiteout so the prototype entry does not reappear.
func Delete(ctx Context, base value.Value, key value.PropertyKey) (bool, error) {
	res, err := Query(ctx, base, key, Delete)
	if err != nil {
		return false, err
	}
	switch res.Outcome {
	case Found:
		if !res.Descriptor.Configurable {
			return false, nil
		}
		obj, ok := base.Ref().(Holder)
		if !ok {
			return false, nil
		}
		if res.Own && !res.Shared {
			return obj.MutableOwn().Delete(key), nil
		}
		obj.MutableOwn().Insert(proptable.Descriptor{Kind: proptable.KindWhiteout, Key: key})
		return true, nil
	default:
		return true, nil // deleting an absent property reports success
	}
}

// In implements §4.3 in-mode semantics: any found property (whiteouts
// already filtered by Query) reports true.
func In(ctx Context, base value.Value, key value.PropertyKey) (bool, error) {
	res, err := Query(ctx, base, key, In)
	if err != nil {
		return false, err
	}
	return res.Outcome == Found || res.Outcome == StringValue || res.Outcome == ArrayValue, nil
}
