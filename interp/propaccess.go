// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package interp

import (
	"github.com/probechain/pscript/propquery"
	"github.com/probechain/pscript/value"
)

func (vm *VM) propSet(base value.Value, key value.PropertyKey, v value.Value) error {
	return propquery.Set(vm, vm.propCtx, base, key, v)
}

func (vm *VM) propDelete(base value.Value, key value.PropertyKey) (bool, error) {
	return propquery.Delete(vm.propCtx, base, key)
}

func (vm *VM) propIn(base value.Value, key value.PropertyKey) (bool, error) {
	return propquery.In(vm.propCtx, base, key)
}
