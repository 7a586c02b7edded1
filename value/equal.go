// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package value

import "math"

// StrictEqual implements §4.1 strict_equal. Tags must match; NaN != NaN;
// +0 == -0; strings compare by content after a length gate; symbols and
// objects compare by Ref identity.
func StrictEqual(a, b Value) bool {
	if a.tag != b.tag {
		return false
	}
	switch a.tag {
	case Undefined, Null:
		return true
	case Bool:
		return a.AsBool() == b.AsBool()
	case Number:
		if math.IsNaN(a.num) || math.IsNaN(b.num) {
			return false
		}
		return a.num == b.num
	case String:
		as, _ := StringContent(a)
		bs, _ := StringContent(b)
		return len(as) == len(bs) && as == bs
	case Symbol:
		return a.ref == b.ref
	default:
		// Object-kinded, Data, External: compare by Ref pointer identity.
		return a.ref == b.ref
	}
}

// LooseEqual implements §4.1 loose_equal: strict_equal when tags match;
// null <-> undefined equal; number<->string via numeric conversion;
// boolean coerces to number; object<->primitive via to_primitive(default),
// retried once (ECMAScript's abstract equality never recurses more than
// one object-to-primitive step).
func LooseEqual(rt Runtime, a, b Value) (bool, error) {
	if a.tag == b.tag {
		return StrictEqual(a, b), nil
	}
	if a.IsNullish() && b.IsNullish() {
		return true, nil
	}
	if a.IsNullish() || b.IsNullish() {
		return false, nil
	}
	if a.tag == Number && b.tag == String {
		bn, err := ToNumber(rt, b)
		if err != nil {
			return false, err
		}
		return numEqual(a.num, bn), nil
	}
	if a.tag == String && b.tag == Number {
		return LooseEqual(rt, b, a)
	}
	if a.tag == Bool {
		an, err := ToNumber(rt, a)
		if err != nil {
			return false, err
		}
		return LooseEqual(rt, Number1(an), b)
	}
	if b.tag == Bool {
		bn, err := ToNumber(rt, b)
		if err != nil {
			return false, err
		}
		return LooseEqual(rt, a, Number1(bn))
	}
	if a.IsObjectKind() && !b.IsObjectKind() {
		ap, err := ToPrimitive(rt, a, HintDefault)
		if err != nil {
			return false, err
		}
		return LooseEqual(rt, ap, b)
	}
	if b.IsObjectKind() && !a.IsObjectKind() {
		bp, err := ToPrimitive(rt, b, HintDefault)
		if err != nil {
			return false, err
		}
		return LooseEqual(rt, a, bp)
	}
	return false, nil
}

func numEqual(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return false
	}
	return a == b
}
