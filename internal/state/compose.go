package state

import (
	"fmt"
	"reflect"
	"sync"
)

// fieldKind selects how a struct field takes part in the fold.
type fieldKind int

const (
	fieldScalar fieldKind = iota + 1 // equality compare, assignment update
	fieldState                       // pointer has Matches/Update methods
	fieldStatePtr                    // field is itself such a pointer, may be nil
)

type fieldPlan struct {
	index   int
	name    string
	kind    fieldKind
	matches int // method index on the pointer type, state kinds only
	update  int // method index on the pointer type, -1 if absent
	elem    reflect.Type
}

// match compares one field pair. Two nil state pointers match; a nil
// against a non-nil one does not.
func (f fieldPlan) match(fa, fb reflect.Value) bool {
	switch f.kind {
	case fieldState:
		return fa.Addr().Method(f.matches).Call([]reflect.Value{fb.Addr()})[0].Bool()
	case fieldStatePtr:
		if fa.IsNil() || fb.IsNil() {
			return fa.IsNil() == fb.IsNil()
		}
		return fa.Method(f.matches).Call([]reflect.Value{fb})[0].Bool()
	default:
		return fieldEqual(fa, fb)
	}
}

// plans caches the per-type field plan; reflect.Type -> []fieldPlan.
var plans sync.Map

// MatchFields folds Matches over the exported fields of two structs in
// declaration order, stopping at the first mismatch. a and b must be
// non-nil pointers to the same struct type.
//
// Fields tagged `kmc:"-"` are skipped.
func MatchFields(a, b any) bool {
	va, vb := structPair("MatchFields", a, b)
	for _, f := range planFor(va.Type()) {
		if !f.match(va.Field(f.index), vb.Field(f.index)) {
			return false
		}
	}
	return true
}

// UpdateFields folds Update over the exported fields of two structs in
// declaration order. dst and src must be non-nil pointers to the same
// struct type.
func UpdateFields(dst, src any) {
	vd, vs := structPair("UpdateFields", dst, src)
	for _, f := range planFor(vd.Type()) {
		fd := vd.Field(f.index)
		fs := vs.Field(f.index)
		switch {
		case f.kind == fieldState && f.update >= 0:
			fd.Addr().Method(f.update).Call([]reflect.Value{fs.Addr()})
		case f.kind == fieldState:
			// Matches without Update: nothing to absorb.
		case f.kind == fieldStatePtr:
			updatePointer(f, fd, fs)
		default:
			fd.Set(cloneValue(fs))
		}
	}
}

// FieldMismatches returns the names of the exported fields that do not
// match, in declaration order. It is used for mismatch diagnostics.
func FieldMismatches(a, b any) []string {
	va, vb := structPair("FieldMismatches", a, b)
	var names []string
	for _, f := range planFor(va.Type()) {
		if !f.match(va.Field(f.index), vb.Field(f.index)) {
			names = append(names, f.name)
		}
	}
	return names
}

func structPair(op string, a, b any) (reflect.Value, reflect.Value) {
	va := reflect.ValueOf(a)
	vb := reflect.ValueOf(b)
	if va.Kind() != reflect.Pointer || va.IsNil() || va.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("state.%s: want non-nil pointer to struct, got %T", op, a))
	}
	if va.Type() != vb.Type() || vb.IsNil() {
		panic(fmt.Sprintf("state.%s: mismatched operands %T and %T", op, a, b))
	}
	return va.Elem(), vb.Elem()
}

func planFor(t reflect.Type) []fieldPlan {
	if p, ok := plans.Load(t); ok {
		return p.([]fieldPlan)
	}
	var plan []fieldPlan
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() || sf.Tag.Get("kmc") == "-" {
			continue
		}
		fp := fieldPlan{index: i, name: sf.Name, kind: fieldScalar, update: -1}
		if sf.Type.Kind() == reflect.Pointer {
			pt := sf.Type
			if m, ok := pt.MethodByName("Matches"); ok && selfMethod(m, pt, 1) {
				fp.kind = fieldStatePtr
				fp.matches = m.Index
				fp.elem = pt.Elem()
				if u, ok := pt.MethodByName("Update"); ok && selfMethod(u, pt, 0) {
					fp.update = u.Index
				}
			}
			plan = append(plan, fp)
			continue
		}
		pt := reflect.PointerTo(sf.Type)
		if m, ok := pt.MethodByName("Matches"); ok && selfMethod(m, pt, 1) {
			fp.kind = fieldState
			fp.matches = m.Index
			if u, ok := pt.MethodByName("Update"); ok && selfMethod(u, pt, 0) {
				fp.update = u.Index
			}
		}
		plan = append(plan, fp)
	}
	p, _ := plans.LoadOrStore(t, plan)
	return p.([]fieldPlan)
}

// updatePointer absorbs a state pointer field. A nil source clears the
// destination. The destination never shares a pointee with the source.
func updatePointer(f fieldPlan, fd, fs reflect.Value) {
	if fs.IsNil() {
		fd.Set(reflect.Zero(fd.Type()))
		return
	}
	if fd.IsNil() || fd.Pointer() == fs.Pointer() {
		fd.Set(reflect.New(f.elem))
	}
	if f.update < 0 {
		return
	}
	fd.Method(f.update).Call([]reflect.Value{fs})
}

// selfMethod reports whether m has the shape func(*T) with the given number
// of results. m comes from a method set, so its Type includes the receiver.
func selfMethod(m reflect.Method, pt reflect.Type, results int) bool {
	mt := m.Type
	return mt.NumIn() == 2 && mt.In(1) == pt && mt.NumOut() == results &&
		(results == 0 || mt.Out(0).Kind() == reflect.Bool)
}

func fieldEqual(a, b reflect.Value) bool {
	if a.Comparable() {
		return a.Equal(b)
	}
	return reflect.DeepEqual(a.Interface(), b.Interface())
}
