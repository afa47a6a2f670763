// lynon.go — the Lynon binary object codec.
//
// Lynon serializes runtime values into a compact tagged byte stream: one
// tag byte per value, LEB128 varints (zigzag for signed values), length
// prefixes for strings and collections. Class instances carry their class
// name, the persistent-field count and the field values positionally in
// declaration order; field names are never written. Transient fields are
// skipped on encode and re-initialized from their declared initializers on
// decode.
//
// Decoding resolves class names against a resolver, normally the scope
// chain of the decoding execution: the closest declaration of the name
// wins, so two executions holding different classes under the same name
// each decode into their own.
//
// Functions, tasks, streams, classes and module references are not
// encodable; encoding them is an error, never a silent drop.
package lyng

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

const (
	lynNull byte = iota
	lynVoid
	lynFalse
	lynTrue
	lynInt
	lynReal
	lynChar
	lynStr
	lynList
	lynMap
	lynRange
	lynRangeX
	lynInstance
)

// EncodeLynon serializes v. The encoding is deterministic for a given
// value: map entries keep insertion order, instance fields keep declaration
// order.
func EncodeLynon(v Value) ([]byte, error) {
	var buf []byte
	return appendLynon(buf, v)
}

func appendLynon(buf []byte, v Value) ([]byte, error) {
	switch v.Kind {
	case KNull:
		return append(buf, lynNull), nil
	case KVoid:
		return append(buf, lynVoid), nil
	case KBool:
		if v.Data.(bool) {
			return append(buf, lynTrue), nil
		}
		return append(buf, lynFalse), nil
	case KInt:
		buf = append(buf, lynInt)
		return appendZigzag(buf, v.Data.(int64)), nil
	case KReal:
		buf = append(buf, lynReal)
		return binary.BigEndian.AppendUint64(buf, math.Float64bits(v.Data.(float64))), nil
	case KChar:
		buf = append(buf, lynChar)
		return appendUvarint(buf, uint64(v.Data.(rune))), nil
	case KStr:
		buf = append(buf, lynStr)
		return appendString(buf, v.Data.(string)), nil
	case KList:
		items := v.Data.(*List).Items
		buf = append(buf, lynList)
		buf = appendUvarint(buf, uint64(len(items)))
		var err error
		for _, x := range items {
			if buf, err = appendLynon(buf, x); err != nil {
				return nil, err
			}
		}
		return buf, nil
	case KMap:
		mo := v.Data.(*MapObject)
		buf = append(buf, lynMap)
		buf = appendUvarint(buf, uint64(len(mo.Keys)))
		var err error
		for _, k := range mo.Keys {
			buf = appendString(buf, k)
			if buf, err = appendLynon(buf, mo.Entries[k]); err != nil {
				return nil, err
			}
		}
		return buf, nil
	case KRange:
		rg := v.Data.(*Range)
		tag := lynRange
		if rg.Exclusive {
			tag = lynRangeX
		}
		buf = append(buf, tag)
		buf = appendZigzag(buf, rg.Lo)
		return appendZigzag(buf, rg.Hi), nil
	case KInstance:
		return appendInstance(buf, v.Data.(*Instance))
	}
	return nil, errors.Errorf("values of type %s cannot be encoded", v.Kind)
}

func appendInstance(buf []byte, inst *Instance) ([]byte, error) {
	buf = append(buf, lynInstance)
	buf = appendString(buf, inst.Class.Name)

	fields := inst.Class.allFields()
	n := 0
	for _, fs := range fields {
		if !fs.Transient {
			n++
		}
	}
	buf = appendUvarint(buf, uint64(n))
	var err error
	for _, fs := range fields {
		if fs.Transient {
			continue
		}
		fv, ok := inst.Fields[fs.Name]
		if !ok {
			fv = Null
		}
		if buf, err = appendLynon(buf, fv); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func appendString(buf []byte, s string) []byte {
	buf = appendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

func appendUvarint(buf []byte, u uint64) []byte {
	return binary.AppendUvarint(buf, u)
}

func appendZigzag(buf []byte, n int64) []byte {
	return binary.AppendUvarint(buf, uint64((n<<1)^(n>>63)))
}

// ----- decoding -----

// ClassResolver maps an encoded class name to a class descriptor.
type ClassResolver func(name string) (*Class, bool)

// ScopeResolver resolves class names against a scope chain: the nearest
// binding holding a class under that name wins.
func ScopeResolver(sc *Scope) ClassResolver {
	return func(name string) (*Class, bool) {
		v, ok := sc.Get(name)
		if !ok || v.Kind != KClass {
			return nil, false
		}
		return v.Data.(*Class), true
	}
}

type lynonReader struct {
	data []byte
	at   int
}

func (lr *lynonReader) byte() (byte, error) {
	if lr.at >= len(lr.data) {
		return 0, errors.New("lynon: truncated input")
	}
	b := lr.data[lr.at]
	lr.at++
	return b, nil
}

func (lr *lynonReader) uvarint() (uint64, error) {
	u, n := binary.Uvarint(lr.data[lr.at:])
	if n <= 0 {
		return 0, errors.New("lynon: bad varint")
	}
	lr.at += n
	return u, nil
}

func (lr *lynonReader) zigzag() (int64, error) {
	u, err := lr.uvarint()
	if err != nil {
		return 0, err
	}
	return int64(u>>1) ^ -int64(u&1), nil
}

func (lr *lynonReader) str() (string, error) {
	n, err := lr.uvarint()
	if err != nil {
		return "", err
	}
	if uint64(len(lr.data)-lr.at) < n {
		return "", errors.New("lynon: truncated string")
	}
	s := string(lr.data[lr.at : lr.at+int(n)])
	lr.at += int(n)
	return s, nil
}

// DecodeLynon deserializes one value. Instances of unknown classes are an
// error; transient fields of decoded instances are left Null (use
// Interp.DecodeLynon to re-run their initializers).
func DecodeLynon(data []byte, resolve ClassResolver) (Value, error) {
	lr := &lynonReader{data: data}
	v, err := lr.value(resolve)
	if err != nil {
		return Value{}, err
	}
	if lr.at != len(lr.data) {
		return Value{}, errors.Errorf("lynon: %d trailing bytes", len(lr.data)-lr.at)
	}
	return v, nil
}

func (lr *lynonReader) value(resolve ClassResolver) (Value, error) {
	tag, err := lr.byte()
	if err != nil {
		return Value{}, err
	}
	switch tag {
	case lynNull:
		return Null, nil
	case lynVoid:
		return Void, nil
	case lynFalse:
		return BoolOf(false), nil
	case lynTrue:
		return BoolOf(true), nil
	case lynInt:
		n, err := lr.zigzag()
		return IntOf(n), err
	case lynReal:
		if len(lr.data)-lr.at < 8 {
			return Value{}, errors.New("lynon: truncated real")
		}
		bits := binary.BigEndian.Uint64(lr.data[lr.at:])
		lr.at += 8
		return RealOf(math.Float64frombits(bits)), nil
	case lynChar:
		u, err := lr.uvarint()
		return CharOf(rune(u)), err
	case lynStr:
		s, err := lr.str()
		return StrOf(s), err
	case lynList:
		n, err := lr.uvarint()
		if err != nil {
			return Value{}, err
		}
		out := make([]Value, 0, n)
		for i := uint64(0); i < n; i++ {
			x, err := lr.value(resolve)
			if err != nil {
				return Value{}, err
			}
			out = append(out, x)
		}
		return ListOf(out), nil
	case lynMap:
		n, err := lr.uvarint()
		if err != nil {
			return Value{}, err
		}
		mo := NewMapObject()
		for i := uint64(0); i < n; i++ {
			k, err := lr.str()
			if err != nil {
				return Value{}, err
			}
			x, err := lr.value(resolve)
			if err != nil {
				return Value{}, err
			}
			mo.Set(k, x)
		}
		return MapOf(mo), nil
	case lynRange, lynRangeX:
		lo, err := lr.zigzag()
		if err != nil {
			return Value{}, err
		}
		hi, err := lr.zigzag()
		if err != nil {
			return Value{}, err
		}
		return RangeOf(lo, hi, tag == lynRangeX), nil
	case lynInstance:
		return lr.instance(resolve)
	}
	return Value{}, errors.Errorf("lynon: unknown tag 0x%02x", tag)
}

func (lr *lynonReader) instance(resolve ClassResolver) (Value, error) {
	name, err := lr.str()
	if err != nil {
		return Value{}, err
	}
	cls, ok := resolve(name)
	if !ok {
		return Value{}, errors.Errorf("lynon: class %q is not defined in the decoding scope", name)
	}
	n, err := lr.uvarint()
	if err != nil {
		return Value{}, err
	}
	var persistent []FieldSpec
	for _, fs := range cls.allFields() {
		if !fs.Transient {
			persistent = append(persistent, fs)
		}
	}
	if n != uint64(len(persistent)) {
		return Value{}, errors.Errorf(
			"lynon: class %s declares %d persistent fields, stream carries %d",
			name, len(persistent), n)
	}
	inst := NewInstance(cls)
	for _, fs := range persistent {
		fv, err := lr.value(resolve)
		if err != nil {
			return Value{}, err
		}
		inst.Fields[fs.Name] = fv
	}
	return InstOf(inst), nil
}

// DecodeLynon decodes data against sc and re-initializes transient fields
// of decoded instances by running their declared initializers. A failing
// initializer surfaces as *ExecError.
func (in *Interp) DecodeLynon(ctx context.Context, sc *Scope, data []byte) (v Value, err error) {
	v, err = DecodeLynon(data, ScopeResolver(sc))
	if err != nil {
		return Value{}, err
	}
	r := &Runner{interp: in, ctx: ctx, pool: &scopePool{}}
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		ts, ok := rec.(*throwSignal)
		if !ok {
			panic(rec)
		}
		v, err = Value{}, &ExecError{Pos: ts.pos, Msg: exceptionMessage(ts.val), Thrown: ts.val}
	}()
	reinitTransients(r, v)
	return v, nil
}

// reinitTransients walks the decoded value and evaluates transient-field
// initializers with the instance as receiver.
func reinitTransients(r *Runner, v Value) {
	switch v.Kind {
	case KList:
		for _, x := range v.Data.(*List).Items {
			reinitTransients(r, x)
		}
	case KMap:
		mo := v.Data.(*MapObject)
		for _, k := range mo.Keys {
			reinitTransients(r, mo.Entries[k])
		}
	case KInstance:
		inst := v.Data.(*Instance)
		for _, x := range inst.Fields {
			reinitTransients(r, x)
		}
		frame := r.pool.get(inst.Class.declScope)
		frame.recv = v
		frame.hasRecv = true
		for _, fs := range inst.Class.allFields() {
			if !fs.Transient {
				continue
			}
			if fs.Init != nil {
				inst.Fields[fs.Name] = fs.Init.eval(r, frame)
			} else {
				inst.Fields[fs.Name] = Null
			}
		}
		r.pool.put(frame)
	}
}
