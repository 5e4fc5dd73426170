// Package example reads and writes tf.train.Example protocol buffers without
// generated code, and validates them against an explicit feature schema.
package example

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed is returned when an Example payload is not valid wire data.
var ErrMalformed = errors.New("malformed example")

// Kind identifies which list a Feature carries.
type Kind int

const (
	KindNone Kind = iota
	KindBytes
	KindFloat
	KindInt64
)

func (k Kind) String() string {
	switch k {
	case KindBytes:
		return "bytes"
	case KindFloat:
		return "float"
	case KindInt64:
		return "int64"
	default:
		return "none"
	}
}

// Field numbers of the Example, Features, Feature and *List messages.
const (
	fieldFeatures  protowire.Number = 1
	fieldMapEntry  protowire.Number = 1
	fieldMapKey    protowire.Number = 1
	fieldMapValue  protowire.Number = 2
	fieldBytesList protowire.Number = 1
	fieldFloatList protowire.Number = 2
	fieldInt64List protowire.Number = 3
	fieldListValue protowire.Number = 1
)

// Feature is one named value list of an Example.
type Feature struct {
	Kind   Kind
	Bytes  [][]byte
	Floats []float32
	Int64s []int64
}

// Len returns the number of values in the feature's list.
func (f *Feature) Len() int {
	switch f.Kind {
	case KindBytes:
		return len(f.Bytes)
	case KindFloat:
		return len(f.Floats)
	case KindInt64:
		return len(f.Int64s)
	default:
		return 0
	}
}

// Example is a decoded tf.train.Example.
type Example struct {
	Features map[string]*Feature
}

// New returns an empty Example.
func New() *Example {
	return &Example{Features: make(map[string]*Feature)}
}

// Get returns the named feature.
func (e *Example) Get(name string) (*Feature, bool) {
	f, ok := e.Features[name]
	return f, ok
}

// BytesValue returns the first bytes value of a feature.
func (e *Example) BytesValue(name string) ([]byte, bool) {
	f, ok := e.Features[name]
	if !ok || f.Kind != KindBytes || len(f.Bytes) == 0 {
		return nil, false
	}
	return f.Bytes[0], true
}

// StringValue returns the first bytes value of a feature as a string.
func (e *Example) StringValue(name string) string {
	v, _ := e.BytesValue(name)
	return string(v)
}

// Int64Value returns the first int64 value of a feature.
func (e *Example) Int64Value(name string) (int64, bool) {
	f, ok := e.Features[name]
	if !ok || f.Kind != KindInt64 || len(f.Int64s) == 0 {
		return 0, false
	}
	return f.Int64s[0], true
}

// SetBytes replaces a feature with a bytes list.
func (e *Example) SetBytes(name string, values ...[]byte) {
	e.Features[name] = &Feature{Kind: KindBytes, Bytes: values}
}

// SetFloats replaces a feature with a float list.
func (e *Example) SetFloats(name string, values ...float32) {
	e.Features[name] = &Feature{Kind: KindFloat, Floats: values}
}

// SetInt64s replaces a feature with an int64 list.
func (e *Example) SetInt64s(name string, values ...int64) {
	e.Features[name] = &Feature{Kind: KindInt64, Int64s: values}
}

// Unmarshal decodes a serialized tf.train.Example. Bytes values alias b.
func Unmarshal(b []byte) (*Example, error) {
	ex := New()
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num == fieldFeatures && typ == protowire.BytesType {
			return parseFeatures(v, ex.Features)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ex, nil
}

// walkFields calls fn for every field of a message. v is the payload for
// length-delimited fields and the raw field bytes otherwise.
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		var v []byte
		if typ == protowire.BytesType {
			v, n = protowire.ConsumeBytes(b)
		} else {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n >= 0 {
				v = b[:n]
			}
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %w", ErrMalformed, num, protowire.ParseError(n))
		}
		b = b[n:]

		if err := fn(num, typ, v); err != nil {
			return err
		}
	}
	return nil
}

func parseFeatures(b []byte, into map[string]*Feature) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num != fieldMapEntry || typ != protowire.BytesType {
			return nil
		}
		var key string
		feature := &Feature{}
		err := walkFields(v, func(num protowire.Number, typ protowire.Type, v []byte) error {
			switch {
			case num == fieldMapKey && typ == protowire.BytesType:
				key = string(v)
			case num == fieldMapValue && typ == protowire.BytesType:
				f, err := parseFeature(v)
				if err != nil {
					return err
				}
				feature = f
			}
			return nil
		})
		if err != nil {
			return err
		}
		into[key] = feature
		return nil
	})
}

func parseFeature(b []byte) (*Feature, error) {
	f := &Feature{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if typ != protowire.BytesType {
			return nil
		}
		// Members of a oneof: the last one on the wire wins.
		switch num {
		case fieldBytesList:
			values, err := parseBytesList(v)
			if err != nil {
				return err
			}
			*f = Feature{Kind: KindBytes, Bytes: values}
		case fieldFloatList:
			values, err := parseFloatList(v)
			if err != nil {
				return err
			}
			*f = Feature{Kind: KindFloat, Floats: values}
		case fieldInt64List:
			values, err := parseInt64List(v)
			if err != nil {
				return err
			}
			*f = Feature{Kind: KindInt64, Int64s: values}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

func parseBytesList(b []byte) ([][]byte, error) {
	values := [][]byte{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num == fieldListValue && typ == protowire.BytesType {
			values = append(values, v)
		}
		return nil
	})
	return values, err
}

func parseFloatList(b []byte) ([]float32, error) {
	values := []float32{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num != fieldListValue {
			return nil
		}
		switch typ {
		case protowire.BytesType: // packed
			for len(v) > 0 {
				bits, n := protowire.ConsumeFixed32(v)
				if n < 0 {
					return fmt.Errorf("%w: packed float: %w", ErrMalformed, protowire.ParseError(n))
				}
				values = append(values, math.Float32frombits(bits))
				v = v[n:]
			}
		case protowire.Fixed32Type:
			bits, _ := protowire.ConsumeFixed32(v)
			values = append(values, math.Float32frombits(bits))
		}
		return nil
	})
	return values, err
}

func parseInt64List(b []byte) ([]int64, error) {
	values := []int64{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num != fieldListValue {
			return nil
		}
		switch typ {
		case protowire.BytesType: // packed
			for len(v) > 0 {
				x, n := protowire.ConsumeVarint(v)
				if n < 0 {
					return fmt.Errorf("%w: packed int64: %w", ErrMalformed, protowire.ParseError(n))
				}
				values = append(values, int64(x))
				v = v[n:]
			}
		case protowire.VarintType:
			x, _ := protowire.ConsumeVarint(v)
			values = append(values, int64(x))
		}
		return nil
	})
	return values, err
}

// Marshal serializes the Example with features in name order, so equal
// Examples always produce equal bytes.
func (e *Example) Marshal() []byte {
	names := make([]string, 0, len(e.Features))
	for name := range e.Features {
		names = append(names, name)
	}
	sort.Strings(names)

	var features []byte
	for _, name := range names {
		var entry []byte
		entry = protowire.AppendTag(entry, fieldMapKey, protowire.BytesType)
		entry = protowire.AppendString(entry, name)
		entry = appendMessage(entry, fieldMapValue, marshalFeature(e.Features[name]))
		features = appendMessage(features, fieldMapEntry, entry)
	}

	return appendMessage(nil, fieldFeatures, features)
}

func marshalFeature(f *Feature) []byte {
	var list []byte
	switch f.Kind {
	case KindBytes:
		for _, v := range f.Bytes {
			list = protowire.AppendTag(list, fieldListValue, protowire.BytesType)
			list = protowire.AppendBytes(list, v)
		}
		return appendMessage(nil, fieldBytesList, list)
	case KindFloat:
		var packed []byte
		for _, v := range f.Floats {
			packed = protowire.AppendFixed32(packed, math.Float32bits(v))
		}
		if len(packed) > 0 {
			list = appendMessage(list, fieldListValue, packed)
		}
		return appendMessage(nil, fieldFloatList, list)
	case KindInt64:
		var packed []byte
		for _, v := range f.Int64s {
			packed = protowire.AppendVarint(packed, uint64(v))
		}
		if len(packed) > 0 {
			list = appendMessage(list, fieldListValue, packed)
		}
		return appendMessage(nil, fieldInt64List, list)
	default:
		return nil
	}
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}
