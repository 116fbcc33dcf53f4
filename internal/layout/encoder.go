package layout

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/compose-network/bundle-deployer/internal/diagnostics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

type (
	// cursor is the position a value is being written to: an absolute slot and
	// the byte offset inside it.
	cursor struct {
		path   string
		value  any
		slot   *uint256.Int
		offset int
	}

	encoder struct {
		segments []Segment
	}
)

// Encode turns values, keyed by top level variable name, into storage segments.
// Every problem is recorded in diags under the variable's name; a variable that
// fails contributes no segments. Variables without a value are left untouched.
func Encode(layout *Layout, values map[string]any, diags *diagnostics.Diagnostics) []Segment {
	known := make(map[string]struct{}, len(layout.Storage))
	var segments []Segment

	for _, variable := range layout.Storage {
		known[variable.Label] = struct{}{}
		value, ok := values[variable.Label]
		if !ok {
			continue
		}

		encoded, err := EncodeVariable(variable, value)
		if err != nil {
			diags.Add(variable.Label, err)
			continue
		}
		segments = append(segments, encoded...)
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := known[name]; !ok {
			diags.Invalidf(name, "variable is not declared in the storage layout")
		}
	}

	return segments
}

// EncodeVariable encodes a single top level variable.
func EncodeVariable(variable Variable, value any) ([]Segment, error) {
	e := &encoder{}
	err := e.encode(variable.Type, cursor{
		path:   variable.Label,
		value:  value,
		slot:   new(uint256.Int).Set(variable.Slot),
		offset: variable.Offset,
	})
	if err != nil {
		return nil, err
	}
	if err := checkOverlap(variable.Label, e.segments); err != nil {
		return nil, err
	}
	return e.segments, nil
}

func (e *encoder) encode(t *Type, c cursor) error {
	if t.Shape == nil {
		return encodingErrorf(c.path, "type %s has no resolved shape", t.ID)
	}
	if c.value == nil {
		return encodingErrorf(c.path, "missing value for %s", t.Label)
	}
	return t.Shape.accept(e, t, c)
}

func (e *encoder) emit(c cursor, value []byte) error {
	segment := Segment{Slot: slotKey(c.slot), Offset: c.offset, Value: value}
	if err := segment.Validate(); err != nil {
		var encErr *EncodingError
		if errors.As(err, &encErr) {
			return encodingErrorf(c.path, "%s", encErr.Reason)
		}
		return err
	}
	e.segments = append(e.segments, segment)
	return nil
}

func (e *encoder) visitScalar(t *Type, s *Scalar, c cursor) error {
	b, err := encodeScalar(s, c.value)
	if err != nil {
		return encodingErrorf(c.path, "%s: %v", t.Label, err)
	}
	return e.emit(c, b)
}

func (e *encoder) visitFixedArray(t *Type, a *FixedArray, c cursor) error {
	items, ok := c.value.([]any)
	if !ok {
		return encodingErrorf(c.path, "%s: expected list, got %T", t.Label, c.value)
	}
	if len(items) != a.Length {
		return encodingErrorf(c.path, "%s: expected %d elements, got %d", t.Label, a.Length, len(items))
	}
	if c.offset != 0 {
		return encodingErrorf(c.path, "%s: arrays must start at offset 0, got %d", t.Label, c.offset)
	}
	return e.encodeSequence(a.Base, items, c.slot, c.path)
}

// encodeSequence lays items out contiguously from start. Elements smaller than
// a slot are packed while they fit; larger ones each start a fresh slot and
// advance by the number of slots they span.
func (e *encoder) encodeSequence(base *Type, items []any, start *uint256.Int, path string) error {
	size := base.NumberOfBytes
	if size <= 0 {
		return encodingErrorf(path, "element type %s has no size", base.Label)
	}
	slotsPerElement := uint64((size + 31) / 32)

	slot := new(uint256.Int).Set(start)
	offset := 0
	for i, item := range items {
		if size >= 32 {
			if i > 0 {
				slot.AddUint64(slot, slotsPerElement)
			}
			offset = 0
		} else if offset+size > 32 {
			slot.AddUint64(slot, 1)
			offset = 0
		}

		err := e.encode(base, cursor{
			path:   fmt.Sprintf("%s[%d]", path, i),
			value:  item,
			slot:   new(uint256.Int).Set(slot),
			offset: offset,
		})
		if err != nil {
			return err
		}

		if size < 32 {
			offset += size
		}
	}
	return nil
}

func (e *encoder) visitStruct(t *Type, s *Struct, c cursor) error {
	fields, ok := asMap(c.value)
	if !ok {
		return encodingErrorf(c.path, "%s: expected object, got %T", t.Label, c.value)
	}
	if c.offset != 0 {
		return encodingErrorf(c.path, "%s: structs must start at offset 0, got %d", t.Label, c.offset)
	}

	declared := make(map[string]struct{}, len(s.Members))
	for _, member := range s.Members {
		declared[member.Label] = struct{}{}
		value, ok := fields[member.Label]
		if !ok {
			return encodingErrorf(c.path, "%s: missing member '%s'", t.Label, member.Label)
		}
		err := e.encode(member.Type, cursor{
			path:   c.path + "." + member.Label,
			value:  value,
			slot:   new(uint256.Int).Add(c.slot, member.Slot),
			offset: member.Offset,
		})
		if err != nil {
			return err
		}
	}

	for _, name := range sortedKeys(fields) {
		if _, ok := declared[name]; !ok {
			return encodingErrorf(c.path, "%s: unknown member '%s'", t.Label, name)
		}
	}
	return nil
}

func (e *encoder) visitMapping(t *Type, m *Mapping, c cursor) error {
	entries, ok := asMap(c.value)
	if !ok {
		return encodingErrorf(c.path, "%s: expected object, got %T", t.Label, c.value)
	}

	base := slotKey(c.slot)
	for _, key := range sortedKeys(entries) {
		encodedKey, err := encodeMappingKey(m.Key, key)
		if err != nil {
			return encodingErrorf(c.path, "%s: key '%s': %v", t.Label, key, err)
		}
		err = e.encode(m.Value, cursor{
			path:   fmt.Sprintf("%s[%s]", c.path, key),
			value:  entries[key],
			slot:   MappingSlot(encodedKey, base),
			offset: 0,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) visitDynamicArray(t *Type, a *DynamicArray, c cursor) error {
	items, ok := c.value.([]any)
	if !ok {
		return encodingErrorf(c.path, "%s: expected list, got %T", t.Label, c.value)
	}
	if c.offset != 0 {
		return encodingErrorf(c.path, "%s: arrays must start at offset 0, got %d", t.Label, c.offset)
	}

	length := uint256.NewInt(uint64(len(items))).Bytes32()
	if err := e.emit(c, length[:]); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return e.encodeSequence(a.Base, items, DataSlot(slotKey(c.slot)), c.path)
}

func (e *encoder) visitBytes(t *Type, b *Bytes, c cursor) error {
	data, err := bytesValue(b, c.value)
	if err != nil {
		return encodingErrorf(c.path, "%s: %v", t.Label, err)
	}
	if c.offset != 0 {
		return encodingErrorf(c.path, "%s: must start at offset 0, got %d", t.Label, c.offset)
	}

	if len(data) < 32 {
		word := make([]byte, 32)
		copy(word, data)
		word[31] = byte(len(data) * 2)
		return e.emit(c, word)
	}

	header := uint256.NewInt(uint64(len(data))*2 + 1).Bytes32()
	if err := e.emit(c, header[:]); err != nil {
		return err
	}

	slot := DataSlot(slotKey(c.slot))
	for start := 0; start < len(data); start += 32 {
		chunk := make([]byte, 32)
		copy(chunk, data[start:min(start+32, len(data))])
		err := e.emit(cursor{path: c.path, slot: new(uint256.Int).Set(slot), offset: 0}, chunk)
		if err != nil {
			return err
		}
		slot.AddUint64(slot, 1)
	}
	return nil
}

// MappingSlot is keccak256(encodedKey ‖ base), the slot of a mapping value.
func MappingSlot(encodedKey []byte, base common.Hash) *uint256.Int {
	return new(uint256.Int).SetBytes(crypto.Keccak256(encodedKey, base.Bytes()))
}

// DataSlot is keccak256(slot), where dynamic arrays and long byte strings keep
// their contents.
func DataSlot(slot common.Hash) *uint256.Int {
	return new(uint256.Int).SetBytes(crypto.Keccak256(slot.Bytes()))
}

func encodeMappingKey(keyType *Type, key string) ([]byte, error) {
	switch shape := keyType.Shape.(type) {
	case *Bytes:
		return bytesValue(shape, key)
	case *Scalar:
		value := any(key)
		if shape.Kind == ScalarBool {
			switch key {
			case "true":
				value = true
			case "false":
				value = false
			}
		}
		word, err := abiWord(shape, value)
		if err != nil {
			return nil, err
		}
		return word[:], nil
	default:
		return nil, fmt.Errorf("type %s cannot be a mapping key", keyType.Label)
	}
}

func bytesValue(b *Bytes, v any) ([]byte, error) {
	if b.UTF8 {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return []byte(s), nil
	}
	return toBytes(v)
}

func slotKey(slot *uint256.Int) common.Hash {
	return common.Hash(slot.Bytes32())
}

// asMap accepts both decoded JSON/TOML objects and YAML objects with
// non-string keys.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[strings.TrimSpace(fmt.Sprint(k))] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
