package layout

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
)

type (
	rawLayout struct {
		Storage []rawVariable      `json:"storage"`
		Types   map[string]rawType `json:"types"`
	}

	rawVariable struct {
		Label  string `json:"label"`
		Offset int    `json:"offset"`
		Slot   string `json:"slot"`
		Type   string `json:"type"`
	}

	rawType struct {
		Encoding      string        `json:"encoding"`
		Label         string        `json:"label"`
		NumberOfBytes string        `json:"numberOfBytes"`
		Base          string        `json:"base,omitempty"`
		Key           string        `json:"key,omitempty"`
		Value         string        `json:"value,omitempty"`
		Members       []rawVariable `json:"members,omitempty"`
	}
)

// ParseLayout parses the compiler's storageLayout JSON output.
func ParseLayout(data []byte) (*Layout, error) {
	var raw rawLayout
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal storage layout: %w", err)
	}

	layout := &Layout{Types: make(map[string]*Type, len(raw.Types))}

	// Nodes first, shapes second: struct and mapping types may refer to each
	// other cyclically.
	for id, rt := range raw.Types {
		size, err := strconv.Atoi(rt.NumberOfBytes)
		if err != nil {
			return nil, fmt.Errorf("type %s: invalid numberOfBytes '%s': %w", id, rt.NumberOfBytes, err)
		}
		layout.Types[id] = &Type{
			ID:            id,
			Label:         rt.Label,
			Encoding:      normalizeEncoding(rt.Encoding),
			NumberOfBytes: size,
		}
	}

	var errs []error
	for id, rt := range raw.Types {
		shape, err := layout.shapeOf(layout.Types[id], rt)
		if err != nil {
			errs = append(errs, fmt.Errorf("type %s: %w", id, err))
			continue
		}
		layout.Types[id].Shape = shape
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	storage, err := layout.variables(raw.Storage)
	if err != nil {
		return nil, err
	}
	layout.Storage = storage

	return layout, nil
}

func normalizeEncoding(encoding string) Encoding {
	if encoding == "dynamicArray" {
		return EncodingDynamicArray
	}
	return Encoding(encoding)
}

func (l *Layout) lookup(id string) (*Type, error) {
	t, ok := l.Types[id]
	if !ok {
		return nil, fmt.Errorf("unknown type '%s'", id)
	}
	return t, nil
}

func (l *Layout) variables(raw []rawVariable) ([]Variable, error) {
	vars := make([]Variable, 0, len(raw))
	for _, rv := range raw {
		t, err := l.lookup(rv.Type)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", rv.Label, err)
		}
		slot, err := uint256.FromDecimal(rv.Slot)
		if err != nil {
			return nil, fmt.Errorf("variable %s: invalid slot '%s': %w", rv.Label, rv.Slot, err)
		}
		if rv.Offset < 0 || rv.Offset > 31 {
			return nil, fmt.Errorf("variable %s: offset %d out of range", rv.Label, rv.Offset)
		}
		vars = append(vars, Variable{Label: rv.Label, Slot: slot, Offset: rv.Offset, Type: t})
	}
	return vars, nil
}

func (l *Layout) shapeOf(t *Type, rt rawType) (Shape, error) {
	switch t.Encoding {
	case EncodingBytes:
		return &Bytes{UTF8: rt.Label == "string"}, nil

	case EncodingMapping:
		key, err := l.lookup(rt.Key)
		if err != nil {
			return nil, err
		}
		value, err := l.lookup(rt.Value)
		if err != nil {
			return nil, err
		}
		return &Mapping{Key: key, Value: value}, nil

	case EncodingDynamicArray:
		base, err := l.lookup(rt.Base)
		if err != nil {
			return nil, err
		}
		return &DynamicArray{Base: base}, nil

	case EncodingInplace:
		// A fixed array of structs carries a struct label too, so base goes first.
		if rt.Base != "" {
			base, err := l.lookup(rt.Base)
			if err != nil {
				return nil, err
			}
			length, err := fixedArrayLength(rt.Label)
			if err != nil {
				return nil, err
			}
			return &FixedArray{Base: base, Length: length}, nil
		}
		if rt.Members != nil || strings.HasPrefix(rt.Label, "struct ") {
			members, err := l.variables(rt.Members)
			if err != nil {
				return nil, err
			}
			return &Struct{Members: members}, nil
		}
		return parseScalar(rt.Label, t.NumberOfBytes)

	default:
		return nil, fmt.Errorf("unsupported encoding '%s'", t.Encoding)
	}
}

// fixedArrayLength reads the outermost dimension from a label like "uint8[2][3]".
func fixedArrayLength(label string) (int, error) {
	open := strings.LastIndex(label, "[")
	if open < 0 || !strings.HasSuffix(label, "]") {
		return 0, fmt.Errorf("cannot read array length from label '%s'", label)
	}
	length, err := strconv.Atoi(label[open+1 : len(label)-1])
	if err != nil || length <= 0 {
		return 0, fmt.Errorf("invalid fixed array length in label '%s'", label)
	}
	return length, nil
}

func parseScalar(label string, size int) (*Scalar, error) {
	switch {
	case label == "address", label == "address payable", strings.HasPrefix(label, "contract "):
		return &Scalar{Kind: ScalarAddress, Size: 20}, nil
	case label == "bool":
		return &Scalar{Kind: ScalarBool, Size: 1}, nil
	case strings.HasPrefix(label, "enum "):
		return &Scalar{Kind: ScalarEnum, Size: size}, nil
	case strings.HasPrefix(label, "bytes"):
		n, err := bitSuffix(label, "bytes", 1, 32)
		if err != nil {
			return nil, err
		}
		return &Scalar{Kind: ScalarFixedBytes, Size: n}, nil
	case strings.HasPrefix(label, "uint"):
		bits, err := bitSuffix(label, "uint", 8, 256)
		if err != nil {
			return nil, err
		}
		return &Scalar{Kind: ScalarUint, Size: bits / 8}, nil
	case strings.HasPrefix(label, "int"):
		bits, err := bitSuffix(label, "int", 8, 256)
		if err != nil {
			return nil, err
		}
		return &Scalar{Kind: ScalarInt, Size: bits / 8}, nil
	default:
		return nil, fmt.Errorf("unsupported storage type '%s'", label)
	}
}

func bitSuffix(label, prefix string, minimum, maximum int) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(label, prefix))
	if err != nil || n < minimum || n > maximum {
		return 0, fmt.Errorf("invalid type label '%s'", label)
	}
	if prefix != "bytes" && n%8 != 0 {
		return 0, fmt.Errorf("invalid type label '%s'", label)
	}
	return n, nil
}
