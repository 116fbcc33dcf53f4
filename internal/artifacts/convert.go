package artifacts

import (
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ConvertArg turns a decoded config value into the Go value go-ethereum packs
// for t. Tuples are not supported.
func ConvertArg(t abi.Type, v any) (any, error) {
	switch t.T {
	case abi.AddressTy:
		s, ok := v.(string)
		if !ok || !common.IsHexAddress(s) {
			return nil, fmt.Errorf("expected address, got %v", v)
		}
		return common.HexToAddress(s), nil

	case abi.BoolTy:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", v)
		}
		return b, nil

	case abi.StringTy:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return s, nil

	case abi.BytesTy:
		return hexArg(v)

	case abi.FixedBytesTy:
		data, err := hexArg(v)
		if err != nil {
			return nil, err
		}
		if len(data) != t.Size {
			return nil, fmt.Errorf("expected %d bytes, got %d", t.Size, len(data))
		}
		out := reflect.New(t.GetType()).Elem()
		reflect.Copy(out, reflect.ValueOf(data))
		return out.Interface(), nil

	case abi.UintTy, abi.IntTy:
		x, err := bigArg(v)
		if err != nil {
			return nil, err
		}
		goType := t.GetType()
		if goType == reflect.TypeOf(&big.Int{}) {
			return x, nil
		}
		if t.T == abi.UintTy {
			if x.Sign() < 0 || x.BitLen() > t.Size {
				return nil, fmt.Errorf("value %s out of range for uint%d", x, t.Size)
			}
			return reflect.ValueOf(x.Uint64()).Convert(goType).Interface(), nil
		}
		limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
		if x.Cmp(new(big.Int).Neg(limit)) < 0 || x.Cmp(limit) >= 0 {
			return nil, fmt.Errorf("value %s out of range for int%d", x, t.Size)
		}
		return reflect.ValueOf(x.Int64()).Convert(goType).Interface(), nil

	case abi.SliceTy, abi.ArrayTy:
		items, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("expected list, got %T", v)
		}
		if t.T == abi.ArrayTy && len(items) != t.Size {
			return nil, fmt.Errorf("expected %d elements, got %d", t.Size, len(items))
		}
		out := reflect.New(t.GetType()).Elem()
		if t.T == abi.SliceTy {
			out = reflect.MakeSlice(t.GetType(), len(items), len(items))
		}
		for i, item := range items {
			converted, err := ConvertArg(*t.Elem, item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out.Index(i).Set(reflect.ValueOf(converted))
		}
		return out.Interface(), nil

	default:
		return nil, fmt.Errorf("unsupported constructor argument type %s", t.String())
	}
}

func hexArg(v any) ([]byte, error) {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, "0x") {
		return nil, fmt.Errorf("expected 0x-prefixed hex, got %v", v)
	}
	return common.FromHex(s), nil
}

func bigArg(v any) (*big.Int, error) {
	switch n := v.(type) {
	case int:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case float64:
		if n != float64(int64(n)) {
			return nil, fmt.Errorf("number %v is not an integer", n)
		}
		return big.NewInt(int64(n)), nil
	case string:
		x, ok := new(big.Int).SetString(strings.TrimSpace(n), 0)
		if !ok {
			return nil, fmt.Errorf("invalid integer '%s'", n)
		}
		return x, nil
	default:
		return nil, fmt.Errorf("expected integer, got %T", v)
	}
}
