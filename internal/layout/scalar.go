package layout

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// encodeScalar serializes v as exactly s.Size big-endian bytes.
func encodeScalar(s *Scalar, v any) ([]byte, error) {
	switch s.Kind {
	case ScalarAddress:
		addr, err := toAddress(v)
		if err != nil {
			return nil, err
		}
		return addr.Bytes(), nil

	case ScalarBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", v)
		}
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil

	case ScalarFixedBytes:
		data, err := toBytes(v)
		if err != nil {
			return nil, err
		}
		if len(data) != s.Size {
			return nil, fmt.Errorf("expected %d bytes, got %d", s.Size, len(data))
		}
		return data, nil

	case ScalarUint, ScalarEnum, ScalarInt:
		word, err := integerWord(s, v)
		if err != nil {
			return nil, err
		}
		return word[32-s.Size:], nil

	default:
		return nil, fmt.Errorf("unsupported scalar kind %s", s.Kind)
	}
}

// abiWord encodes v the way the ABI encodes a fixed width value: one 32-byte word.
func abiWord(s *Scalar, v any) ([32]byte, error) {
	var word [32]byte
	switch s.Kind {
	case ScalarUint, ScalarEnum, ScalarInt:
		return integerWord(s, v)
	case ScalarFixedBytes:
		b, err := encodeScalar(s, v)
		if err != nil {
			return word, err
		}
		copy(word[:], b)
		return word, nil
	default:
		b, err := encodeScalar(s, v)
		if err != nil {
			return word, err
		}
		copy(word[32-len(b):], b)
		return word, nil
	}
}

// integerWord range checks v against the scalar's width and returns its
// sign-extended two's complement 256-bit representation.
func integerWord(s *Scalar, v any) ([32]byte, error) {
	x, err := toInteger(v)
	if err != nil {
		return [32]byte{}, err
	}

	bits := uint(s.Size * 8)
	if s.Kind == ScalarInt {
		limit := new(big.Int).Lsh(big.NewInt(1), bits-1)
		lower := new(big.Int).Neg(limit)
		upper := new(big.Int).Sub(limit, big.NewInt(1))
		if x.Cmp(lower) < 0 || x.Cmp(upper) > 0 {
			return [32]byte{}, fmt.Errorf("value %s out of range for int%d", x, bits)
		}
	} else {
		upper := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), bits), big.NewInt(1))
		if x.Sign() < 0 || x.Cmp(upper) > 0 {
			return [32]byte{}, fmt.Errorf("value %s out of range for uint%d", x, bits)
		}
	}

	word, _ := uint256.FromBig(new(big.Int).Abs(x))
	if x.Sign() < 0 {
		word.Neg(word)
	}
	return word.Bytes32(), nil
}

func toAddress(v any) (common.Address, error) {
	switch a := v.(type) {
	case common.Address:
		return a, nil
	case string:
		if !common.IsHexAddress(a) {
			return common.Address{}, fmt.Errorf("invalid address '%s'", a)
		}
		addr := common.HexToAddress(a)
		hexPart := strings.TrimPrefix(strings.TrimPrefix(a, "0x"), "0X")
		mixedCase := strings.ToLower(hexPart) != hexPart && strings.ToUpper(hexPart) != hexPart
		if mixedCase && strings.TrimPrefix(addr.Hex(), "0x") != hexPart {
			return common.Address{}, fmt.Errorf("invalid address checksum '%s'", a)
		}
		return addr, nil
	default:
		return common.Address{}, fmt.Errorf("expected address string, got %T", v)
	}
}

func toBytes(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		if !strings.HasPrefix(b, "0x") {
			return nil, fmt.Errorf("expected 0x-prefixed hex string, got '%s'", b)
		}
		data, err := hex.DecodeString(b[2:])
		if err != nil {
			return nil, fmt.Errorf("invalid hex '%s': %w", b, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("expected hex string, got %T", v)
	}
}

func toInteger(v any) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		return new(big.Int).Set(n), nil
	case *uint256.Int:
		return n.ToBig(), nil
	case int:
		return big.NewInt(int64(n)), nil
	case int8:
		return big.NewInt(int64(n)), nil
	case int16:
		return big.NewInt(int64(n)), nil
	case int32:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case uint:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case float64:
		if n != math.Trunc(n) || math.Abs(n) > 1<<53 {
			return nil, fmt.Errorf("number %v is not an exact integer; quote large values as strings", n)
		}
		return big.NewInt(int64(n)), nil
	case json.Number:
		return parseIntegerString(n.String())
	case string:
		return parseIntegerString(n)
	default:
		return nil, fmt.Errorf("expected integer, got %T", v)
	}
}

func parseIntegerString(s string) (*big.Int, error) {
	x, ok := new(big.Int).SetString(strings.TrimSpace(s), 0)
	if !ok {
		return nil, fmt.Errorf("invalid integer '%s'", s)
	}
	return x, nil
}
