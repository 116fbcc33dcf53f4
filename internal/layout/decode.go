package layout

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// DecodeScalar reads back a value produced for a scalar type. It is the
// inverse of the scalar encoding and is used to verify on-chain state.
func DecodeScalar(t *Type, value []byte) (any, error) {
	s, ok := t.Shape.(*Scalar)
	if !ok {
		return nil, fmt.Errorf("type %s is not a scalar", t.Label)
	}
	if len(value) != s.Size {
		return nil, fmt.Errorf("type %s: expected %d bytes, got %d", t.Label, s.Size, len(value))
	}

	switch s.Kind {
	case ScalarAddress:
		return common.BytesToAddress(value), nil
	case ScalarBool:
		switch value[0] {
		case 0:
			return false, nil
		case 1:
			return true, nil
		default:
			return nil, fmt.Errorf("type %s: invalid bool byte 0x%02x", t.Label, value[0])
		}
	case ScalarFixedBytes:
		return common.CopyBytes(value), nil
	case ScalarUint, ScalarEnum:
		return new(big.Int).SetBytes(value), nil
	case ScalarInt:
		x := new(big.Int).SetBytes(value)
		if value[0]&0x80 != 0 {
			x.Sub(x, new(big.Int).Lsh(big.NewInt(1), uint(len(value)*8)))
		}
		return x, nil
	default:
		return nil, fmt.Errorf("unsupported scalar kind %s", s.Kind)
	}
}
