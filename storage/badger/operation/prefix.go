package operation

import (
	"encoding/binary"
	"fmt"

	"github.com/onflow/pos-sync/model/flow"
)

const (

	// codes for special database markers
	codeHead      = 1
	codeMacroHead = 2

	// codes for chain data
	codeChainInfo = 10
	codeBody      = 11

	// codes for indexes
	codeBlockHeight      = 20 // (height, blockID) for all known blocks
	codeTransactionBlock = 21 // transaction ID to the main chain block applying it
)

func makePrefix(code byte, keys ...interface{}) []byte {
	prefix := make([]byte, 1)
	prefix[0] = code
	for _, key := range keys {
		prefix = append(prefix, keyPartToBinary(key)...)
	}
	return prefix
}

func keyPartToBinary(v interface{}) []byte {
	switch i := v.(type) {
	case uint8:
		return []byte{i}
	case uint32:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, i)
		return b
	case uint64:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, i)
		return b
	case string:
		return []byte(i)
	case []byte:
		return i
	case flow.Identifier:
		return i[:]
	default:
		panic(fmt.Sprintf("unsupported type to convert (%T)", v))
	}
}
