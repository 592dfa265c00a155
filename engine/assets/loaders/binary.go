package loaders

import (
	"github.com/cockroachdb/errors"
)

// bytesToBytecode reinterprets little-endian bytes as 32 bit words.
func bytesToBytecode(b []byte) ([]uint32, error) {
	if len(b)%4 != 0 {
		return nil, errors.Newf("bytecode length %d is not a multiple of 4", len(b))
	}
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode, nil
}
