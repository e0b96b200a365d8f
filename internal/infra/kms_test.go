package infra

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecksum_CRC32C(t *testing.T) {
	// CRC-32C (Castagnoli) の検査値
	assert.Equal(t, int64(0xE3069283), checksum([]byte("123456789")))
	assert.Equal(t, int64(0), checksum(nil))
}
