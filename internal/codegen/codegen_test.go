package codegen

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestGenerate(t *testing.T) {
	gen := New()
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		code, err := gen.Generate()
		require.NoError(t, err)
		require.Len(t, code, Length)
		assert.True(t, WellFormed(code), code)
		seen[code] = struct{}{}
	}
	// 36^6 possibilities; 200 draws colliding down to a handful means a broken source.
	assert.Greater(t, len(seen), 190)
}

func TestGenerateIsDeterministicForAFixedReader(t *testing.T) {
	entropy := bytes.Repeat([]byte{0x00, 0x01, 0x02, 0x03}, 64)

	a, err := NewWithReader(bytes.NewReader(entropy)).Generate()
	require.NoError(t, err)
	b, err := NewWithReader(bytes.NewReader(entropy)).Generate()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestGenerateReportsEntropyFailure(t *testing.T) {
	_, err := NewWithReader(failingReader{}).Generate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entropy")
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "ABC123", Normalize("  abc123 "))
	assert.Equal(t, "", Normalize("   "))
}

func TestWellFormed(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"ABC123", true},
		{"ZZZZZZ", true},
		{"abc123", false},
		{"ABC12", false},
		{"ABC1234", false},
		{"ABC-12", false},
		{"", false},
		{strings.Repeat("0", Length), true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WellFormed(tt.code), tt.code)
	}
}
