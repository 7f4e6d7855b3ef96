package otp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(vs ...uint32) *bytes.Reader {
	buf := make([]byte, 0, 4*len(vs))
	for _, v := range vs {
		buf = binary.BigEndian.AppendUint32(buf, v)
	}
	return bytes.NewReader(buf)
}

func TestGenerator_Generate(t *testing.T) {
	tests := []struct {
		name  string
		input []uint32
		want  string
	}{
		{name: "plain value", input: []uint32{482913}, want: "482913"},
		{name: "keeps leading zeros", input: []uint32{42}, want: "000042"},
		{name: "reduces modulo code space", input: []uint32{1_000_007}, want: "000007"},
		{name: "largest accepted draw", input: []uint32{sampleLimit - 1}, want: "999999"},
		{name: "rejects draws above limit", input: []uint32{0xFFFFFFFF, sampleLimit, 123456}, want: "123456"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewGenerator(words(tt.input...)).Generate()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy gone") }

func TestGenerator_GenerateReadError(t *testing.T) {
	_, err := NewGenerator(failingReader{}).Generate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entropy gone")
}

func TestGenerator_CryptoSource(t *testing.T) {
	g := NewGenerator(nil)
	for range 200 {
		code, err := g.Generate()
		require.NoError(t, err)
		assert.True(t, IsCode(code), code)
	}
}

func TestIsCode(t *testing.T) {
	assert.True(t, IsCode("000000"))
	assert.True(t, IsCode("482913"))
	assert.False(t, IsCode("48291"))
	assert.False(t, IsCode("4829130"))
	assert.False(t, IsCode("48a913"))
	assert.False(t, IsCode("٤٨٢٩١٣"))
}
