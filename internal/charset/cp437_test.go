// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package charset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []byte
	}{
		{"empty", "", []byte{}},
		{"printable ascii", "Hello, World!", []byte("Hello, World!")},
		{"box drawing", "╔═╗", []byte{0xC9, 0xCD, 0xBB}},
		{"latin accents", "café", []byte{'c', 'a', 'f', 0x82}},
		{"greek and math", "αß±", []byte{0xE0, 0xE1, 0xF1}},
		{"control glyphs", "☺♥", []byte{0x01, 0x03}},
		{"house glyph", "⌂", []byte{0x7F}},
		{"nul", "a\x00b", []byte{'a', 0x00, 'b'}},
		{"nbsp", "\u00a0", []byte{0xFF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncode_Unrepresentable(t *testing.T) {
	for _, input := range []string{"日本", "emoji 😀", "tab\there"} {
		t.Run(input, func(t *testing.T) {
			_, err := Encode(input)
			assert.ErrorIs(t, err, ErrUnencodable)
		})
	}
}

func TestReverseTable_Complete(t *testing.T) {
	table := reverseTable()
	assert.Len(t, table, 256)

	seen := make(map[byte]bool, 256)
	for _, b := range table {
		seen[b] = true
	}
	assert.Len(t, seen, 256)
}
