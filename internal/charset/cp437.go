// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package charset encodes text into IBM Code Page 437, the single-byte
// encoding ZIP readers assume for text fields without the UTF-8 flag.
package charset

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/text/encoding/charmap"
)

// ErrUnencodable is returned when a rune has no CP437 representation.
var ErrUnencodable = errors.New("charset: character not representable in CP437")

// Control range glyphs of the original IBM PC character ROM. The x/text
// table maps these bytes to C0 controls, while DOS-era archivers display them
// as pictographs.
var lowGlyphs = [32]rune{
	0x0000, '☺', '☻', '♥', '♦', '♣', '♠', '•', '◘', '○', '◙', '♂', '♀', '♪', '♫', '☼',
	'►', '◄', '↕', '‼', '¶', '§', '▬', '↨', '↑', '↓', '→', '←', '∟', '↔', '▲', '▼',
}

// reverseTable maps every CP437 code point back to its byte.
var reverseTable = sync.OnceValue(func() map[rune]byte {
	table := make(map[rune]byte, 256)
	for i := 0; i < 256; i++ {
		b := byte(i)
		var r rune
		switch {
		case b < 0x20:
			r = lowGlyphs[b]
		case b == 0x7F:
			r = '⌂'
		default:
			r = charmap.CodePage437.DecodeByte(b)
		}
		table[r] = b
	}
	return table
})

// Encode converts s to CP437. Printable ASCII passes through unchanged.
func Encode(s string) ([]byte, error) {
	if isPrintableASCII(s) {
		return []byte(s), nil
	}

	table := reverseTable()
	out := make([]byte, 0, len(s))
	for i, r := range s {
		b, ok := table[r]
		if !ok {
			return nil, fmt.Errorf("%w: %q at byte %d", ErrUnencodable, r, i)
		}
		out = append(out, b)
	}
	return out, nil
}

func isPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7E {
			return false
		}
	}
	return true
}
