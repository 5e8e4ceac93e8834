// Package encoding provides text encoding utilities for chunk file name fields.
//
// Names inside chunks are fixed-size, NUL-terminated single-byte strings.
// They are decoded as ISO 8859-1 so that every byte maps to exactly one rune
// and encoding the string again reproduces the original bytes.
package encoding

import (
	"bytes"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Latin1ToUTF8 converts ISO 8859-1 bytes to a UTF-8 string.
func Latin1ToUTF8(data []byte) string {
	result, _, err := transform.Bytes(charmap.ISO8859_1.NewDecoder(), data)
	if err != nil {
		return string(data)
	}
	return string(result)
}

// UTF8ToLatin1 converts a UTF-8 string to ISO 8859-1 bytes.
// Runes outside the Latin-1 range make the conversion fail.
func UTF8ToLatin1(s string) ([]byte, error) {
	return charmap.ISO8859_1.NewEncoder().Bytes([]byte(s))
}

// TrimNullBytes cuts a byte slice at its first NUL.
func TrimNullBytes(data []byte) []byte {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		return data[:i]
	}
	return data
}

// FixedStringToUTF8 converts a fixed-size NUL-terminated Latin-1 field to UTF-8.
func FixedStringToUTF8(data []byte) string {
	return Latin1ToUTF8(TrimNullBytes(data))
}

// UTF8ToFixedString converts s to a fixed-size Latin-1 field padded with NULs.
// A name filling the whole field is written without a terminator.
func UTF8ToFixedString(s string, size int) ([]byte, bool) {
	encoded, err := UTF8ToLatin1(s)
	if err != nil || len(encoded) > size {
		return nil, false
	}
	result := make([]byte, size)
	copy(result, encoded)
	return result, true
}
