package core

import (
	"strings"
	"unicode/utf8"
)

const upperHex = "0123456789ABCDEF"

// EncodeNonASCII percent-encodes the UTF-8 bytes of every character above 0x7F and leaves
// ASCII untouched, so `user=张三` becomes `user=%E5%BC%A0%E4%B8%89`. A literal '%' is ASCII
// and passes through as is. Invalid UTF-8 bytes are encoded one by one.
func EncodeNonASCII(value string) string {
	firstNonASCII := -1
	for i := 0; i < len(value); i++ {
		if value[i] >= utf8.RuneSelf {
			firstNonASCII = i
			break
		}
	}
	if firstNonASCII < 0 {
		return value
	}

	var b strings.Builder
	b.Grow(len(value) * 3)
	b.WriteString(value[:firstNonASCII])
	for i := firstNonASCII; i < len(value); i++ {
		c := value[i]
		if c < utf8.RuneSelf {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&0x0F])
	}
	return b.String()
}
