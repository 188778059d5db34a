package community

import "unicode/utf16"

var namePalette = [...]string{
	"#ff0000",
	"#009000",
	"#b22222",
	"#ff7f50",
	"#9acd32",
	"#ff4500",
	"#2e8b57",
	"#daa520",
	"#d2691e",
	"#5f9ea0",
	"#1e90ff",
	"#ff69b4",
	"#00ff7f",
	"#a244f9",
}

// StringHash is a 32-bit rolling hash (h*31 + unit) over the UTF-16 code
// units of s, wrapping on overflow.
func StringHash(s string) int32 {
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(u)
	}
	return h
}

// NameColor returns the palette color for a display name.
func NameColor(name string) string {
	n := int32(len(namePalette))
	h := StringHash(name)
	return namePalette[((h%n)+n)%n]
}
