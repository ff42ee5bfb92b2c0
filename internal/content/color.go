package content

import (
	"regexp"
	"strconv"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"

	"clipvault/pkg/types"
)

var (
	hexColorRe = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{4}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)
	rgbColorRe = regexp.MustCompile(`^rgba?\(\s*(\d{1,3})\s*,\s*(\d{1,3})\s*,\s*(\d{1,3})\s*(?:,\s*([0-9]*\.?[0-9]+)\s*)?\)$`)
	hslColorRe = regexp.MustCompile(`^hsla?\(\s*([0-9]*\.?[0-9]+)\s*,\s*([0-9]*\.?[0-9]+)%\s*,\s*([0-9]*\.?[0-9]+)%\s*(?:,\s*([0-9]*\.?[0-9]+)\s*)?\)$`)
)

// ParseColor recognizes hex (#RGB, #RGBA, #RRGGBB, #RRGGBBAA), rgb()/rgba()
// and hsl()/hsla() strings. The whole string must be a color; no substring
// matching. Returns the parsed color and whether parsing succeeded.
func ParseColor(s string) (types.Color, bool) {
	if c, ok := parseHexColor(s); ok {
		return c, true
	}
	if c, ok := parseRGBColor(s); ok {
		return c, true
	}
	return parseHSLColor(s)
}

func parseHexColor(s string) (types.Color, bool) {
	m := hexColorRe.FindStringSubmatch(s)
	if m == nil {
		return types.Color{}, false
	}

	digits := strings.ToLower(m[1])
	c := types.Color{A: 1}

	switch len(digits) {
	case 3, 4:
		c.R = float64(hexNibble(digits[0])) / 15
		c.G = float64(hexNibble(digits[1])) / 15
		c.B = float64(hexNibble(digits[2])) / 15
		if len(digits) == 4 {
			c.A = float64(hexNibble(digits[3])) / 15
		}
	case 6, 8:
		c.R = float64(hexByte(digits[0:2])) / 255
		c.G = float64(hexByte(digits[2:4])) / 255
		c.B = float64(hexByte(digits[4:6])) / 255
		if len(digits) == 8 {
			c.A = float64(hexByte(digits[6:8])) / 255
		}
	}

	return c, true
}

func hexNibble(b byte) uint8 {
	if b >= 'a' {
		return b - 'a' + 10
	}
	return b - '0'
}

func hexByte(s string) uint8 {
	return hexNibble(s[0])<<4 | hexNibble(s[1])
}

func parseRGBColor(s string) (types.Color, bool) {
	m := rgbColorRe.FindStringSubmatch(s)
	if m == nil {
		return types.Color{}, false
	}

	var ch [3]float64
	for i := 0; i < 3; i++ {
		v, err := strconv.Atoi(m[i+1])
		if err != nil || v > 255 {
			return types.Color{}, false
		}
		ch[i] = float64(v) / 255
	}

	return types.Color{R: ch[0], G: ch[1], B: ch[2], A: parseAlpha(m[4])}, true
}

func parseHSLColor(s string) (types.Color, bool) {
	m := hslColorRe.FindStringSubmatch(s)
	if m == nil {
		return types.Color{}, false
	}

	h, err1 := strconv.ParseFloat(m[1], 64)
	sat, err2 := strconv.ParseFloat(m[2], 64)
	l, err3 := strconv.ParseFloat(m[3], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return types.Color{}, false
	}
	if h > 360 || sat > 100 || l > 100 {
		return types.Color{}, false
	}

	rgb := colorful.Hsl(h, sat/100, l/100)
	return types.Color{R: rgb.R, G: rgb.G, B: rgb.B, A: parseAlpha(m[4])}, true
}

// parseAlpha reads an optional alpha component, clamped to [0,1].
// An absent component means fully opaque.
func parseAlpha(s string) float64 {
	if s == "" {
		return 1
	}
	a, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 1
	}
	if a < 0 {
		return 0
	}
	if a > 1 {
		return 1
	}
	return a
}
