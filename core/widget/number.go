package widget

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/trezcool/schoolstats/core/valuetree"
)

var parseNumberRegex = regexp.MustCompile(`\$\s?|,+`)

// SetText sets a text or textarea value as is.
func SetText(path, s string) []valuetree.Edit {
	return edit(path, s)
}

// ParseNumber strips currency signs and group separators from a displayed number.
func ParseNumber(s string) string {
	return parseNumberRegex.ReplaceAllString(s, "")
}

// SetNumber parses input and stores it as an unformatted numeric string.
// The write is suppressed (no edit, no error) when the parsed input is neither empty nor numeric.
func SetNumber(path, input string) []valuetree.Edit {
	n := ParseNumber(input)
	if n != "" && !IsNumeric(n) {
		return nil
	}
	return edit(path, n)
}

// IsNumeric reports whether s converts to a number.
func IsNumeric(s string) bool {
	return !math.IsNaN(ToNumber(s))
}

// ToNumber converts a value of the tree to a number the way a loosely typed form would:
// absent and empty values are 0, booleans are 0 or 1, numeric strings are parsed
// and anything else is NaN.
func ToNumber(v interface{}) float64 {
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		return ToNumber(string(n))
	case bool:
		if n {
			return 1
		}
		return 0
	case string:
		return stringToNumber(n)
	case []interface{}:
		switch len(n) {
		case 0:
			return 0
		case 1:
			return ToNumber(n[0])
		}
	}
	return math.NaN()
}

func stringToNumber(s string) float64 {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return 0
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	lower := strings.ToLower(s)
	if strings.Contains(lower, "inf") || strings.Contains(lower, "nan") || strings.Contains(s, "_") {
		return math.NaN()
	}
	if strings.HasPrefix(lower, "0x") || strings.HasPrefix(lower, "0o") || strings.HasPrefix(lower, "0b") {
		if i, err := strconv.ParseInt(s, 0, 64); err == nil {
			return float64(i)
		}
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// ToInt parses the leading integer of s, returning 0 when there is none.
func ToInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0
	}
	i, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return i
}

// FormatNumber formats v with thousands separators.
// When dec is given, v is first converted to a number and rounded to dec decimals.
func FormatNumber(v interface{}, dec ...int) string {
	var s string
	if len(dec) > 0 {
		s = formatFloat(Round(ToNumber(v), dec[0]))
	} else {
		s = toString(v)
	}
	return groupDigits(s)
}

// Round rounds f to dec decimals, halves away from zero.
func Round(f float64, dec int) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	p := math.Pow(10, float64(dec))
	return math.Round(f*p) / p
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return formatFloat(s)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case json.Number:
		return string(s)
	case bool:
		return strconv.FormatBool(s)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// groupDigits inserts a comma every 3 digits in every run of digits that is not a fraction.
func groupDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/3)
	for i := 0; i < len(s); {
		if s[i] < '0' || s[i] > '9' {
			b.WriteByte(s[i])
			i++
			continue
		}
		j := i
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
		}
		run := s[i:j]
		if i > 0 && s[i-1] == '.' {
			b.WriteString(run)
		} else {
			for k, r := range run {
				if k > 0 && (len(run)-k)%3 == 0 {
					b.WriteByte(',')
				}
				b.WriteRune(r)
			}
		}
		i = j
	}
	return b.String()
}

func renderText(ctx RenderContext) (View, []valuetree.Edit) {
	v := baseView(ctx)
	v.Display = toString(ctx.Value)
	v.Value = ctx.Value
	return v, nil
}

func renderNumber(ctx RenderContext) (View, []valuetree.Edit) {
	v := baseView(ctx)
	v.Display = FormatNumber(ctx.Value)
	v.Value = ctx.Value
	v.NoIncrement = true
	return v, nil
}
