package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	moneyNoise  = strings.NewReplacer("$", "", "usd", "", "dollars", "", "dollar", "", "bucks", "", ",", "", " ", "")
	leadingNums = regexp.MustCompile(`^-?\d+(\.\d+)?`)
	priceInText = regexp.MustCompile(`\$\s?(\d{1,3}(?:,\d{3})*(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?)`)
)

// ToFloat coerces JSON numbers and money-like strings ("$300", "1,200 USD").
func ToFloat(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		cleaned := moneyNoise.Replace(strings.ToLower(strings.TrimSpace(v)))
		m := leadingNums.FindString(cleaned)
		if m == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(m, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ToString renders a scalar field value as text.
func ToString(raw interface{}) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, ToString(item))
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(v, ", ")
	default:
		return fmt.Sprint(v)
	}
}

// PriceFromText finds the first dollar amount in free text.
func PriceFromText(text string) (float64, bool) {
	m := priceInText.FindStringSubmatch(text)
	if len(m) < 2 {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	return f, err == nil
}
