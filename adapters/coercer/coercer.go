// Package coercer converts raw table cells into numeric values with deterministic rules.
package coercer

import (
	"math"
	"strconv"
	"strings"
)

// CoercionConfig defines which non-canonical numeric spellings are accepted
type CoercionConfig struct {
	AllowParentheses bool `json:"allow_parentheses"` // (12) -> -12
	DecimalComma     bool `json:"decimal_comma"`     // 1,5 -> 1.5
}

// DefaultCoercionConfig accepts plain numbers and accounting-style negatives
func DefaultCoercionConfig() CoercionConfig {
	return CoercionConfig{
		AllowParentheses: true,
		DecimalComma:     false,
	}
}

// NumericCoercer parses cells as numbers; anything that fails is treated as missing
type NumericCoercer struct {
	config CoercionConfig
}

// NewNumericCoercer creates a coercer with the given config
func NewNumericCoercer(config CoercionConfig) *NumericCoercer {
	return &NumericCoercer{config: config}
}

// Float parses a cell as a finite float. NaN, Inf and blanks are missing.
func (c *NumericCoercer) Float(raw string) (float64, bool) {
	cleanVal := strings.TrimSpace(raw)
	if cleanVal == "" {
		return 0, false
	}

	isNegative := false
	if c.config.AllowParentheses && strings.HasPrefix(cleanVal, "(") && strings.HasSuffix(cleanVal, ")") {
		cleanVal = strings.TrimSpace(cleanVal[1 : len(cleanVal)-1])
		isNegative = true
	}

	if c.config.DecimalComma && strings.Count(cleanVal, ",") == 1 && !strings.Contains(cleanVal, ".") {
		cleanVal = strings.Replace(cleanVal, ",", ".", 1)
	}

	val, err := strconv.ParseFloat(cleanVal, 64)
	if err != nil || math.IsInf(val, 0) || math.IsNaN(val) {
		return 0, false
	}
	if isNegative {
		val = -val
	}
	return val, true
}

// Int parses a cell as an integer. Integral floats such as "12.0" are accepted.
func (c *NumericCoercer) Int(raw string) (int, bool) {
	val, ok := c.Float(raw)
	if !ok || val != math.Trunc(val) || math.Abs(val) > math.MaxInt32 {
		return 0, false
	}
	return int(val), true
}
