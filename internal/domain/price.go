package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PriceScale is the number of Price units in one value unit (1.0).
const PriceScale = 1_000_000

// Price is a probability price in fixed point, PriceScale units per 1.0.
// It is used as the ladder key so that equal quotes always hit the same level.
type Price int64

// PriceFromCents converts a whole-cent quote (1-99) into a Price.
func PriceFromCents(cents int64) Price {
	return Price(cents * (PriceScale / 100))
}

// PriceFromFloat rounds f to the nearest Price unit.
func PriceFromFloat(f float64) Price {
	return Price(math.Round(f * PriceScale))
}

// ParsePrice parses a decimal string such as "0.52" without going through
// float64, so "0.1" maps to exactly 100000.
func ParsePrice(s string) (Price, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("parse price: empty string")
	}
	neg := false
	if s[0] == '-' || s[0] == '+' {
		neg = s[0] == '-'
		s = s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 6 {
		frac = frac[:6]
	}
	frac += strings.Repeat("0", 6-len(frac))

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", s, err)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", s, err)
	}
	p := Price(w*PriceScale + f)
	if neg {
		p = -p
	}
	return p, nil
}

// Float64 returns the price as a probability in [0,1].
func (p Price) Float64() float64 {
	return float64(p) / PriceScale
}

// Complement returns 1 - p.
func (p Price) Complement() Price {
	return PriceScale - p
}

func (p Price) String() string {
	return strconv.FormatFloat(p.Float64(), 'f', -1, 64)
}

func (p Price) MarshalJSON() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalJSON accepts both JSON numbers and quoted decimal strings.
func (p *Price) UnmarshalJSON(data []byte) error {
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	v, err := ParsePrice(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}
