package dataprocessing

import (
	"errors"
	"strconv"
	"strings"
)

// currencyStripper removes the glyphs brokers decorate amounts with. The set
// is fixed; anything else left in the cell is an error. The backslash is the
// yen sign of Shift_JIS exports after decoding.
var currencyStripper = strings.NewReplacer(
	"¥", "",
	"￥", "",
	"\\", "",
	"円", "",
	",", "",
)

// CoerceCurrencyInt reads an amount in the smallest currency unit, e.g.
// "¥1,000" or "1000円". Signs, decimals and any other residue are rejected
// rather than truncated.
func CoerceCurrencyInt(column, raw string) (int64, error) {
	s := strings.TrimSpace(currencyStripper.Replace(strings.TrimSpace(raw)))
	if s == "" {
		return 0, &MalformedFieldError{Column: column, Value: raw, Kind: KindCurrencyInt, Reason: "empty value"}
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, &MalformedFieldError{Column: column, Value: raw, Kind: KindCurrencyInt,
				Reason: "unexpected character " + strconv.QuoteRune(r)}
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, strconv.ErrRange) {
			reason = "amount out of range"
		}
		return 0, &MalformedFieldError{Column: column, Value: raw, Kind: KindCurrencyInt, Reason: reason}
	}
	return v, nil
}
