package gatt

import (
	"fmt"
	"math"
	"time"

	direct "github.com/sgothel/direct-bt-go"
)

// DecodeSFloat decodes an IEEE-11073 16-bit SFLOAT (4-bit exponent,
// 12-bit mantissa, both two's complement) as used by characteristics
// like Temperature Measurement (Bluetooth SIG GATT Specification
// Supplement §3). Reserved NaN/infinity mantissa values are rejected.
func DecodeSFloat(raw uint16) (float64, error) {
	mantissa := int32(raw & 0x0FFF)
	if mantissa >= 0x0800 {
		mantissa -= 0x1000
	}
	exponent := int32(raw>>12) & 0xF
	if exponent >= 0x8 {
		exponent -= 0x10
	}
	switch raw & 0x0FFF {
	case 0x07FE, 0x07FF, 0x0800, 0x0801, 0x0802:
		return 0, direct.NewError(direct.KindMalformed, "gatt: sfloat 0x%04x is a reserved special value", raw)
	}
	return float64(mantissa) * math.Pow(10, float64(exponent)), nil
}

// DecodeFloat decodes an IEEE-11073 32-bit FLOAT (8-bit exponent,
// 24-bit mantissa, both two's complement), e.g. 0xFE000979 -> 24.25
// and 0xFF000167 -> 35.900002. The result is
// computed in float32 and widened: the mantissa*10^exponent product
// is only ever exact to float32 precision on real sensor hardware,
// and 35.900002 (rather than 35.9) is that rounding showing through.
func DecodeFloat(raw uint32) (float64, error) {
	mantissa := int32(raw & 0x00FFFFFF)
	if mantissa >= 0x00800000 {
		mantissa -= 0x01000000
	}
	exponent := int32(raw>>24) & 0xFF
	if exponent >= 0x80 {
		exponent -= 0x100
	}
	switch raw & 0x00FFFFFF {
	case 0x007FFFFF, 0x00800000, 0x00800001, 0x00800002:
		return 0, direct.NewError(direct.KindMalformed, "gatt: float 0x%08x is a reserved special value", raw)
	}
	v := float32(mantissa) * float32(math.Pow(10, float64(exponent)))
	return float64(v), nil
}

// DateTime is the Bluetooth SIG "org.bluetooth.characteristic.date_time"
// structure: {year:u16, month, day, hours, minutes, seconds}, all
// little-endian/single-byte fields (GATT Specification Supplement §3.70).
type DateTime struct {
	Year                     uint16
	Month, Day               uint8
	Hours, Minutes, Seconds  uint8
}

// DecodeDateTime parses the 7-byte absolute-time encoding, e.g.
// E4 07 04 04 0B 1A 00 -> 2020-04-04 11:26:00.
func DecodeDateTime(b []byte) (DateTime, error) {
	if len(b) != 7 {
		return DateTime{}, direct.NewError(direct.KindMalformed, "gatt: date_time needs 7 bytes, got %d", len(b))
	}
	return DateTime{
		Year:    uint16(b[0]) | uint16(b[1])<<8,
		Month:   b[2],
		Day:     b[3],
		Hours:   b[4],
		Minutes: b[5],
		Seconds: b[6],
	}, nil
}

// String formats as "YYYY-MM-DD HH:MM:SS".
func (d DateTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", d.Year, d.Month, d.Day, d.Hours, d.Minutes, d.Seconds)
}

// Time converts to time.Time in UTC, when the fields form a valid
// calendar date.
func (d DateTime) Time() time.Time {
	return time.Date(int(d.Year), time.Month(d.Month), int(d.Day), int(d.Hours), int(d.Minutes), int(d.Seconds), 0, time.UTC)
}
