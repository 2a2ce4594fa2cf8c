package grib1

import "math"

// decodeIBM converts a 32-bit IBM System/360 single precision float.
func decodeIBM(b []byte) float64 {
	sign := 1.0
	if b[0]&0x80 != 0 {
		sign = -1.0
	}
	exp := int(b[0] & 0x7f)
	mant := uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	if mant == 0 {
		return 0
	}
	return sign * float64(mant) * math.Pow(2, -24) * math.Pow(16, float64(exp-64))
}

// encodeIBM converts v to IBM float, rounding toward negative infinity so the
// encoded reference value never exceeds v.
func encodeIBM(v float64) [4]byte {
	var out [4]byte
	if v == 0 || math.IsNaN(v) {
		return out
	}

	neg := v < 0
	a := math.Abs(v)
	exp := 64
	for a >= 1 {
		a /= 16
		exp++
	}
	for a < 1.0/16 {
		a *= 16
		exp--
	}

	scaled := a * (1 << 24)
	var mant uint32
	if neg {
		mant = uint32(math.Ceil(scaled))
	} else {
		mant = uint32(math.Floor(scaled))
	}
	if mant >= 1<<24 {
		mant >>= 4
		exp++
	}
	if exp < 0 {
		return out
	}
	if exp > 127 {
		exp = 127
		mant = 0xffffff
	}

	out[0] = byte(exp)
	if neg {
		out[0] |= 0x80
	}
	out[1] = byte(mant >> 16)
	out[2] = byte(mant >> 8)
	out[3] = byte(mant)
	return out
}

// int16SM reads a 16-bit sign-and-magnitude integer.
func int16SM(b []byte) int {
	v := int(b[0]&0x7f)<<8 | int(b[1])
	if b[0]&0x80 != 0 {
		return -v
	}
	return v
}

func putInt16SM(b []byte, v int) {
	neg := v < 0
	if neg {
		v = -v
	}
	b[0] = byte(v>>8) & 0x7f
	b[1] = byte(v)
	if neg {
		b[0] |= 0x80
	}
}

// int24SM reads a 24-bit sign-and-magnitude integer.
func int24SM(b []byte) int {
	v := int(b[0]&0x7f)<<16 | int(b[1])<<8 | int(b[2])
	if b[0]&0x80 != 0 {
		return -v
	}
	return v
}

func putInt24SM(b []byte, v int) {
	neg := v < 0
	if neg {
		v = -v
	}
	b[0] = byte(v>>16) & 0x7f
	b[1] = byte(v >> 8)
	b[2] = byte(v)
	if neg {
		b[0] |= 0x80
	}
}

func uint24(b []byte) int {
	return int(b[0])<<16 | int(b[1])<<8 | int(b[2])
}

func putUint24(b []byte, v int) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

func uint16BE(b []byte) int {
	return int(b[0])<<8 | int(b[1])
}

func putUint16BE(b []byte, v int) {
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}
