// Package grib1 reads and writes GRIB edition 1 messages with simple packing,
// the format Harmonie forecast files and the merged products are stored in.
package grib1

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/sensingclues/harmonie-grib/internal/domain"
)

const defaultBitsPerValue = 16

// Codec implements pipeline.Codec.
type Codec struct{}

// NewCodec creates a GRIB1 codec.
func NewCodec() *Codec {
	return &Codec{}
}

// Open reads every message in the file at path, in file order.
func (c *Codec) Open(path string) ([]domain.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read grib file: %w", err)
	}
	recs, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return recs, nil
}

// Decode parses every message in data.
func Decode(data []byte) ([]domain.Record, error) {
	msgs, err := splitMessages(data)
	if err != nil {
		return nil, err
	}
	recs := make([]domain.Record, 0, len(msgs))
	for i, m := range msgs {
		rec, err := m.record()
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i+1, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Serialize encodes rec using its source message as a template. Header fields
// are patched in place; the data section is re-packed only when the values
// were modified, so pass-through records stay byte-identical apart from the
// patched octets.
func (c *Codec) Serialize(rec domain.Record) ([]byte, error) {
	if len(rec.Source) == 0 {
		return nil, errors.New("record has no source message")
	}
	m, err := parseMessage(rec.Source)
	if err != nil {
		return nil, fmt.Errorf("parse source message: %w", err)
	}

	pds := append([]byte(nil), m.pds...)
	pds[4] = byte(rec.CentreID)
	pds[5] = byte(rec.ProcessID)
	pds[8] = byte(rec.ParameterID)
	pds[9] = byte(rec.LevelType)
	putUint16BE(pds[10:12], rec.Level)

	bms, bds := m.bms, m.bds
	if rec.ValuesModified {
		if ni, nj, ok := m.dims(); ok && ni*nj != len(rec.Grid.Values) {
			return nil, fmt.Errorf("grid has %d values, message describes %dx%d", len(rec.Grid.Values), ni, nj)
		}
		nbits := int(m.bds[10])
		if nbits == 0 {
			nbits = defaultBitsPerValue
		}
		bms, bds = pack(rec.Grid.Values, m.decimalScale(), nbits)
		if bms != nil {
			pds[7] |= flagBMS
		} else {
			pds[7] &^= flagBMS
		}
	}
	return assemble(pds, m.gds, bms, bds)
}

func assemble(pds, gds, bms, bds []byte) ([]byte, error) {
	total := isLen + len(pds) + len(gds) + len(bms) + len(bds) + len(endMarker)
	if total > maxMessageLen {
		return nil, fmt.Errorf("message of %d bytes: %w", total, ErrUnsupported)
	}
	out := make([]byte, 0, total)
	out = append(out, 'G', 'R', 'I', 'B', 0, 0, 0, 1)
	putUint24(out[4:7], total)
	out = append(out, pds...)
	out = append(out, gds...)
	out = append(out, bms...)
	out = append(out, bds...)
	out = append(out, endMarker...)
	return out, nil
}

// pack simple-packs values at the given decimal scale and bit width. NaN
// cells are masked through a bitmap section, which is nil when nothing is masked.
func pack(values []float64, decimalScale, nbits int) (bms, bds []byte) {
	scaleD := math.Pow(10, float64(decimalScale))

	masked := false
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) {
			masked = true
			continue
		}
		s := v * scaleD
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}
	if math.IsInf(lo, 1) {
		lo, hi = 0, 0
	}

	ref := encodeIBM(lo)
	r := decodeIBM(ref[:])
	maxX := math.Ldexp(1, nbits) - 1
	e := 0
	if span := hi - r; span > 0 {
		e = int(math.Ceil(math.Log2(span / maxX)))
		for math.Round(span/math.Ldexp(1, e)) > maxX {
			e++
		}
	}
	scaleE := math.Ldexp(1, e)

	w := bitWriter{}
	n := 0
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		x := math.Round((v*scaleD - r) / scaleE)
		x = math.Max(0, math.Min(maxX, x))
		w.write(uint64(x), nbits)
		n++
	}

	dataLen := len(w.buf)
	secLen := bdsMinLen + dataLen
	if secLen%2 != 0 {
		secLen++
	}
	unused := (secLen-bdsMinLen)*8 - n*nbits

	bds = make([]byte, secLen)
	putUint24(bds[0:3], secLen)
	bds[3] = byte(unused & 0x0f)
	putInt16SM(bds[4:6], e)
	copy(bds[6:10], ref[:])
	bds[10] = byte(nbits)
	copy(bds[bdsMinLen:], w.buf)

	if masked {
		bms = packBitmap(values)
	}
	return bms, bds
}

func packBitmap(values []float64) []byte {
	nbytes := (len(values) + 7) / 8
	secLen := 6 + nbytes
	if secLen%2 != 0 {
		secLen++
	}
	bms := make([]byte, secLen)
	putUint24(bms[0:3], secLen)
	bms[3] = byte((secLen-6)*8 - len(values))
	for i, v := range values {
		if !math.IsNaN(v) {
			bms[6+i/8] |= 0x80 >> (i % 8)
		}
	}
	return bms
}
