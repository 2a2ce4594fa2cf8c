package grib1

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sensingclues/harmonie-grib/internal/domain"
)

const (
	isLen     = 8  // indicator section
	pdsMinLen = 28 // product definition section
	bdsMinLen = 11 // binary data section header
	endMarker = "7777"

	// Indicator section lengths are 24 bits; larger messages need the ECMWF
	// length extension, which Harmonie surface files never use.
	maxMessageLen = 1<<24 - 1

	flagGDS = 0x80
	flagBMS = 0x40

	missingDim = 0xffff

	// maxGridPoints bounds grids whose size is not backed by packed data,
	// such as constant fields (0 bits per value).
	maxGridPoints = 1 << 24
)

var (
	// ErrUnsupported is returned for valid GRIB1 features the codec does not handle.
	ErrUnsupported = errors.New("unsupported grib1 feature")

	errTruncated = errors.New("truncated grib1 message")
)

// message holds views into one encoded GRIB1 message.
type message struct {
	raw []byte
	pds []byte
	gds []byte // nil when absent
	bms []byte // nil when absent
	bds []byte
}

// splitMessages finds every GRIB1 message in data, skipping bytes between them.
func splitMessages(data []byte) ([]message, error) {
	var msgs []message
	off := 0
	for off < len(data) {
		idx := bytes.Index(data[off:], []byte("GRIB"))
		if idx < 0 {
			break
		}
		start := off + idx
		if start+isLen > len(data) {
			return nil, fmt.Errorf("offset %d: %w", start, errTruncated)
		}
		if ed := data[start+7]; ed != 1 {
			return nil, fmt.Errorf("offset %d: edition %d: %w", start, ed, ErrUnsupported)
		}
		end := start + uint24(data[start+4:])
		if end > len(data) || end-start < isLen+pdsMinLen+bdsMinLen+len(endMarker) {
			return nil, fmt.Errorf("offset %d: %w", start, errTruncated)
		}
		m, err := parseMessage(data[start:end])
		if err != nil {
			return nil, fmt.Errorf("offset %d: %w", start, err)
		}
		msgs = append(msgs, m)
		off = end
	}
	return msgs, nil
}

// section returns the length-prefixed section starting at pos.
func section(raw []byte, pos, minLen int, name string) ([]byte, error) {
	if pos+3 > len(raw) {
		return nil, fmt.Errorf("%s: %w", name, errTruncated)
	}
	n := uint24(raw[pos:])
	if n < minLen || pos+n > len(raw) {
		return nil, fmt.Errorf("%s length %d: %w", name, n, errTruncated)
	}
	return raw[pos : pos+n], nil
}

func parseMessage(raw []byte) (message, error) {
	m := message{raw: raw}
	pos := isLen

	var err error
	if m.pds, err = section(raw, pos, pdsMinLen, "product definition section"); err != nil {
		return m, err
	}
	pos += len(m.pds)

	flag := m.pds[7]
	if flag&flagGDS != 0 {
		if m.gds, err = section(raw, pos, 32, "grid description section"); err != nil {
			return m, err
		}
		pos += len(m.gds)
	}
	if flag&flagBMS != 0 {
		if m.bms, err = section(raw, pos, 6, "bitmap section"); err != nil {
			return m, err
		}
		pos += len(m.bms)
	}
	if m.bds, err = section(raw, pos, bdsMinLen, "binary data section"); err != nil {
		return m, err
	}
	pos += len(m.bds)

	if pos+len(endMarker) > len(raw) || string(raw[pos:pos+len(endMarker)]) != endMarker {
		return m, fmt.Errorf("missing end marker: %w", errTruncated)
	}
	return m, nil
}

func (m message) decimalScale() int {
	return int16SM(m.pds[26:28])
}

func (m message) refTime() time.Time {
	p := m.pds
	year := (int(p[24])-1)*100 + int(p[12])
	return time.Date(year, time.Month(p[13]), int(p[14]), int(p[15]), int(p[16]), 0, 0, time.UTC)
}

// dims returns the grid dimensions, or ok=false when the GDS is absent or the
// grid is not a regular Ni×Nj array.
func (m message) dims() (ni, nj int, ok bool) {
	if m.gds == nil {
		return 0, 0, false
	}
	ni, nj = uint16BE(m.gds[6:8]), uint16BE(m.gds[8:10])
	if ni == missingDim || nj == missingDim || ni == 0 || nj == 0 {
		return 0, 0, false
	}
	return ni, nj, true
}

func (m message) bitmap() ([]byte, error) {
	if m.bms == nil {
		return nil, nil
	}
	if uint16BE(m.bms[4:6]) != 0 {
		return nil, fmt.Errorf("predefined bitmap %d: %w", uint16BE(m.bms[4:6]), ErrUnsupported)
	}
	return m.bms[6:], nil
}

func (m message) record() (domain.Record, error) {
	p := m.pds
	rec := domain.Record{
		TableVersion: int(p[3]),
		CentreID:     int(p[4]),
		ProcessID:    int(p[5]),
		ParameterID:  int(p[8]),
		LevelType:    int(p[9]),
		Level:        uint16BE(p[10:12]),
		RefTime:      m.refTime(),
		ForecastHour: int(p[18]),
		Source:       m.raw,
	}
	grid, err := m.grid()
	if err != nil {
		return domain.Record{}, fmt.Errorf("parameter %d: %w", rec.ParameterID, err)
	}
	rec.Grid = grid
	return rec, nil
}

// grid unpacks simple-packed values: Y = (R + X·2^E) / 10^D.
func (m message) grid() (domain.Grid, error) {
	bds := m.bds
	flag := bds[3] >> 4
	if flag&0x8 != 0 || flag&0x4 != 0 {
		return domain.Grid{}, fmt.Errorf("spherical harmonic or complex packing: %w", ErrUnsupported)
	}
	unused := int(bds[3] & 0x0f)
	e := int16SM(bds[4:6])
	r := decodeIBM(bds[6:10])
	nbits := int(bds[10])
	data := bds[bdsMinLen:]

	bitmap, err := m.bitmap()
	if err != nil {
		return domain.Grid{}, err
	}

	ni, nj, ok := m.dims()
	var npoints int
	switch {
	case ok:
		npoints = ni * nj
	case bitmap != nil:
		npoints = len(bitmap)*8 - int(m.bms[3]&0x0f)
	case nbits > 0:
		npoints = (len(data)*8 - unused) / nbits
	default:
		return domain.Grid{}, fmt.Errorf("constant field without grid description: %w", ErrUnsupported)
	}
	if !ok {
		ni, nj = npoints, 1
	}
	if npoints > maxGridPoints {
		return domain.Grid{}, fmt.Errorf("grid of %d points: %w", npoints, ErrUnsupported)
	}

	if bitmap != nil && len(bitmap)*8 < npoints {
		return domain.Grid{}, fmt.Errorf("bitmap covers %d of %d points: %w", len(bitmap)*8, npoints, errTruncated)
	}
	npacked := npoints
	if bitmap != nil {
		npacked = 0
		for i := 0; i < npoints; i++ {
			if bitSet(bitmap, i) {
				npacked++
			}
		}
	}
	if npacked*nbits > len(data)*8 {
		return domain.Grid{}, fmt.Errorf("%d values of %d bits: %w", npacked, nbits, errTruncated)
	}

	scaleE := math.Ldexp(1, e)
	scaleD := math.Pow(10, -float64(m.decimalScale()))
	values := make([]float64, npoints)
	br := bitReader{data: data}
	for i := range values {
		if bitmap != nil && !bitSet(bitmap, i) {
			values[i] = math.NaN()
			continue
		}
		x := br.read(nbits)
		values[i] = (r + float64(x)*scaleE) * scaleD
	}
	return domain.Grid{Ni: ni, Nj: nj, Values: values}, nil
}

func bitSet(b []byte, i int) bool {
	return b[i/8]&(0x80>>(i%8)) != 0
}

type bitReader struct {
	data []byte
	pos  int // bit offset
}

func (r *bitReader) read(n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		bit := (r.data[r.pos/8] >> (7 - r.pos%8)) & 1
		v = v<<1 | uint64(bit)
		r.pos++
	}
	return v
}

type bitWriter struct {
	buf   []byte
	nbits int
}

func (w *bitWriter) write(v uint64, n int) {
	for i := n - 1; i >= 0; i-- {
		if w.nbits%8 == 0 {
			w.buf = append(w.buf, 0)
		}
		if (v>>i)&1 != 0 {
			w.buf[len(w.buf)-1] |= 0x80 >> (w.nbits % 8)
		}
		w.nbits++
	}
}
