package grib1

import (
	"fmt"
	"math"
	"time"

	"github.com/sensingclues/harmonie-grib/internal/domain"
)

// Header describes the product definition of a message built by NewMessage.
type Header struct {
	TableVersion int
	Centre       int
	Process      int
	Parameter    int
	LevelType    int
	Level        int
	RefTime      time.Time
	ForecastHour int
	DecimalScale int
	BitsPerValue int // defaults to 16
}

// Area is a regular latitude/longitude grid extent in degrees.
type Area struct {
	La1, Lo1 float64 // first grid point
	La2, Lo2 float64 // last grid point
}

// NewMessage encodes a single simple-packed message on a regular
// latitude/longitude grid.
func NewMessage(h Header, g domain.Grid, area Area) ([]byte, error) {
	if g.Ni <= 0 || g.Nj <= 0 || g.Len() != len(g.Values) {
		return nil, fmt.Errorf("grid %dx%d does not match %d values", g.Ni, g.Nj, len(g.Values))
	}
	if g.Ni >= missingDim || g.Nj >= missingDim {
		return nil, fmt.Errorf("grid %dx%d: %w", g.Ni, g.Nj, ErrUnsupported)
	}

	pds := make([]byte, pdsMinLen)
	putUint24(pds[0:3], pdsMinLen)
	pds[3] = byte(h.TableVersion)
	pds[4] = byte(h.Centre)
	pds[5] = byte(h.Process)
	pds[6] = 255 // grid defined by the GDS
	pds[7] = flagGDS
	pds[8] = byte(h.Parameter)
	pds[9] = byte(h.LevelType)
	putUint16BE(pds[10:12], h.Level)

	t := h.RefTime.UTC()
	yoc, century := t.Year()%100, t.Year()/100+1
	if yoc == 0 {
		yoc, century = 100, century-1
	}
	pds[12] = byte(yoc)
	pds[13] = byte(t.Month())
	pds[14] = byte(t.Day())
	pds[15] = byte(t.Hour())
	pds[16] = byte(t.Minute())
	pds[17] = 1 // unit: hour
	pds[18] = byte(h.ForecastHour)
	pds[24] = byte(century)
	putInt16SM(pds[26:28], h.DecimalScale)

	gds := latLonGDS(g, area)

	nbits := h.BitsPerValue
	if nbits <= 0 {
		nbits = defaultBitsPerValue
	}
	bms, bds := pack(g.Values, h.DecimalScale, nbits)
	if bms != nil {
		pds[7] |= flagBMS
	}
	return assemble(pds, gds, bms, bds)
}

func latLonGDS(g domain.Grid, a Area) []byte {
	gds := make([]byte, 32)
	putUint24(gds[0:3], len(gds))
	gds[4] = 255 // no vertical coordinates
	gds[5] = 0   // regular lat/lon
	putUint16BE(gds[6:8], g.Ni)
	putUint16BE(gds[8:10], g.Nj)
	putInt24SM(gds[10:13], millideg(a.La1))
	putInt24SM(gds[13:16], millideg(a.Lo1))
	gds[16] = 0x80 // increments given
	putInt24SM(gds[17:20], millideg(a.La2))
	putInt24SM(gds[20:23], millideg(a.Lo2))
	putUint16BE(gds[23:25], increment(a.Lo1, a.Lo2, g.Ni))
	putUint16BE(gds[25:27], increment(a.La1, a.La2, g.Nj))
	if a.La2 > a.La1 {
		gds[27] = 0x40 // points scan in +j direction
	}
	return gds
}

func millideg(v float64) int {
	return int(math.Round(v * 1000))
}

func increment(from, to float64, n int) int {
	if n < 2 {
		return 0
	}
	return millideg(math.Abs(to-from) / float64(n-1))
}
