package node

import (
	"fmt"
	"math"

	"github.com/LeoCommon/fieldnode/internal/modem/nmea"
	"github.com/LeoCommon/fieldnode/pkg/bytebuf"
)

// ReportSize fits a single Sigfox uplink
const ReportSize = 12

const (
	coordinateScale = 1e7
	headingStep     = 2
)

// Report is a position as it travels over the radio. Precision is reduced:
// altitude in whole metres, speed in whole km/h, heading in 2 degree steps.
type Report struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
	Speed     float64
	Heading   float64
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// EncodeReport packs a fix big-endian as
// lat int32 | lon int32 | alt int16 | speed uint8 | heading uint8
func EncodeReport(fix nmea.Fix) *bytebuf.Buffer {
	b := &bytebuf.Buffer{}
	b.Reserve(ReportSize)

	b.AppendBuffer(bytebuf.Serialize(int32(math.Round(fix.Latitude * coordinateScale))))
	b.AppendBuffer(bytebuf.Serialize(int32(math.Round(fix.Longitude * coordinateScale))))
	b.AppendBuffer(bytebuf.Serialize(int16(math.Round(clamp(fix.Altitude, math.MinInt16, math.MaxInt16)))))
	b.Append(uint8(math.Round(clamp(fix.Speed, 0, math.MaxUint8))))

	heading := math.Mod(fix.Heading, 360)
	if heading < 0 {
		heading += 360
	}
	b.Append(uint8(heading / headingStep))

	return b
}

func DecodeReport(b *bytebuf.Buffer) (Report, error) {
	if b.Len() != ReportSize {
		return Report{}, fmt.Errorf("report has %d bytes, want %d", b.Len(), ReportSize)
	}

	return Report{
		Latitude:  float64(bytebuf.ReadBigEndian[int32](b, 0)) / coordinateScale,
		Longitude: float64(bytebuf.ReadBigEndian[int32](b, 4)) / coordinateScale,
		Altitude:  float64(bytebuf.ReadBigEndian[int16](b, 8)),
		Speed:     float64(bytebuf.ReadBigEndian[uint8](b, 10)),
		Heading:   float64(bytebuf.ReadBigEndian[uint8](b, 11)) * headingStep,
	}, nil
}
