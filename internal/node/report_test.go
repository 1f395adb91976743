package node

import (
	"testing"

	"github.com/LeoCommon/fieldnode/internal/modem/nmea"
	"github.com/LeoCommon/fieldnode/pkg/bytebuf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportRoundTrip(t *testing.T) {
	fix := nmea.Fix{
		Latitude:  48.1173,
		Longitude: -11.516667,
		Altitude:  545.4,
		Speed:     41.48,
		Heading:   84.4,
	}

	b := EncodeReport(fix)
	require.Equal(t, ReportSize, b.Len())

	r, err := DecodeReport(b)
	require.NoError(t, err)
	assert.InDelta(t, fix.Latitude, r.Latitude, 1e-7)
	assert.InDelta(t, fix.Longitude, r.Longitude, 1e-7)
	assert.Equal(t, 545.0, r.Altitude)
	assert.Equal(t, 41.0, r.Speed)
	assert.Equal(t, 84.0, r.Heading)
}

func TestReportLayout(t *testing.T) {
	b := EncodeReport(nmea.Fix{Latitude: 1, Longitude: -1, Altitude: -2, Speed: 3, Heading: 10})

	assert.Equal(t, []byte{
		0x00, 0x98, 0x96, 0x80,
		0xFF, 0x67, 0x69, 0x80,
		0xFF, 0xFE,
		0x03,
		0x05,
	}, b.Bytes())
}

func TestReportClamps(t *testing.T) {
	r, err := DecodeReport(EncodeReport(nmea.Fix{Altitude: 1e6, Speed: 900, Heading: -2}))
	require.NoError(t, err)

	assert.Equal(t, 32767.0, r.Altitude)
	assert.Equal(t, 255.0, r.Speed)
	assert.Equal(t, 358.0, r.Heading)
}

func TestDecodeReportSize(t *testing.T) {
	_, err := DecodeReport(bytebuf.New(11, 0))
	assert.Error(t, err)
}
