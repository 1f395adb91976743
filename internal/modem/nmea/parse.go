package nmea

import (
	"math"
	"strconv"
	"time"

	"github.com/LeoCommon/fieldnode/internal/modem/framer"
	"github.com/LeoCommon/fieldnode/pkg/bytebuf"
)

type hemisphere int

const (
	positive hemisphere = 1
	negative hemisphere = -1
)

func parseFloat(field *bytebuf.Buffer) (float64, bool) {
	if field.Len() == 0 {
		return 0, false
	}

	v, err := strconv.ParseFloat(field.String(), 64)
	return v, err == nil
}

// parseCoordinate converts the NMEA DDDMM.MMMM notation to decimal degrees
func parseCoordinate(field *bytebuf.Buffer) (float64, bool) {
	raw, ok := parseFloat(field)
	if !ok {
		return 0, false
	}

	deg := math.Trunc(raw / 100)
	return deg + (raw-deg*100)/60, true
}

func parseHemisphere(field *bytebuf.Buffer, current hemisphere) hemisphere {
	c, err := field.At(0)
	if err != nil {
		return current
	}

	switch c {
	case 'N', 'E':
		return positive
	case 'S', 'W':
		return negative
	}

	return current
}

func signed(v float64, h hemisphere) float64 {
	return math.Abs(v) * float64(h)
}

// parseHHMMSS reads the integer part of a time or date field
func parseHHMMSS(field *bytebuf.Buffer) (a, b, c int, ok bool) {
	v, err := field.AsInt()
	if err != nil || v < 0 {
		return 0, 0, 0, false
	}

	a = int(v / 10000)
	b = int(v/100) - a*100
	c = int(v) - b*100 - a*10000
	return a, b, c, true
}

// Two digit years from 80 on are 19xx
func fullYear(yy int) int {
	if yy >= 80 {
		return 1900 + yy
	}

	return 2000 + yy
}

// applyGGA reads position, satellites, HDOP and altitude. An empty fix quality
// stops the sentence, fields before it stay applied.
func (f *Fix) applyGGA(tok *framer.Tokenizer) {
	lat, lon := positive, positive

	for field, ok := tok.Next(); ok; field, ok = tok.Next() {
		switch tok.Index() {
		case 2:
			if v, ok := parseCoordinate(field); ok {
				f.Latitude = signed(v, lat)
			}
		case 3:
			lat = parseHemisphere(field, lat)
			f.Latitude = signed(f.Latitude, lat)
		case 4:
			if v, ok := parseCoordinate(field); ok {
				f.Longitude = signed(v, lon)
			}
		case 5:
			lon = parseHemisphere(field, lon)
			f.Longitude = signed(f.Longitude, lon)
		case 6:
			if field.Len() == 0 {
				return
			}
		case 7:
			if v, err := field.AsInt(); err == nil {
				f.Satellites = int(v)
			}
		case 8:
			if v, ok := parseFloat(field); ok {
				f.HorizontalAccuracy = v
			}
		case 9:
			if v, ok := parseFloat(field); ok {
				f.Altitude = v
			}
		}
	}
}

// applyRMC reads time, position, speed, heading and date. A status other
// than A (active) stops the sentence.
func (f *Fix) applyRMC(tok *framer.Tokenizer) {
	lat, lon := positive, positive

	var hh, mm, ss, day, month, yy int
	var gotTime, gotDate bool

	for field, ok := tok.Next(); ok; field, ok = tok.Next() {
		switch tok.Index() {
		case 1:
			hh, mm, ss, gotTime = parseHHMMSS(field)
		case 2:
			if c, _ := field.At(0); c != 'A' {
				return
			}
		case 3:
			if v, ok := parseCoordinate(field); ok {
				f.Latitude = signed(v, lat)
			}
		case 4:
			lat = parseHemisphere(field, lat)
			f.Latitude = signed(f.Latitude, lat)
		case 5:
			if v, ok := parseCoordinate(field); ok {
				f.Longitude = signed(v, lon)
			}
		case 6:
			lon = parseHemisphere(field, lon)
			f.Longitude = signed(f.Longitude, lon)
		case 7:
			if v, ok := parseFloat(field); ok {
				f.Speed = v * knotsToKmh
			}
		case 8:
			if v, ok := parseFloat(field); ok {
				f.Heading = v
			}
		case 9:
			day, month, yy, gotDate = parseHHMMSS(field)
		}
	}

	if !gotTime || !gotDate || month < 1 || month > 12 || day < 1 {
		return
	}

	epoch := time.Date(fullYear(yy), time.Month(month), day, hh, mm, ss, 0, time.UTC).Unix()
	if epoch != 0 {
		f.Epoch = epoch
	}
}

// applyVTG reads the true heading and the speed in km/h
func (f *Fix) applyVTG(tok *framer.Tokenizer) {
	for field, ok := tok.Next(); ok; field, ok = tok.Next() {
		switch tok.Index() {
		case 1:
			if v, ok := parseFloat(field); ok {
				f.Heading = v
			}
		case 7:
			if v, ok := parseFloat(field); ok {
				f.Speed = v
			}
		}
	}
}
