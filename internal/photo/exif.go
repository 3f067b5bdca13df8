package photo

import (
	"os"

	"backend-dailyrecord/internal/shared/geo"

	"github.com/rwcarlsen/goexif/exif"
)

// Extract reads capture time and GPS position from the file at path. Missing
// or unreadable metadata leaves the corresponding fields nil; it never fails.
func Extract(path string) Metadata {
	var m Metadata

	f, err := os.Open(path)
	if err != nil {
		return m
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if x == nil || (err != nil && exif.IsCriticalError(err)) {
		return m
	}

	if t, err := x.DateTime(); err == nil && !t.IsZero() {
		m.TakenAt = &t
	}
	if lat, lng, err := x.LatLong(); err == nil && geo.ValidCoordinate(lat, lng) {
		m.Latitude = &lat
		m.Longitude = &lng
	}
	return m
}
