package photom

import (
	"strings"

	"github.com/rwcarlsen/goexif/exif"
)

// exifCards picks out the exposure metadata that a FITS header would
// have carried: exposure time, gain (as ISO), date and camera. Tags
// that are missing or malformed are left out.
func exifCards(ex *exif.Exif) Header {
	h := Header{}

	if tag, err := ex.Get(exif.ExposureTime); err == nil {
		if num, denom, err := tag.Rat2(0); err == nil && denom != 0 {
			h = append(h, Card{Name: "EXPTIME", Value: float64(num) / float64(denom), Comment: "[s] from EXIF ExposureTime"})
		}
	}

	if tag, err := ex.Get(exif.ISOSpeedRatings); err == nil {
		if val, err := tag.Int(0); err == nil {
			h = append(h, Card{Name: "ISO", Value: val, Comment: "from EXIF ISOSpeedRatings"})
		}
	}

	if t, err := ex.DateTime(); err == nil {
		h = append(h, Card{Name: "DATE-OBS", Value: t.Format("2006-01-02T15:04:05"), Comment: "from EXIF DateTimeOriginal"})
	}

	if tag, err := ex.Get(exif.Model); err == nil {
		if val, err := tag.StringVal(); err == nil {
			h = append(h, Card{Name: "INSTRUME", Value: strings.TrimSpace(val), Comment: "from EXIF Model"})
		}
	}

	return h
}
