package publish

import (
	"fmt"
	"time"

	ptime "github.com/yaa110/go-persian-calendar"
)

// toJalali converts a Gregorian civil date to the Solar Hijri calendar.
func toJalali(gy, gm, gd int) (jy, jm, jd int) {
	pt := ptime.New(time.Date(gy, time.Month(gm), gd, 12, 0, 0, 0, time.UTC))
	return pt.Year(), int(pt.Month()), pt.Day()
}

// formatDate renders t as "YYYY/MM/DD HH:MM" in the requested calendar.
func formatDate(t time.Time, calendar string) string {
	if calendar == CalendarJalali {
		pt := ptime.New(t)
		return fmt.Sprintf("%04d/%02d/%02d %02d:%02d", pt.Year(), int(pt.Month()), pt.Day(), t.Hour(), t.Minute())
	}
	return t.Format("2006/01/02 15:04")
}
