package worldline

import (
	"math"
	"strconv"
	"time"

	Wt "github.com/maroda/worldline/types"
)

const (
	// HeightPerYear is the time-axis scale shared by every caller
	HeightPerYear = 100.0

	minYear = 1
	maxYear = 9999
)

// ReferenceEquinox is angle zero for every body (offset by its start angle)
var ReferenceEquinox = time.Date(2000, time.March, 20, 7, 35, 0, 0, time.UTC)

// DaysInYear is leap-year aware
func DaysInYear(year int) int {
	if year%4 == 0 && (year%100 != 0 || year%400 == 0) {
		return 366
	}
	return 365
}

func checkDate(date time.Time) error {
	if date.IsZero() {
		return &TemporalInputError{Field: "date", Value: "zero", Reason: "date is not set"}
	}
	y := date.UTC().Year()
	if y < minYear || y > maxYear {
		return &TemporalInputError{Field: "date", Value: strconv.Itoa(y), Reason: "year out of range"}
	}
	return nil
}

func checkEpoch(epochYear int) error {
	if epochYear < minYear || epochYear > maxYear {
		return &TemporalInputError{Field: "epoch", Value: strconv.Itoa(epochYear), Reason: "epoch year out of range"}
	}
	return nil
}

// Project converts a calendar date plus an hour of day into a height.
// Only the UTC calendar date of /date/ is read; /hour/ supplies the time of day.
func Project(date time.Time, hour float64, epochYear int) (float64, error) {
	if err := checkDate(date); err != nil {
		return 0, err
	}
	if err := checkEpoch(epochYear); err != nil {
		return 0, err
	}
	if math.IsNaN(hour) || math.IsInf(hour, 0) {
		return 0, &TemporalInputError{Field: "hour", Value: formatFloat(hour), Reason: "hour is not finite"}
	}
	if hour < 0 || hour >= 24 {
		return 0, &TemporalInputError{Field: "hour", Value: formatFloat(hour), Reason: "hour must be within [0, 24)"}
	}

	d := date.UTC()
	yearFraction := (float64(d.YearDay()-1) + hour/24) / float64(DaysInYear(d.Year()))

	return float64(d.Year()-epochYear)*HeightPerYear + yearFraction*HeightPerYear, nil
}

// ProjectInstant is Project with the hour taken from the instant itself
func ProjectInstant(t time.Time, epochYear int) (float64, error) {
	if err := checkDate(t); err != nil {
		return 0, err
	}
	u := t.UTC()
	midnight := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	hour := u.Sub(midnight).Hours()
	return Project(u, hour, epochYear)
}

// HeightToTime is the inverse of ProjectInstant, used for navigation
func HeightToTime(height float64, epochYear int) (time.Time, error) {
	if math.IsNaN(height) || math.IsInf(height, 0) {
		return time.Time{}, &TemporalInputError{Field: "height", Value: formatFloat(height), Reason: "height is not finite"}
	}
	if err := checkEpoch(epochYear); err != nil {
		return time.Time{}, err
	}

	years := height / HeightPerYear
	whole := math.Floor(years)
	year := epochYear + int(whole)
	if year < minYear || year > maxYear {
		return time.Time{}, &TemporalInputError{Field: "height", Value: formatFloat(height), Reason: "height maps outside supported years"}
	}

	frac := years - whole
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	yearLen := time.Duration(DaysInYear(year)) * 24 * time.Hour
	offset := time.Duration(math.Round(frac * float64(yearLen)))

	return start.Add(offset), nil
}

// NormalizeAngle folds any finite angle into [0, 2π)
func NormalizeAngle(a float64) float64 {
	twoPi := 2 * math.Pi
	a = math.Mod(a, twoPi)
	if a < 0 {
		a += twoPi
	}
	// Mod of a tiny negative can round back up to exactly 2π
	if a >= twoPi {
		a = 0
	}
	return a
}

// OrbitalAngle is the body's angle at /t/, measured from the reference equinox.
// Angles decrease as time advances, the same sense CurveSampler uses.
func OrbitalAngle(t time.Time, body Wt.OrbitalBody, epochYear int) (float64, error) {
	if err := checkBody(body); err != nil {
		return 0, err
	}
	h, err := ProjectInstant(t, epochYear)
	if err != nil {
		return 0, err
	}
	ref, err := ProjectInstant(ReferenceEquinox, epochYear)
	if err != nil {
		return 0, err
	}

	elapsed := (h - ref) / HeightPerYear
	angle := body.StartAngleRadians - (elapsed/body.OrbitalPeriodYears)*2*math.Pi
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		return 0, &TemporalInputError{Field: "angle", Value: formatFloat(angle), Reason: "angle is not finite"}
	}

	return NormalizeAngle(angle), nil
}

// Position projects one instant for one body
func Position(t time.Time, body Wt.OrbitalBody, epochYear int) (Wt.TemporalPosition, error) {
	h, err := ProjectInstant(t, epochYear)
	if err != nil {
		return Wt.TemporalPosition{}, err
	}
	a, err := OrbitalAngle(t, body, epochYear)
	if err != nil {
		return Wt.TemporalPosition{}, err
	}
	return Wt.TemporalPosition{Height: h, AngleRadians: a}, nil
}

func checkBody(body Wt.OrbitalBody) error {
	p := body.OrbitalPeriodYears
	if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
		return &TemporalInputError{Field: "period", Value: formatFloat(p), Reason: "orbital period must be finite and > 0 for " + body.Name}
	}
	if math.IsNaN(body.StartAngleRadians) || math.IsInf(body.StartAngleRadians, 0) {
		return &TemporalInputError{Field: "startAngle", Value: formatFloat(body.StartAngleRadians), Reason: "start angle is not finite for " + body.Name}
	}
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
