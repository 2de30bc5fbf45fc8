// Package format renders sensor values with the unit of their kind.
package format

import (
	"fmt"
	"math"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/Guliveer/spectrometer/internal/models"
)

// Missing is shown for a sensor without a current value.
const Missing = "-"

// Value formats v for display according to kind.
func Value(kind models.SensorKind, v *float64) string {
	if v == nil || math.IsNaN(*v) {
		return Missing
	}
	return value(kind, *v)
}

// Record formats the current value of r.
func Record(r models.SensorRecord) string {
	return Value(r.Kind, r.Value)
}

func value(kind models.SensorKind, v float64) string {
	switch kind {
	case models.KindClock:
		return fmt.Sprintf("%.0f MHz", v)
	case models.KindControl, models.KindLevel, models.KindLoad:
		return fmt.Sprintf("%.1f%%", v)
	case models.KindCurrent:
		return fmt.Sprintf("%.1f A", v)
	case models.KindData:
		return fmt.Sprintf("%.1f GB", v)
	case models.KindEnergy:
		return fmt.Sprintf("%.1f mWh", v)
	case models.KindFactor:
		return fmt.Sprintf("%.2f", v)
	case models.KindFan:
		return fmt.Sprintf("%.0f RPM", v)
	case models.KindFlow:
		return fmt.Sprintf("%.1f L/h", v)
	case models.KindFrequency:
		return fmt.Sprintf("%.1f Hz", v)
	case models.KindNoise:
		return fmt.Sprintf("%.1f dB", v)
	case models.KindPower:
		return fmt.Sprintf("%.1f W", v)
	case models.KindSmallData:
		return fmt.Sprintf("%.0f MB", v)
	case models.KindTemperature:
		return fmt.Sprintf("%.1f°C", v)
	case models.KindThroughput:
		return Rate(v)
	case models.KindTimeSpan:
		return fmt.Sprintf("%.1f s", v)
	case models.KindVoltage:
		return fmt.Sprintf("%.1f V", v)
	default:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
}

// Rate formats a byte rate, e.g. "83 MB/s". Negative rates render as zero.
func Rate(bytesPerSecond float64) string {
	if bytesPerSecond < 0 {
		bytesPerSecond = 0
	}
	return humanize.Bytes(uint64(bytesPerSecond)) + "/s"
}

// Bytes formats an absolute byte count.
func Bytes(n uint64) string {
	return humanize.Bytes(n)
}
