/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package era5

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cw3e/nwpcycle/internal/cycle"
)

// Call names a request template.
type Call string

const (
	ModelLevels Call = "model_levels"
	PresLevels  Call = "pres_levels"
	SurfLevels  Call = "surf_levels"
)

// ErrUnknownCall is returned for a call name without a template.
var ErrUnknownCall = errors.New("unknown ERA5 call")

const dateLayout = "2006-01-02"

var pressureVariables = []string{
	"divergence", "fraction_of_cloud_cover",
	"geopotential", "ozone_mass_mixing_ratio",
	"potential_vorticity", "relative_humidity",
	"specific_cloud_ice_water_content",
	"specific_cloud_liquid_water_content",
	"specific_humidity", "specific_rain_water_content",
	"specific_snow_water_content",
	"temperature", "u_component_of_wind",
	"v_component_of_wind", "vertical_velocity",
	"vorticity",
}

const pressureLevels = "1/2/3/5/7/10/20/30/50/70/100/125/150/175/200/" +
	"225/250/300/350/400/450/500/550/600/650/700/" +
	"750/775/800/825/850/875/900/925/950/975/1000"

var surfaceVariables = []string{
	"10m_u_component_of_wind", "10m_v_component_of_wind",
	"2m_dewpoint_temperature", "2m_temperature",
	"land_sea_mask", "mean_sea_level_pressure",
	"sea_ice_cover", "sea_surface_temperature",
	"skin_temperature", "snow_depth",
	"soil_temperature_level_1", "soil_temperature_level_2",
	"soil_temperature_level_3", "soil_temperature_level_4",
	"surface_pressure",
	"volumetric_soil_water_layer_1",
	"volumetric_soil_water_layer_2",
	"volumetric_soil_water_layer_3",
	"volumetric_soil_water_layer_4",
	"zero_degree_level",
}

// ParseCall validates a call name.
func ParseCall(s string) (Call, error) {
	switch c := Call(s); c {
	case ModelLevels, PresLevels, SurfLevels:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCall, s)
}

// Request is a CDS retrieval: a dataset name and its request body.
type Request struct {
	Dataset string
	Body    map[string]any
}

// NewRequest fills the template for call over the inclusive day range d0..d1.
func NewRequest(call Call, d0, d1 time.Time, hours string) (Request, error) {
	from, to := d0.Format(dateLayout), d1.Format(dateLayout)

	switch call {
	case ModelLevels:
		return Request{
			Dataset: "reanalysis-era5-complete",
			Body: map[string]any{
				"class":    "ea",
				"date":     from + "/to/" + to,
				"expver":   "1",
				"grid":     "0.25/0.25",
				"format":   "grib",
				"levelist": "1/to/137",
				"levtype":  "ml",
				"param":    "129/130/131/132/133/152",
				"stream":   "oper",
				"time":     hours,
				"type":     "an",
			},
		}, nil
	case PresLevels:
		return Request{
			Dataset: "reanalysis-era5-pressure-levels",
			Body: map[string]any{
				"date":           from + "/" + to,
				"time":           hours,
				"product_type":   "reanalysis",
				"variable":       pressureVariables,
				"pressure_level": []string{pressureLevels},
				"format":         "grib",
			},
		}, nil
	case SurfLevels:
		return Request{
			Dataset: "reanalysis-era5-single-levels",
			Body: map[string]any{
				"date":         from + "/" + to,
				"time":         hours,
				"product_type": "reanalysis",
				"format":       "grib",
				"grid":         "0.25/0.25",
				"variable":     surfaceVariables,
			},
		}, nil
	}
	return Request{}, fmt.Errorf("%w: %q", ErrUnknownCall, call)
}

// Hours returns "HH:00:00/..." from startHour through 23 every interval hours.
func Hours(startHour, interval int) (string, error) {
	leads, err := cycle.ForecastWindow{Min: startHour, Max: 23, Step: interval}.Leads()
	if err != nil {
		return "", fmt.Errorf("hours of day: %w", err)
	}
	if startHour < 0 {
		return "", fmt.Errorf("hours of day: start hour %d is negative", startHour)
	}
	parts := make([]string, len(leads))
	for i, h := range leads {
		parts[i] = cycle.PadLead(h, 2) + ":00:00"
	}
	return strings.Join(parts, "/"), nil
}

// Chunk is an inclusive range of days fetched into one file.
type Chunk struct {
	From time.Time
	To   time.Time
}

// TargetName is the file name for chunk under call.
func (c Chunk) TargetName(call Call) string {
	return fmt.Sprintf("%s--%s_%s.grib", c.From.Format(dateLayout), c.To.Format(dateLayout), call)
}

// Chunks splits the inclusive day range start..stop into windows of days
// days. The final window ends at stop and may be shorter.
func Chunks(start, stop time.Time, days int) ([]Chunk, error) {
	if days <= 0 {
		return nil, fmt.Errorf("day interval %d must be positive", days)
	}
	start = truncateDay(start)
	stop = truncateDay(stop)
	if stop.Before(start) {
		return nil, fmt.Errorf("%w: %s is before %s", cycle.ErrInvalidWindow, stop.Format(dateLayout), start.Format(dateLayout))
	}

	total := int(stop.Sub(start).Hours()/24) + 1
	var chunks []Chunk
	for n := 0; n < total; n += days {
		from := start.AddDate(0, 0, n)
		if n+days >= total {
			chunks = append(chunks, Chunk{From: from, To: stop})
			break
		}
		chunks = append(chunks, Chunk{From: from, To: start.AddDate(0, 0, n+days-1)})
	}
	return chunks, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
