// Package headcfg defines ScanHeadConfiguration (spec.md §3) and the
// cross-field validation invariant 2 of spec.md §8 requires: min ≤ def
// ≤ max for both laser-on time and camera exposure, detection/
// saturation thresholds within their fixed ranges, and laser-on bounds
// within the owning device variant's advertised range.
package headcfg

import (
	"github.com/banshee-data/scanhead/internal/scanerr"
	"github.com/banshee-data/scanhead/internal/specdata"
)

// Configuration is the effective per-pair ScanHeadConfiguration.
type Configuration struct {
	LaserOnTimeMinUS uint32
	LaserOnTimeDefUS uint32
	LaserOnTimeMaxUS uint32

	CameraExposureTimeMinUS uint32
	CameraExposureTimeDefUS uint32
	CameraExposureTimeMaxUS uint32

	LaserDetectionThreshold uint16 // 0..1023
	SaturationThreshold     uint16 // 0..1023
	SaturationPercentage    uint8  // 0..100
}

// Default returns the variant's factory-default configuration: def at
// the midpoint of min/max, thresholds at conservative defaults.
func Default(v *specdata.Variant) Configuration {
	return Configuration{
		LaserOnTimeMinUS:        v.MinLaserOnTimeUS,
		LaserOnTimeDefUS:        (v.MinLaserOnTimeUS + v.MaxLaserOnTimeUS) / 2,
		LaserOnTimeMaxUS:        v.MaxLaserOnTimeUS,
		CameraExposureTimeMinUS: v.MinLaserOnTimeUS,
		CameraExposureTimeDefUS: (v.MinLaserOnTimeUS + v.MaxLaserOnTimeUS) / 2,
		CameraExposureTimeMaxUS: v.MaxLaserOnTimeUS,
		LaserDetectionThreshold: 120,
		SaturationThreshold:     1023,
		SaturationPercentage:    30,
	}
}

// Validate checks invariant 2 of spec.md §8 against the owning
// variant's advertised bounds.
func (c Configuration) Validate(v *specdata.Variant) error {
	if err := checkMinDefMax(c.LaserOnTimeMinUS, c.LaserOnTimeDefUS, c.LaserOnTimeMaxUS, "laser_on_time"); err != nil {
		return err
	}
	if err := checkMinDefMax(c.CameraExposureTimeMinUS, c.CameraExposureTimeDefUS, c.CameraExposureTimeMaxUS, "camera_exposure_time"); err != nil {
		return err
	}
	if c.LaserDetectionThreshold > 1023 {
		return scanerr.New(scanerr.InvalidArgument, "laser_detection_threshold %d exceeds 1023", c.LaserDetectionThreshold)
	}
	if c.SaturationThreshold > 1023 {
		return scanerr.New(scanerr.InvalidArgument, "saturation_threshold %d exceeds 1023", c.SaturationThreshold)
	}
	if c.SaturationPercentage > 100 {
		return scanerr.New(scanerr.InvalidArgument, "saturation_percentage %d exceeds 100", c.SaturationPercentage)
	}
	if c.LaserOnTimeMinUS < v.MinLaserOnTimeUS || c.LaserOnTimeMaxUS > v.MaxLaserOnTimeUS {
		return scanerr.New(scanerr.InvalidArgument,
			"laser_on_time [%d,%d] outside device range [%d,%d]",
			c.LaserOnTimeMinUS, c.LaserOnTimeMaxUS, v.MinLaserOnTimeUS, v.MaxLaserOnTimeUS)
	}
	return nil
}

func checkMinDefMax(min, def, max uint32, field string) error {
	if !(min <= def && def <= max) {
		return scanerr.New(scanerr.InvalidArgument, "%s: requires min(%d) <= def(%d) <= max(%d)", field, min, def, max)
	}
	return nil
}
