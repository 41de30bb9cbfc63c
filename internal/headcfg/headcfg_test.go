package headcfg

import (
	"testing"

	"github.com/banshee-data/scanhead/internal/scanerr"
	"github.com/banshee-data/scanhead/internal/specdata"
	"github.com/banshee-data/scanhead/internal/testutil"
)

func wsc(t *testing.T) *specdata.Variant {
	t.Helper()
	v, err := specdata.Lookup(specdata.TypeWSC)
	testutil.AssertNoError(t, err)
	return v
}

func TestDefaultConfigIsValid(t *testing.T) {
	v := wsc(t)
	testutil.AssertNoError(t, Default(v).Validate(v))
}

func TestValidateRejectsDefOutOfOrder(t *testing.T) {
	v := wsc(t)
	c := Default(v)
	c.LaserOnTimeDefUS = c.LaserOnTimeMinUS - 1
	testutil.AssertCode(t, c.Validate(v), scanerr.InvalidArgument)
}

func TestValidateRejectsThresholdOverflow(t *testing.T) {
	v := wsc(t)
	c := Default(v)
	c.LaserDetectionThreshold = 1024
	testutil.AssertCode(t, c.Validate(v), scanerr.InvalidArgument)

	c = Default(v)
	c.SaturationPercentage = 101
	testutil.AssertCode(t, c.Validate(v), scanerr.InvalidArgument)
}

func TestValidateRejectsOutsideDeviceRange(t *testing.T) {
	v := wsc(t)
	c := Default(v)
	c.LaserOnTimeMaxUS = v.MaxLaserOnTimeUS + 1
	testutil.AssertCode(t, c.Validate(v), scanerr.InvalidArgument)
}
