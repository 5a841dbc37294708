package fixtures

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	phonePattern          = regexp.MustCompile(`^\+79\d{9}$`)
	passportSeriesPattern = regexp.MustCompile(`^\d{4}$`)
	passportNumberPattern = regexp.MustCompile(`^\d{6}$`)
	licensePattern        = regexp.MustCompile(`^(77|97|99|177)\d{6}$`)
)

func TestBuildDriverSatisfiesFieldFormats(t *testing.T) {
	f := NewFactory(1)
	for i := 0; i < 50; i++ {
		d := f.BuildDriver(nil)
		assert.Regexp(t, phonePattern, d["phone"])
		assert.Regexp(t, passportSeriesPattern, d["passport_series"])
		assert.Regexp(t, passportNumberPattern, d["passport_number"])
		assert.Regexp(t, licensePattern, d["license_number"])
		assert.Contains(t, d["email"], "@"+EmailDomain)
		assert.NotEmpty(t, d["first_name"])
		assert.NotEmpty(t, d["last_name"])
		assert.NotEmpty(t, d["birth_date"])
		assert.NotEmpty(t, d["license_expiry"])
	}
}

func TestBuildDriverGeneratesUniqueIdentities(t *testing.T) {
	f := NewFactory(2)
	phones := map[string]bool{}
	emails := map[string]bool{}
	for i := 0; i < 100; i++ {
		d := f.BuildDriver(nil)
		emails[d["email"].(string)] = true
		phones[d["phone"].(string)] = true
	}
	assert.Len(t, emails, 100, "emails must be unique across builds")
	assert.Greater(t, len(phones), 95, "phone collisions should be rare")
}

func TestBuildLocationStaysInValidRanges(t *testing.T) {
	f := NewFactory(3)
	for i := 0; i < 50; i++ {
		loc := f.BuildLocation(nil)
		lat := loc["latitude"].(float64)
		lon := loc["longitude"].(float64)
		assert.InDelta(t, 55.7558, lat, 0.2)
		assert.InDelta(t, 37.6176, lon, 0.2)
		assert.GreaterOrEqual(t, loc["accuracy"].(float64), 1.0)
		assert.GreaterOrEqual(t, loc["speed"].(float64), 0.0)
		assert.LessOrEqual(t, loc["speed"].(float64), 80.0)
		assert.GreaterOrEqual(t, loc["bearing"].(float64), 0.0)
		assert.Less(t, loc["bearing"].(float64), 360.0)
	}
}

func TestBuildLocationBatchIsOldestFirst(t *testing.T) {
	f := NewFactory(4)
	batch := f.BuildLocationBatch(5)
	require.Len(t, batch, 5)
	for i := 1; i < len(batch); i++ {
		prev := batch[i-1]["timestamp"].(int64)
		cur := batch[i]["timestamp"].(int64)
		assert.Equal(t, prev+10, cur, "timestamps are spaced ten seconds apart")
	}
}

func TestOverridesReplaceGeneratedFields(t *testing.T) {
	f := NewFactory(5)
	d := f.BuildDriver(Overrides{"phone": "invalid", "extra": "field"})
	assert.Equal(t, "invalid", d["phone"])
	assert.Equal(t, "field", d["extra"])
}

func TestNilOverrideDeletesField(t *testing.T) {
	f := NewFactory(6)
	d := f.BuildDriver(Overrides{"email": nil})
	_, present := d["email"]
	assert.False(t, present, "a nil override removes the field entirely")
}

func TestSameSeedGivesSameSequence(t *testing.T) {
	a := NewFactory(42)
	b := NewFactory(42)
	la := a.BuildLocation(nil)
	lb := b.BuildLocation(nil)
	assert.Equal(t, la["latitude"], lb["latitude"])
	assert.Equal(t, la["longitude"], lb["longitude"])
}
