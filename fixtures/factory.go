// Package fixtures produces valid-by-construction request payloads for the
// driver service. Factories only generate happy-path data; tests that need
// an invalid field override it explicitly at the call site.
package fixtures

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// EmailDomain is the domain every generated driver email uses, so stale
// test rows are identifiable out of band.
const EmailDomain = "contract-tests.example.com"

// Moscow city center; generated coordinates stay within roughly a quarter
// degree of it, well inside the valid latitude/longitude ranges.
const (
	baseLatitude  = 55.7558
	baseLongitude = 37.6176
	coordSpread   = 0.25
)

// Overrides replaces generated fields by name in a factory payload.
type Overrides map[string]interface{}

// Factory generates request payloads from its own randomness source.
// Construct one per harness run and pass it down; there is no package
// level generator.
type Factory struct {
	rng *rand.Rand
}

func NewFactory(seed int64) *Factory {
	return &Factory{rng: rand.New(rand.NewSource(seed))}
}

var firstNames = []string{"Ivan", "Pyotr", "Sergey", "Dmitry", "Alexey", "Mikhail", "Nikolay", "Andrey"}
var lastNames = []string{"Ivanov", "Petrov", "Sidorov", "Smirnov", "Kuznetsov", "Popov", "Volkov", "Sokolov"}
var licenseRegions = []string{"77", "97", "99", "177"}

// BuildDriver generates a driver registration payload. Every field
// satisfies the service's validation constraints: Russian mobile phone
// format, four-digit passport series, six-digit passport number, a license
// expiry in the future, and a birth date for an adult driver.
func (f *Factory) BuildDriver(overrides Overrides) map[string]interface{} {
	first := firstNames[f.rng.Intn(len(firstNames))]
	last := lastNames[f.rng.Intn(len(lastNames))]
	now := time.Now().UTC()

	payload := map[string]interface{}{
		"phone":           fmt.Sprintf("+79%09d", f.rng.Intn(1000000000)),
		"email":           fmt.Sprintf("%s.%s.%s@%s", first, last, uuid.NewString()[:8], EmailDomain),
		"first_name":      first,
		"last_name":       last,
		"birth_date":      now.AddDate(-21-f.rng.Intn(40), 0, 0).Format(time.RFC3339),
		"passport_series": fmt.Sprintf("%04d", 1000+f.rng.Intn(9000)),
		"passport_number": fmt.Sprintf("%06d", 100000+f.rng.Intn(900000)),
		"license_number": fmt.Sprintf("%s%06d",
			licenseRegions[f.rng.Intn(len(licenseRegions))], 100000+f.rng.Intn(900000)),
		"license_expiry": now.AddDate(1+f.rng.Intn(9), 0, 0).Format(time.RFC3339),
	}
	applyOverrides(payload, overrides)
	return payload
}

// BuildLocation generates a location ping payload with coordinates in the
// Moscow area and sane accuracy, speed, and bearing values.
func (f *Factory) BuildLocation(overrides Overrides) map[string]interface{} {
	payload := map[string]interface{}{
		"latitude":  round6(baseLatitude + (f.rng.Float64()-0.5)*coordSpread),
		"longitude": round6(baseLongitude + (f.rng.Float64()-0.5)*coordSpread),
		"accuracy":  float64(1 + f.rng.Intn(10)),
		"speed":     float64(f.rng.Intn(81)),
		"bearing":   float64(f.rng.Intn(360)),
		"timestamp": time.Now().Unix(),
	}
	applyOverrides(payload, overrides)
	return payload
}

// BuildLocationBatch generates count pings with timestamps spaced ten
// seconds apart, oldest first, ending at the present.
func (f *Factory) BuildLocationBatch(count int) []map[string]interface{} {
	baseTime := time.Now().Unix() - int64(count)*10
	locations := make([]map[string]interface{}, 0, count)
	for i := 0; i < count; i++ {
		locations = append(locations, f.BuildLocation(Overrides{
			"timestamp": baseTime + int64(i)*10,
		}))
	}
	return locations
}

func applyOverrides(payload map[string]interface{}, overrides Overrides) {
	for k, v := range overrides {
		if v == nil {
			delete(payload, k)
			continue
		}
		payload[k] = v
	}
}

func round6(v float64) float64 {
	return float64(int64(v*1e6)) / 1e6
}
