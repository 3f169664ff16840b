// File path: internal/ibmcloud/pricing_static.go
package ibmcloud

// Price sources, representing how fresh a quote is.
const (
	SourceLive   = "live"
	SourceCached = "cached"
	SourceStatic = "static"
)

// Price is one hourly/monthly quote for a profile or flavor.
type Price struct {
	Profile    string  `json:"profile"`
	HourlyUSD  float64 `json:"hourly_usd"`
	MonthlyUSD float64 `json:"monthly_usd"`
	Currency   string  `json:"currency"`
	Source     string  `json:"source"`
}

// hoursPerMonth is the 730-hour convention cloud billing uses.
const hoursPerMonth = 730

// staticHourlyUSD carries us-south list prices compiled into the binary so
// estimates survive without connectivity or credentials. Values drift from
// the live catalog over time; quotes built from them are tagged
// Source=static.
var staticHourlyUSD = map[string]float64{
	"bx2-2x8":    0.0962,
	"bx2-4x16":   0.1924,
	"bx2-8x32":   0.3848,
	"bx2-16x64":  0.7696,
	"bx2-32x128": 1.5392,
	"bx2-48x192": 2.3088,

	"cx2-2x4":   0.0858,
	"cx2-4x8":   0.1716,
	"cx2-8x16":  0.3432,
	"cx2-16x32": 0.6864,
	"cx2-32x64": 1.3728,
	"cx2-48x96": 2.0592,

	"mx2-2x16":   0.1100,
	"mx2-4x32":   0.2200,
	"mx2-8x64":   0.4400,
	"mx2-16x128": 0.8800,
	"mx2-32x256": 1.7600,
	"mx2-48x384": 2.6400,

	"bx2.4x16":   0.2070,
	"bx2.8x32":   0.4141,
	"bx2.16x64":  0.8282,
	"bx2.32x128": 1.6563,
	"bx2.48x192": 2.4845,
	"cx2.16x32":  0.7387,
	"cx2.32x64":  1.4774,
	"mx2.4x32":   0.2367,
	"mx2.8x64":   0.4735,
	"mx2.16x128": 0.9469,
	"mx2.32x256": 1.8938,
}

// Block storage monthly list price per GiB: general-purpose volumes for
// VSI, ODF-backed storage for ROKS workers.
const (
	staticVSIStoragePerGiBMonth  = 0.13
	staticROKSStoragePerGiBMonth = 0.21
)

// StaticPrice returns the compiled-in quote for a profile name.
func StaticPrice(profile string) (Price, bool) {
	hourly, ok := staticHourlyUSD[profile]
	if !ok {
		return Price{}, false
	}
	return Price{
		Profile:    profile,
		HourlyUSD:  hourly,
		MonthlyUSD: hourly * hoursPerMonth,
		Currency:   "USD",
		Source:     SourceStatic,
	}, true
}

// StorageMonthlyPerGiB returns the monthly per-GiB storage list price for
// the platform flavor implied by the profile spelling (dots mean ROKS).
func StorageMonthlyPerGiB(roks bool) float64 {
	if roks {
		return staticROKSStoragePerGiBMonth
	}
	return staticVSIStoragePerGiBMonth
}
