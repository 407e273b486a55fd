package rollup

import "github.com/orchard9/campaign-warehouse/internal/models"

// Metrics carries the additive counters of a leaf or subtree together with
// the ratios derived from them. The derived set is always recomputed from
// the additive set via Derive; it is never summed or averaged directly.
type Metrics struct {
	models.AdditiveMetrics

	ROAS       float64 `json:"roas"`
	LTROAS     float64 `json:"lt_roas"`
	CPRConfirm float64 `json:"cpr_confirm"`
	CPRRaw     float64 `json:"cpr_raw"`
	CPS        float64 `json:"cps"`
	RPS        float64 `json:"rps"`
	CPCUnique  float64 `json:"cpc_unique"`
	CPCRaw     float64 `json:"cpc_raw"`
}

// Derive computes the full metric set from additive counters. The same
// function serves single leaves and aggregated subtrees, so derivation
// rules are identical at every tree depth.
func Derive(a models.AdditiveMetrics) Metrics {
	return Metrics{
		AdditiveMetrics: a,
		ROAS:            SafeDivide(a.Revenue, a.Cost),
		LTROAS:          SafeDivide(a.LTRev, a.Cost),
		CPRConfirm:      SafeDivide(a.Cost, float64(a.ConfirmReg)),
		CPRRaw:          SafeDivide(a.Cost, float64(a.RawReg)),
		CPS:             SafeDivide(a.Cost, float64(a.Sales)),
		RPS:             SafeDivide(a.Revenue, float64(a.Sales)),
		CPCUnique:       SafeDivide(a.Cost, float64(a.UniqueClicks)),
		CPCRaw:          SafeDivide(a.Cost, float64(a.RawClicks)),
	}
}
