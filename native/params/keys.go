package params

const (
	// ParamsKeyRisk stores the authoritative risk parameter record.
	ParamsKeyRisk = "risk/parameters"
	// ParamsKeyPayoutPolicy stores the payout recipients and rate split.
	ParamsKeyPayoutPolicy = "payout/policy"
	// ParamsKeyOracle stores the price oracle staleness bound.
	ParamsKeyOracle = "oracle/config"
	// ParamsKeySettlement stores the liquidation sizing knobs.
	ParamsKeySettlement = "settlement/parameters"
)
