// services/config.go
package services

import (
	"strings"

	"hashrate-rental-system/utils"
)

// Tunables are the operator constants shared by ingest, settlement and the
// cost-accrual job. Loaded once at boot from the environment.
type Tunables struct {
	PoolFeePercent   float64  // pool fee, percent of allocated BTC
	ASICPowerWatts   float64  // draw of one ASIC unit
	THPerASIC        float64  // hashrate of one ASIC unit
	HostingFeePerKWH float64  // USD per kWh
	OperatorTags     []string // coinbase substrings identifying our pool
	LocalCurrency    string   // quote currency for withdrawal amounts
}

func LoadTunables() Tunables {
	tags := strings.Split(utils.EnvString("OPERATOR_COINBASE_TAGS", "luxor,powered by luxor"), ",")
	for i := range tags {
		tags[i] = strings.ToLower(strings.TrimSpace(tags[i]))
	}
	return Tunables{
		PoolFeePercent:   utils.EnvFloat("POOL_FEE_PERCENT", 2.5),
		ASICPowerWatts:   utils.EnvFloat("ASIC_POWER_WATTS", 3420),
		THPerASIC:        utils.EnvFloat("TH_PER_ASIC", 88),
		HostingFeePerKWH: utils.EnvFloat("HOSTING_FEE_PER_KWH", 0.055),
		OperatorTags:     tags,
		LocalCurrency:    utils.EnvString("LOCAL_CURRENCY", "NGN"),
	}
}
