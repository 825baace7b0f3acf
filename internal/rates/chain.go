package rates

import (
	"net/http"

	"github.com/sheikh-saqib/fund-ledger/internal/config"
)

// ChainFromConfig returns the providers in fallback order: exchangerate-api,
// frankfurter, exchangerate.host. Providers with an empty URL are skipped.
func ChainFromConfig(cfg config.RatesConfig, client *http.Client) []Provider {
	var chain []Provider
	if cfg.ExchangeRateAPIURL != "" {
		chain = append(chain, ExchangeRateAPI(cfg.ExchangeRateAPIURL, client))
	}
	if cfg.FrankfurterURL != "" {
		chain = append(chain, Frankfurter(cfg.FrankfurterURL, client))
	}
	if cfg.ExchangeRateHostURL != "" {
		chain = append(chain, ExchangeRateHost(cfg.ExchangeRateHostURL, client))
	}
	return chain
}
