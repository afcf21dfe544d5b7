package smartapi

import (
	"net/http"
	"strings"

	"github.com/ericfisherdev/algopilot/internal/domain/port/driven"
)

// DefaultBaseURL is the broker's primary REST host.
const DefaultBaseURL = "https://apiconnect.angelbroking.com"

// AlternateBaseURL serves the same API under the broker's newer domain.
const AlternateBaseURL = "https://apiconnect.angelone.in"

// Endpoint catalog. Names key the HostPolicy.
var (
	EndpointLogin         = driven.Endpoint{Name: "user.login", Method: http.MethodPost, Path: "/rest/auth/angelbroking/user/v1/loginByPassword"}
	EndpointRefresh       = driven.Endpoint{Name: "user.refresh", Method: http.MethodPost, Path: "/rest/auth/angelbroking/jwt/v1/generateTokens"}
	EndpointLogout        = driven.Endpoint{Name: "user.logout", Method: http.MethodPost, Path: "/rest/secure/angelbroking/user/v1/logout"}
	EndpointProfile       = driven.Endpoint{Name: "user.profile", Method: http.MethodGet, Path: "/rest/secure/angelbroking/user/v1/getProfile"}
	EndpointFunds         = driven.Endpoint{Name: "user.rms", Method: http.MethodGet, Path: "/rest/secure/angelbroking/user/v1/getRMS"}
	EndpointPositions     = driven.Endpoint{Name: "portfolio.positions", Method: http.MethodGet, Path: "/rest/secure/angelbroking/order/v1/getPosition"}
	EndpointHoldings      = driven.Endpoint{Name: "portfolio.holdings", Method: http.MethodGet, Path: "/rest/secure/angelbroking/portfolio/v1/getHolding"}
	EndpointOrderBook     = driven.Endpoint{Name: "order.book", Method: http.MethodGet, Path: "/rest/secure/angelbroking/order/v1/getOrderBook"}
	EndpointTradeBook     = driven.Endpoint{Name: "order.trades", Method: http.MethodGet, Path: "/rest/secure/angelbroking/order/v1/getTradeBook"}
	EndpointPlaceOrder    = driven.Endpoint{Name: "order.place", Method: http.MethodPost, Path: "/rest/secure/angelbroking/order/v1/placeOrder"}
	EndpointModifyOrder   = driven.Endpoint{Name: "order.modify", Method: http.MethodPost, Path: "/rest/secure/angelbroking/order/v1/modifyOrder"}
	EndpointCancelOrder   = driven.Endpoint{Name: "order.cancel", Method: http.MethodPost, Path: "/rest/secure/angelbroking/order/v1/cancelOrder"}
	EndpointQuote         = driven.Endpoint{Name: "market.quote", Method: http.MethodPost, Path: "/rest/secure/angelbroking/market/v1/quote/"}
	EndpointCandles       = driven.Endpoint{Name: "market.candles", Method: http.MethodPost, Path: "/rest/secure/angelbroking/historical/v1/getCandleData"}
	EndpointGainersLosers = driven.Endpoint{Name: "market.gainers_losers", Method: http.MethodPost, Path: "/rest/secure/angelbroking/marketData/v1/gainersLosers"}
)

// HostPolicy lists, per endpoint name, the base URLs tried after the
// account's own base URL. A request moves to the next host only when the
// previous one failed with a network error or an edge rejection.
type HostPolicy map[string][]string

// DefaultHostPolicy reflects the endpoints the broker is known to serve
// inconsistently across its two domains.
func DefaultHostPolicy() HostPolicy {
	return HostPolicy{
		EndpointPositions.Name:     {AlternateBaseURL},
		EndpointGainersLosers.Name: {AlternateBaseURL},
	}
}

// Candidates returns the ordered, de-duplicated base URLs for an endpoint,
// starting with primary.
func (p HostPolicy) Candidates(endpoint, primary string) []string {
	primary = strings.TrimRight(primary, "/")
	hosts := []string{primary}
	seen := map[string]bool{primary: true}

	for _, h := range p[endpoint] {
		h = strings.TrimRight(h, "/")
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		hosts = append(hosts, h)
	}
	return hosts
}
