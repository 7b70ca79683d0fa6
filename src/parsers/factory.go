// src/parsers/factory.go
package parsers

import (
	"github.com/username/tradejournal/src/parsers/binanceus"
	"github.com/username/tradejournal/src/parsers/coinbase"
	"github.com/username/tradejournal/src/parsers/etrade"
	"github.com/username/tradejournal/src/parsers/fidelity"
	"github.com/username/tradejournal/src/parsers/ibkr"
	"github.com/username/tradejournal/src/parsers/kraken"
	"github.com/username/tradejournal/src/parsers/robinhood"
	"github.com/username/tradejournal/src/parsers/schwab"
	"github.com/username/tradejournal/src/parsers/tastytrade"
	"github.com/username/tradejournal/src/parsers/tradestation"
	"github.com/username/tradejournal/src/parsers/webull"
)

// NewDefaultRegistry registers every supported broker. Order matters: it
// breaks confidence ties.
func NewDefaultRegistry() *Registry {
	return NewRegistry(
		ibkr.NewAdapter(),
		schwab.NewAdapter(),
		webull.NewAdapter(),
		robinhood.NewAdapter(),
		fidelity.NewAdapter(),
		etrade.NewAdapter(),
		tastytrade.NewAdapter(),
		tradestation.NewAdapter(),
		coinbase.NewAdapter(),
		kraken.NewAdapter(),
		binanceus.NewAdapter(),
	)
}
