package tabular

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/username/tradejournal/src/logger"
	"github.com/username/tradejournal/src/models"
)

// FlexQueryResponse is the root element of an IBKR Flex Query report.
type FlexQueryResponse struct {
	XMLName        xml.Name        `xml:"FlexQueryResponse"`
	FlexStatements []FlexStatement `xml:"FlexStatements>FlexStatement"`
}

type FlexStatement struct {
	AccountID string      `xml:"accountId,attr"`
	Trades    []FlexTrade `xml:"Trades>Trade"`
}

// FlexTrade keeps attributes as text; adapters do their own number parsing.
type FlexTrade struct {
	AccountID        string `xml:"accountId,attr"`
	AssetCategory    string `xml:"assetCategory,attr"`
	Symbol           string `xml:"symbol,attr"`
	Description      string `xml:"description,attr"`
	UnderlyingSymbol string `xml:"underlyingSymbol,attr"`
	Multiplier       string `xml:"multiplier,attr"`
	Strike           string `xml:"strike,attr"`
	Expiry           string `xml:"expiry,attr"`
	PutCall          string `xml:"putCall,attr"`
	DateTime         string `xml:"dateTime,attr"`
	TradeDate        string `xml:"tradeDate,attr"`
	Quantity         string `xml:"quantity,attr"`
	TradePrice       string `xml:"tradePrice,attr"`
	Currency         string `xml:"currency,attr"`
	Exchange         string `xml:"exchange,attr"`
	IBCommission     string `xml:"ibCommission,attr"`
	BuySell          string `xml:"buySell,attr"`
	TradeID          string `xml:"tradeID,attr"`
	IBOrderID        string `xml:"ibOrderID,attr"`
}

var flexHeaders = []string{
	"Account", "Asset Category", "Symbol", "Description", "Underlying Symbol",
	"Multiplier", "Strike", "Expiry", "Put/Call", "Date/Time", "Quantity",
	"T. Price", "Currency", "Exchange", "Comm/Fee", "Buy/Sell", "Trade ID", "Order ID",
}

// ReadFlexXML flattens Flex Query trades into rows named like the IBKR
// statement CSV columns.
func ReadFlexXML(data []byte) (*Table, error) {
	var response FlexQueryResponse
	if err := xml.NewDecoder(bytes.NewReader(data)).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode flex query XML: %w", err)
	}

	t := &Table{FileType: FileTypeXML, Headers: append([]string{}, flexHeaders...), Rows: []models.Row{}}
	for _, stmt := range response.FlexStatements {
		for _, trade := range stmt.Trades {
			// FX conversions are not trades.
			if trade.Exchange == "IDEALFX" {
				continue
			}
			account := trade.AccountID
			if account == "" {
				account = stmt.AccountID
			}
			dateTime := trade.DateTime
			if dateTime == "" {
				dateTime = trade.TradeDate
			}
			t.Rows = append(t.Rows, models.Row{
				"Account":           account,
				"Asset Category":    trade.AssetCategory,
				"Symbol":            trade.Symbol,
				"Description":       trade.Description,
				"Underlying Symbol": trade.UnderlyingSymbol,
				"Multiplier":        trade.Multiplier,
				"Strike":            trade.Strike,
				"Expiry":            trade.Expiry,
				"Put/Call":          trade.PutCall,
				"Date/Time":         dateTime,
				"Quantity":          trade.Quantity,
				"T. Price":          trade.TradePrice,
				"Currency":          trade.Currency,
				"Exchange":          trade.Exchange,
				"Comm/Fee":          trade.IBCommission,
				"Buy/Sell":          trade.BuySell,
				"Trade ID":          trade.TradeID,
				"Order ID":          trade.IBOrderID,
			})
		}
	}
	logger.L.Debug("Flex query flattened", "statements", len(response.FlexStatements), "trades", len(t.Rows))
	return t, nil
}
