package domain

// USD is the intermediate currency every FX rate is quoted against.
const USD = "USD"

// InstrumentKind discriminates the Instrument union.
type InstrumentKind int

const (
	InstrumentAsset InstrumentKind = iota + 1
	InstrumentFX
)

// Instrument is something the market data provider can price: either an asset
// (by ticker) or a currency's rate to USD. Symbol rendering is the provider's job.
type Instrument struct {
	Kind InstrumentKind
	Code string
}

// AssetPrice identifies the close price series of a ticker.
func AssetPrice(ticker string) Instrument {
	return Instrument{Kind: InstrumentAsset, Code: ticker}
}

// FxRate identifies the series of how many USD one unit of currency buys.
func FxRate(currency string) Instrument {
	return Instrument{Kind: InstrumentFX, Code: currency}
}

// IsFX reports whether the instrument is an FX rate.
func (i Instrument) IsFX() bool { return i.Kind == InstrumentFX }

func (i Instrument) String() string {
	if i.IsFX() {
		return "fx:" + i.Code
	}
	return "asset:" + i.Code
}
