package feed

import "github.com/quantpipe/tickfeed/internal/model"

// decodeTick converts a data frame into a normalized Tick. The second
// return is false for non-data or unrecognized event kinds, which
// callers silently ignore.
func decodeTick(f frame) (model.Tick, bool) {
	switch f.Ev {
	case "A", "AM":
		return model.Tick{
			Ticker:    f.Sym,
			Kind:      model.KindAggregate,
			Price:     f.Close,
			Volume:    f.Volume,
			Timestamp: f.Start,
			Open:      f.Open,
			High:      f.High,
			Low:       f.Low,
			Close:     f.Close,
			VWAP:      f.VWAP,
			Market:    model.MarketOpen,
		}, true

	case "T":
		return model.Tick{
			Ticker:    f.Sym,
			Kind:      model.KindTrade,
			Price:     f.Price,
			Volume:    f.Start, // trade size shares the "s" wire key
			Timestamp: f.Time,
			Market:    model.MarketOpen,
		}, true

	case "Q":
		return model.Tick{
			Ticker:    f.Sym,
			Kind:      model.KindQuote,
			Price:     (f.Bid + f.Ask) / 2, // midpoint
			Timestamp: f.Time,
			Bid:       f.Bid,
			Ask:       f.Ask,
			Market:    model.MarketOpen,
		}, true
	}

	return model.Tick{}, false
}
