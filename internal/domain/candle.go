package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is an OHLC summary of transfer values inside one time bucket.
// Candles produced by one aggregation run are unique by BucketStart.
type Candle struct {
	BucketStart time.Time       // bucket start, aligned to the bucket width
	Open        decimal.Decimal // first value processed in the bucket
	High        decimal.Decimal // max value
	Low         decimal.Decimal // min value
	Close       decimal.Decimal // last value processed in the bucket
	Count       int             // number of transfers folded
	BuyVolume   decimal.Decimal // sum of Buy values
	SellVolume  decimal.Decimal // sum of Sell values
}

// PricePoint is one sample of an on-chain price history series.
type PricePoint struct {
	At    time.Time
	Price decimal.Decimal
}
