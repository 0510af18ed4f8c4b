package api

import (
	"time"

	"poolwatch/internal/domain"
	"poolwatch/internal/pricing"
	"poolwatch/internal/state"
)

// TransferRow is one transfer as rendered in the feed.
type TransferRow struct {
	TxHash      string    `json:"tx_hash"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Value       string    `json:"value"`
	RawValue    string    `json:"raw_value"`
	Direction   string    `json:"direction"`
	BlockNumber uint64    `json:"block_number"`
	LogIndex    uint      `json:"log_index"`
	ObservedAt  time.Time `json:"observed_at"`
	ExplorerURL string    `json:"explorer_url"`
}

// TransferPage is one page of the newest-first transfer feed.
type TransferPage struct {
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
	Total    int           `json:"total"`
	Pages    int           `json:"pages"`
	Items    []TransferRow `json:"items"`
}

// CandleRow is one OHLC bucket.
type CandleRow struct {
	Time        int64     `json:"time"` // bucket start, unix seconds
	BucketStart time.Time `json:"bucket_start"`
	Open        string    `json:"open"`
	High        string    `json:"high"`
	Low         string    `json:"low"`
	Close       string    `json:"close"`
	Count       int       `json:"count"`
	BuyVolume   string    `json:"buy_volume"`
	SellVolume  string    `json:"sell_volume"`
}

// PricePointRow is one price-history sample.
type PricePointRow struct {
	At    time.Time `json:"at"`
	Time  int64     `json:"time"`
	Price string    `json:"price"`
}

func transferRow(t domain.ClassifiedTransfer, decimals int32, txURLPrefix string) TransferRow {
	raw := "0"
	if t.Value != nil {
		raw = t.Value.String()
	}
	hash := t.TxHash.Hex()
	return TransferRow{
		TxHash:      hash,
		From:        t.From.Hex(),
		To:          t.To.Hex(),
		Value:       pricing.ScaleUnits(t.Value, decimals).String(),
		RawValue:    raw,
		Direction:   t.Direction.String(),
		BlockNumber: t.BlockNumber,
		LogIndex:    t.LogIndex,
		ObservedAt:  t.ObservedAt,
		ExplorerURL: txURLPrefix + hash,
	}
}

// pageTransfers returns page (1-based) of transfers newest-first.
func pageTransfers(transfers []domain.ClassifiedTransfer, page, size int, decimals int32, txURLPrefix string) TransferPage {
	total := len(transfers)
	pages := (total + size - 1) / size

	out := TransferPage{
		Page:     page,
		PageSize: size,
		Total:    total,
		Pages:    pages,
		Items:    []TransferRow{},
	}

	if page > pages {
		return out
	}
	start := (page - 1) * size
	for i := start; i < start+size && i < total; i++ {
		// transfers are oldest-first
		out.Items = append(out.Items, transferRow(transfers[total-1-i], decimals, txURLPrefix))
	}
	return out
}

func candleRows(candles []domain.Candle) []CandleRow {
	out := make([]CandleRow, len(candles))
	for i, c := range candles {
		out[i] = CandleRow{
			Time:        c.BucketStart.Unix(),
			BucketStart: c.BucketStart,
			Open:        c.Open.String(),
			High:        c.High.String(),
			Low:         c.Low.String(),
			Close:       c.Close.String(),
			Count:       c.Count,
			BuyVolume:   c.BuyVolume.String(),
			SellVolume:  c.SellVolume.String(),
		}
	}
	return out
}

func historyRows(points []domain.PricePoint) []PricePointRow {
	out := make([]PricePointRow, len(points))
	for i, p := range points {
		out[i] = PricePointRow{At: p.At, Time: p.At.Unix(), Price: p.Price.String()}
	}
	return out
}

func logRows(entries []state.LogEntry) []state.LogEntry {
	if entries == nil {
		return []state.LogEntry{}
	}
	return entries
}
