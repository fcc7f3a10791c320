// internal/domain/models.go
package domain

import (
	"fmt"
	"time"
)

// PairKey identifies one store-product series.
type PairKey struct {
	Store   string `json:"store" db:"store"`
	Product string `json:"product" db:"product"`
}

func (k PairKey) String() string {
	return fmt.Sprintf("%s/%s", k.Store, k.Product)
}

// DemandObservation is one cleaned daily row for a store-product pair.
// Calendar, seasonality and weather columns are produced upstream.
type DemandObservation struct {
	Date    time.Time `json:"date" db:"date"`
	Store   string    `json:"store" db:"store"`
	Product string    `json:"product" db:"product"`

	Price     float64 `json:"price" db:"price"`
	Promotion bool    `json:"promotion" db:"promotion"`
	IsWeekend bool    `json:"is_weekend" db:"is_weekend"`

	Category      string `json:"category" db:"category"`
	ConsumerGroup string `json:"consumer_group" db:"consumer_group"`
	Substance     string `json:"substance" db:"substance"`

	Sold         int `json:"sold" db:"sold"`
	Stock        int `json:"stock" db:"stock"`
	Received     int `json:"received" db:"received"`
	Ordered      int `json:"ordered" db:"ordered"`
	ReceiptCount int `json:"receipt_count" db:"receipt_count"`

	// Network-wide totals for the product, carried through untouched.
	NetworkSold         int `json:"network_sold" db:"network_sold"`
	NetworkStock        int `json:"network_stock" db:"network_stock"`
	NetworkReceived     int `json:"network_received" db:"network_received"`
	NetworkReceiptCount int `json:"network_receipt_count" db:"network_receipt_count"`

	DayOfWeek int `json:"day_of_week" db:"day_of_week"`
	Day       int `json:"day" db:"day"`
	Month     int `json:"month" db:"month"`
	Year      int `json:"year" db:"year"`

	Season        string  `json:"season" db:"season"`
	PreciseSeason bool    `json:"precise_season" db:"precise_season"`
	Temperature   float64 `json:"temperature" db:"temperature"`
	Pressure      float64 `json:"pressure" db:"pressure"`
}

// Key returns the pair the observation belongs to.
func (o DemandObservation) Key() PairKey {
	return PairKey{Store: o.Store, Product: o.Product}
}

// Censored reports the stockout signature: nothing in stock, nothing sold,
// nothing delivered.
func (o DemandObservation) Censored() bool {
	return o.Sold == 0 && o.Stock == 0 && o.Received == 0
}

// Grounded reports whether the raw row shows real activity.
func (o DemandObservation) Grounded() bool {
	return o.Stock != 0 || o.Sold != 0
}

// CorrectedObservation is a DemandObservation plus the recovered fields.
type CorrectedObservation struct {
	DemandObservation

	IsPoissonLike bool    `json:"is_poisson_like" db:"is_poisson_like"`
	MedianLagDays float64 `json:"median_lag_days" db:"median_lag_days"`

	SoldCorrected     int `json:"sold_corrected" db:"sold_corrected"`
	ReceivedCorrected int `json:"received_corrected" db:"received_corrected"`
	StockCorrected    int `json:"stock_corrected" db:"stock_corrected"`
	OrderedSimulated  int `json:"ordered_simulated" db:"ordered_simulated"`
}

// NewCorrectedObservation seeds every corrected field with its raw value.
func NewCorrectedObservation(o DemandObservation) CorrectedObservation {
	return CorrectedObservation{
		DemandObservation: o,
		SoldCorrected:     o.Sold,
		ReceivedCorrected: o.Received,
		StockCorrected:    o.Stock,
		OrderedSimulated:  o.Ordered,
	}
}

// DistributionLabel records whether a pair's sales behave like a Poisson process.
type DistributionLabel struct {
	PairKey
	IsPoissonLike bool `json:"is_poisson_like" db:"is_poisson_like"`
}

// LagProfile is the median order-to-receipt lead time of a pair.
// Matched is false when no order could be matched and the default was used.
type LagProfile struct {
	PairKey
	MedianLagDays float64 `json:"median_lag_days" db:"median_lag_days"`
	Matched       bool    `json:"matched" db:"lag_matched"`
}

// PairProfile is the persisted unit reused by incremental runs.
type PairProfile struct {
	Store         string    `json:"store" db:"store"`
	Product       string    `json:"product" db:"product"`
	IsPoissonLike bool      `json:"is_poisson_like" db:"is_poisson_like"`
	MedianLagDays float64   `json:"median_lag_days" db:"median_lag_days"`
	LagMatched    bool      `json:"lag_matched" db:"lag_matched"`
	RunID         int64     `json:"run_id" db:"run_id"`
	ComputedAt    time.Time `json:"computed_at" db:"computed_at"`
}

// Key returns the pair the profile belongs to.
func (p PairProfile) Key() PairKey {
	return PairKey{Store: p.Store, Product: p.Product}
}

// Label splits the distribution label out of the profile.
func (p PairProfile) Label() DistributionLabel {
	return DistributionLabel{PairKey: p.Key(), IsPoissonLike: p.IsPoissonLike}
}

// Lag splits the lag profile out of the profile.
func (p PairProfile) Lag() LagProfile {
	return LagProfile{PairKey: p.Key(), MedianLagDays: p.MedianLagDays, Matched: p.LagMatched}
}

// NewPairProfile joins a label and a lag profile of the same pair.
func NewPairProfile(label DistributionLabel, lag LagProfile) PairProfile {
	return PairProfile{
		Store:         label.Store,
		Product:       label.Product,
		IsPoissonLike: label.IsPoissonLike,
		MedianLagDays: lag.MedianLagDays,
		LagMatched:    lag.Matched,
	}
}
