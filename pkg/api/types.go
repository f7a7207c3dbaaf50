package api

// API response types for REST endpoints and WebSocket messages.
// Token amounts and prices are human decimal strings (18 decimals applied).

import (
	"time"

	"github.com/uhyunpark/dexkit/pkg/contracts"
	"github.com/uhyunpark/dexkit/pkg/ops"
	"github.com/uhyunpark/dexkit/pkg/units"
)

// ==============================
// REST Response Types
// ==============================

// PairStatusInfo is a pair's status snapshot
type PairStatusInfo struct {
	Base               string `json:"base"`
	Secondary          string `json:"secondary"`
	EmergentPrice      string `json:"emergentPrice"`
	MarketPrice        string `json:"marketPrice"`
	LastClosingPrice   string `json:"lastClosingPrice"`
	EMAPrice           string `json:"emaPrice"`
	SmoothingFactor    string `json:"smoothingFactor"`
	LastBuyMatchID     string `json:"lastBuyMatchId"`
	LastBuyMatchAmount string `json:"lastBuyMatchAmount"`
	LastSellMatchID    string `json:"lastSellMatchId"`
	TickNumber         uint64 `json:"tickNumber"`
	NextTickBlock      string `json:"nextTickBlock"`
	LastTickBlock      string `json:"lastTickBlock"`
	Disabled           bool   `json:"disabled"`
}

func newPairStatusInfo(base, secondary string, s contracts.PairStatus) PairStatusInfo {
	return PairStatusInfo{
		Base:               base,
		Secondary:          secondary,
		EmergentPrice:      units.FromWei(s.EmergentPrice),
		MarketPrice:        units.FromWei(s.MarketPrice),
		LastClosingPrice:   units.FromWei(s.LastClosingPrice),
		EMAPrice:           units.FromWei(s.EMAPrice),
		SmoothingFactor:    units.FromWei(s.SmoothingFactor),
		LastBuyMatchID:     intStr(s.LastBuyMatchID),
		LastBuyMatchAmount: units.FromWei(s.LastBuyMatchAmount),
		LastSellMatchID:    intStr(s.LastSellMatchID),
		TickNumber:         s.TickNumber,
		NextTickBlock:      intStr(s.NextTickBlock),
		LastTickBlock:      intStr(s.LastTickBlock),
		Disabled:           s.Disabled,
	}
}

// TickStageInfo is the phase of a pair's matching cycle
type TickStageInfo struct {
	Base      string              `json:"base"`
	Secondary string              `json:"secondary"`
	Stage     contracts.TickStage `json:"stage"` // e.g. "RECEIVING_ORDERS"
	Value     uint8               `json:"value"`
}

type PausedInfo struct {
	Paused bool `json:"paused"`
}

// AmountInfo answers allowance and balance queries
type AmountInfo struct {
	Token   string `json:"token"`
	Owner   string `json:"owner"`
	Spender string `json:"spender,omitempty"`
	Amount  string `json:"amount"`   // human decimal
	BaseRaw string `json:"baseUnits"` // integer base units
}

// DexStatusInfo is the exchange overview
type DexStatusInfo struct {
	Paused                bool             `json:"paused"`
	MinOrderAmount        string           `json:"minOrderAmount"`
	MaxOrderLifespan      uint64           `json:"maxOrderLifespan"`
	ExpectedOrdersForTick uint64           `json:"expectedOrdersForTick"`
	MaxBlocksForTick      uint64           `json:"maxBlocksForTick"`
	MinBlocksForTick      uint64           `json:"minBlocksForTick"`
	Pairs                 []PairStatusInfo `json:"pairs"`
	CommissionRate        string           `json:"commissionRate,omitempty"`
	Beneficiary           string           `json:"beneficiary,omitempty"`
}

func newDexStatusInfo(s ops.DexStatus) DexStatusInfo {
	info := DexStatusInfo{
		Paused:                s.Paused,
		MinOrderAmount:        units.FromWei(s.MinOrderAmount),
		MaxOrderLifespan:      s.MaxOrderLifespan,
		ExpectedOrdersForTick: s.TickConfig.ExpectedOrdersForTick,
		MaxBlocksForTick:      s.TickConfig.MaxBlocksForTick,
		MinBlocksForTick:      s.TickConfig.MinBlocksForTick,
		Pairs:                 make([]PairStatusInfo, 0, len(s.Pairs)),
	}
	for _, p := range s.Pairs {
		info.Pairs = append(info.Pairs, newPairStatusInfo(p.Pair.Base.Hex(), p.Pair.Secondary.Hex(), p.Status))
	}
	if s.Commissions != nil {
		info.CommissionRate = units.FromWei(s.Commissions.CommissionRate)
		info.Beneficiary = s.Commissions.Beneficiary.Hex()
	}
	return info
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g. ["pair:DOC:WRBTC"]
}

// PairUpdate is pushed to "pair:<base>:<secondary>" subscribers every poll
type PairUpdate struct {
	Type      string              `json:"type"` // "pair"
	Channel   string              `json:"channel"`
	Status    PairStatusInfo      `json:"status"`
	Stage     contracts.TickStage `json:"stage"`
	Timestamp int64               `json:"timestamp"` // Unix milliseconds
}

func nowMillis() int64 { return time.Now().UnixMilli() }
