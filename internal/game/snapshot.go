package game

import (
	"time"

	"glitchex/internal/anomaly"
	"glitchex/internal/market"
)

type AssetSnapshot struct {
	market.AssetView
	Anomalies []anomaly.Anomaly `json:"anomalies"`
}

// Snapshot is the read model handed to presentation layers.
type Snapshot struct {
	At                 time.Time            `json:"at"`
	Tick               int64                `json:"tick"`
	BalanceMicros      int64                `json:"balance_micros"`
	StartBalanceMicros int64                `json:"start_balance_micros"`
	WinBalanceMicros   int64                `json:"win_balance_micros"`
	Progress           float64              `json:"progress"`
	Assets             []AssetSnapshot      `json:"assets"`
	Transactions       []market.Transaction `json:"transactions"`
	Selected           string               `json:"selected"`

	ActiveAnomalies int     `json:"active_anomalies"`
	OverloadMax     int     `json:"overload_max"`
	Integrity       float64 `json:"integrity"`

	InGrace        bool          `json:"in_grace"`
	Warning        bool          `json:"warning"`
	GraceRemaining time.Duration `json:"grace_remaining_ns"`
	CompromisedFor time.Duration `json:"compromised_for_ns"`
	NextSpawnAt    time.Time     `json:"next_spawn_at"`
	RequestPhase   anomaly.Phase `json:"request_phase"`
	Stopped        bool          `json:"stopped"`
	Reason         Reason        `json:"reason,omitempty"`
}

func (s *Session) Snapshot(now time.Time) Snapshot {
	ledger := s.engine.Ledger()
	views := s.engine.Assets()
	assets := make([]AssetSnapshot, 0, len(views))
	for _, v := range views {
		assets = append(assets, AssetSnapshot{AssetView: v, Anomalies: s.ctrl.ForAsset(v.Symbol)})
	}
	active := s.ctrl.Count()
	snap := Snapshot{
		At:                 now,
		Tick:               ledger.Tick,
		BalanceMicros:      ledger.BalanceMicros,
		StartBalanceMicros: ledger.StartBalanceMicros,
		WinBalanceMicros:   s.cfg.Director.WinBalanceMicros,
		Progress:           s.Progress(),
		Assets:             assets,
		Transactions:       ledger.Transactions,
		Selected:           s.selected,
		ActiveAnomalies:    active,
		OverloadMax:        s.cfg.Director.OverloadMax,
		Integrity:          integrity(active, s.cfg.Director.OverloadMax),
		InGrace:            s.director.InGrace(now),
		Warning:            s.director.Warning(now),
		CompromisedFor:     s.director.CompromisedFor(now),
		NextSpawnAt:        s.director.NextSpawn(),
		RequestPhase:       s.ctrl.Request().Phase,
		Stopped:            ledger.Stopped,
		Reason:             s.director.Reason(),
	}
	if snap.InGrace {
		snap.GraceRemaining = s.director.GraceEnd().Sub(now)
	}
	return snap
}

func integrity(active, overloadMax int) float64 {
	if overloadMax <= 0 {
		return 1
	}
	v := 1 - float64(active)/float64(overloadMax)
	if v < 0 {
		return 0
	}
	return v
}
