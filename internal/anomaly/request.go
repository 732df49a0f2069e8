package anomaly

import (
	"context"
	"fmt"
	"time"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhasePending
	PhaseCooldown
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePending:
		return "pending"
	case PhaseCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	for _, v := range []Phase{PhaseIdle, PhasePending, PhaseCooldown} {
		if v.String() == string(b) {
			*p = v
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", b)
}

// Request asks a Generator for one corrupted control.
type Request struct {
	Token    uint64   `json:"token"`
	Symbol   string   `json:"symbol"`
	Slot     Slot     `json:"slot"`
	Variant  Variant  `json:"variant"`
	Severity Severity `json:"severity"`
}

// RequestState is the single source of truth for generation rate limiting.
//
//	Idle     -> Pending   (issue)
//	Pending  -> Cooldown  (result or failure; cooldown ends IssuedAt+gap)
//	Pending  -> Idle      (stuck timeout or reset; request cancelled)
//	Cooldown -> Pending   (issue once CooldownUntil has passed)
type RequestState struct {
	Phase         Phase     `json:"phase"`
	Target        Request   `json:"target"`
	IssuedAt      time.Time `json:"issued_at"`
	CooldownUntil time.Time `json:"cooldown_until"`

	cancel context.CancelFunc
}

func (r RequestState) Ready(now time.Time) bool {
	switch r.Phase {
	case PhaseIdle:
		return true
	case PhaseCooldown:
		return !now.Before(r.CooldownUntil)
	default:
		return false
	}
}

// Matches reports whether token belongs to the in-flight request.
func (r RequestState) Matches(token uint64) bool {
	return r.Phase == PhasePending && r.Target.Token == token
}

func (r *RequestState) issue(req Request, now time.Time, cancel context.CancelFunc) {
	*r = RequestState{Phase: PhasePending, Target: req, IssuedAt: now, cancel: cancel}
}

func (r *RequestState) settle(gap time.Duration) {
	r.release()
	r.Phase = PhaseCooldown
	r.CooldownUntil = r.IssuedAt.Add(gap)
}

func (r *RequestState) abort() {
	r.release()
	*r = RequestState{}
}

func (r *RequestState) release() {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}
