package game

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrRunnerStopped = errors.New("runner is not running")

type command struct {
	fn   func(now time.Time)
	done chan struct{}
}

// Runner owns a Session on a single goroutine. Market ticks, spawn timers,
// generation results and player commands are all handled in one select loop,
// so no two callbacks ever touch the session at the same time.
type Runner struct {
	session   *Session
	log       *slog.Logger
	tickEvery time.Duration
	now       func() time.Time

	cmds    chan command
	stopped chan struct{}

	mu      sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int
}

func NewRunner(session *Session, tickEvery time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		session:   session,
		log:       logger,
		tickEvery: tickEvery,
		now:       time.Now,
		cmds:      make(chan command),
		stopped:   make(chan struct{}),
		subs:      map[int]chan Snapshot{},
	}
}

// Run starts the session and blocks until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.stopped)
	s := r.session
	s.Start(r.now())

	ticker := time.NewTicker(r.tickEvery)
	defer ticker.Stop()
	wake := time.NewTimer(r.untilWake())
	defer wake.Stop()

	r.log.Info("game loop started", "tick_every", r.tickEvery.String())
	r.broadcast()
	for {
		select {
		case <-ctx.Done():
			s.ctrl.Cancel()
			r.log.Info("game loop shutdown")
			return nil
		case <-ticker.C:
			s.Tick(r.now())
		case <-wake.C:
			s.Wake(ctx, r.now())
		case res := <-s.Results():
			s.HandleResult(r.now(), res)
		case cmd := <-r.cmds:
			cmd.fn(r.now())
			close(cmd.done)
		}
		wake.Reset(r.untilWake())
		r.broadcast()
	}
}

func (r *Runner) untilWake() time.Duration {
	now := r.now()
	at, ok := r.session.NextWake(now)
	if !ok {
		// Nothing is scheduled once the game is over; idle until a restart.
		return time.Hour
	}
	if d := at.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Do runs fn on the loop goroutine and waits for it to finish.
func (r *Runner) Do(ctx context.Context, fn func(now time.Time, s *Session)) error {
	cmd := command{
		fn:   func(now time.Time) { fn(now, r.session) },
		done: make(chan struct{}),
	}
	select {
	case r.cmds <- cmd:
	case <-r.stopped:
		return ErrRunnerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	// The loop always runs an accepted command to completion.
	<-cmd.done
	return nil
}

func (r *Runner) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := r.Do(ctx, func(now time.Time, s *Session) { snap = s.Snapshot(now) })
	return snap, err
}

func (r *Runner) Buy(ctx context.Context, symbol string, qty int64) (TradeResult, error) {
	var (
		res TradeResult
		err error
	)
	if doErr := r.Do(ctx, func(now time.Time, s *Session) { res, err = s.Buy(now, symbol, qty) }); doErr != nil {
		return TradeResult{}, doErr
	}
	return res, err
}

func (r *Runner) Sell(ctx context.Context, symbol string, qty int64) (TradeResult, error) {
	var (
		res TradeResult
		err error
	)
	if doErr := r.Do(ctx, func(now time.Time, s *Session) { res, err = s.Sell(now, symbol, qty) }); doErr != nil {
		return TradeResult{}, doErr
	}
	return res, err
}

func (r *Runner) Select(ctx context.Context, symbol string) error {
	var err error
	if doErr := r.Do(ctx, func(_ time.Time, s *Session) { err = s.Select(symbol) }); doErr != nil {
		return doErr
	}
	return err
}

func (r *Runner) Purge(ctx context.Context, category string) (PurgeResult, error) {
	var (
		res PurgeResult
		err error
	)
	if doErr := r.Do(ctx, func(now time.Time, s *Session) { res, err = s.Purge(now, category) }); doErr != nil {
		return PurgeResult{}, doErr
	}
	return res, err
}

func (r *Runner) Restart(ctx context.Context) error {
	return r.Do(ctx, func(now time.Time, s *Session) {
		s.Restart(now)
		r.log.Info("game restarted")
	})
}

// Done is closed once Run has returned.
func (r *Runner) Done() <-chan struct{} {
	return r.stopped
}

// Subscribe returns a channel of snapshots published after every loop
// callback. Frames are dropped for subscribers that fall behind.
func (r *Runner) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Snapshot, buffer)
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
			close(ch)
		})
	}
}

func (r *Runner) broadcast() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.subs) == 0 {
		return
	}
	snap := r.session.Snapshot(r.now())
	for _, ch := range r.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}
