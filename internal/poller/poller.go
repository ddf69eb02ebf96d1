// Package poller drives the tracker from the player: it polls at a fixed
// interval and reconnects whenever the player goes away.
package poller

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/llehouerou/mpsd/internal/errmsg"
	"github.com/llehouerou/mpsd/internal/logging"
	"github.com/llehouerou/mpsd/internal/player"
)

// Tracker consumes one snapshot per poll.
type Tracker interface {
	Poll(status player.Status, song player.Song) error
	Flush() error
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the poll and reconnect period. Defaults to one second.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) { p.interval = d }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Poller) { p.log = l }
}

// WithClock sets the clock used for sleeping.
func WithClock(c clockwork.Clock) Option {
	return func(p *Poller) { p.clock = c }
}

// WithPeriodic runs fn every period between polls, on the polling
// goroutine. The first run happens one period after Run starts.
func WithPeriodic(every time.Duration, fn func(context.Context)) Option {
	return func(p *Poller) {
		p.periodic = append(p.periodic, &periodicTask{every: every, fn: fn})
	}
}

type periodicTask struct {
	every time.Duration
	fn    func(context.Context)
	next  time.Time
}

// Poller owns the player connection.
type Poller struct {
	adapter  player.Adapter
	tracker  Tracker
	interval time.Duration
	log      logrus.FieldLogger
	clock    clockwork.Clock
	periodic []*periodicTask
}

// New returns a poller feeding tracker from adapter.
func New(adapter player.Adapter, tracker Tracker, opts ...Option) *Poller {
	p := &Poller{
		adapter:  adapter,
		tracker:  tracker,
		interval: time.Second,
		log:      logging.Discard(),
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run connects and polls until ctx is cancelled or an unrecoverable error
// occurs. On cancellation the open listen is finalized and Run returns nil.
func (p *Poller) Run(ctx context.Context) error {
	now := p.clock.Now()
	for _, task := range p.periodic {
		task.next = now.Add(task.every)
	}

	if err := p.connect(ctx); err != nil {
		if ctx.Err() != nil {
			return p.shutdown()
		}
		return err
	}

	for {
		if err := p.poll(); err != nil {
			if !reconnectable(err) {
				p.log.WithError(err).Error("polling stopped")
				_ = p.adapter.Disconnect()
				return err
			}
			p.log.WithError(err).Warn("lost connection to player")
			_ = p.adapter.Disconnect()
			if err := p.connect(ctx); err != nil {
				if ctx.Err() != nil {
					return p.shutdown()
				}
				return err
			}
			continue
		}

		p.runPeriodic(ctx)

		if !p.sleep(ctx) {
			return p.shutdown()
		}
	}
}

func (p *Poller) poll() error {
	status, err := p.adapter.Status()
	if err != nil {
		return err
	}

	var song player.Song
	if status.State == player.Playing {
		song, err = p.adapter.CurrentSong()
		if err != nil {
			return err
		}
	}
	return p.tracker.Poll(status, song)
}

// connect retries every interval until the player accepts the connection.
func (p *Poller) connect(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		err := p.adapter.Connect()
		if err == nil {
			err = p.adapter.Authenticate()
		}
		if err == nil {
			p.log.WithField("attempts", attempt).Info("connected to player")
			return nil
		}
		if !reconnectable(err) {
			p.log.WithError(err).Error("cannot connect to player")
			return err
		}

		p.log.WithError(err).WithField("attempt", attempt).Debug("connection attempt failed")
		_ = p.adapter.Disconnect()
		if !p.sleep(ctx) {
			return ctx.Err()
		}
	}
}

func (p *Poller) runPeriodic(ctx context.Context) {
	now := p.clock.Now()
	for _, task := range p.periodic {
		if now.Before(task.next) {
			continue
		}
		task.fn(ctx)
		task.next = now.Add(task.every)
	}
}

// sleep waits one interval. It returns false when ctx is done.
func (p *Poller) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-p.clock.After(p.interval):
		return true
	}
}

func (p *Poller) shutdown() error {
	p.log.Info("shutting down")
	err := p.tracker.Flush()
	_ = p.adapter.Disconnect()
	return err
}

// reconnectable reports whether err means the player session is unusable.
func reconnectable(err error) bool {
	return errmsg.KindOf(err).Reconnects()
}
