package profile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lockevod/karoo-powerbar/internal/events"
	"github.com/lockevod/karoo-powerbar/internal/go_func_utils"
)

// ErrFeedClosed is returned by Stream once the feed has been shut down.
var ErrFeedClosed = errors.New("profile feed closed")

// Provider produces the rider profile. Stream blocks, writing every profile
// change to out until ctx is cancelled (returns nil) or the source fails.
type Provider interface {
	Stream(ctx context.Context, out chan<- UserProfile) error
}

// Feed publishes the current profile to any number of subscribers and keeps
// the store in sync. When pollInterval is set, edits made to the database by
// another process are picked up as well.
type Feed struct {
	logger       *zerolog.Logger
	store        Store
	event        *events.ChannelEvent[UserProfile]
	pollInterval time.Duration
	mu           sync.Mutex // serializes Update and reload
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

var _ Provider = (*Feed)(nil)

func NewFeed(logger *zerolog.Logger, store Store, initial UserProfile, pollInterval time.Duration) *Feed {
	if logger == nil {
		panic("Feed: logger cannot be nil")
	}
	if store == nil {
		panic("Feed: store cannot be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := logger.With().Str("component", "profile_feed").Logger()
	f := &Feed{
		logger:       &l,
		store:        store,
		event:        events.NewChannelEvent[UserProfile](true),
		pollInterval: pollInterval,
		ctx:          ctx,
		cancel:       cancel,
	}
	f.event.Notify(initial.Clone())

	if pollInterval > 0 {
		f.wg.Add(1)
		go_func_utils.SafeGo(f.logger, func() {
			defer f.wg.Done()
			f.pollLoop()
		})
	}
	return f
}

// Current returns the latest published profile.
func (f *Feed) Current() UserProfile {
	p, _ := f.event.Last()
	return p.Clone()
}

// Update saves p and publishes it.
func (f *Feed) Update(ctx context.Context, p UserProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.store.Save(ctx, p); err != nil {
		return err
	}
	f.event.Notify(p.Clone())
	f.logger.Info().Int("resting_hr", p.RestingHR).Int("max_hr", p.MaxHR).Msg("profile updated")
	return nil
}

// Stream sends the current profile, then every later one. A slow reader skips
// intermediate profiles but always ends up with the latest.
func (f *Feed) Stream(ctx context.Context, out chan<- UserProfile) error {
	wake := make(chan UserProfile, 1)
	unregister := f.event.Listen(wake)
	defer unregister()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-f.ctx.Done():
			return ErrFeedClosed
		case <-wake:
			latest, _ := f.event.Last()
			select {
			case out <- latest.Clone():
			case <-ctx.Done():
				return nil
			case <-f.ctx.Done():
				return ErrFeedClosed
			}
		}
	}
}

func (f *Feed) pollLoop() {
	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.ctx.Done():
			return
		case <-ticker.C:
			f.reload()
		}
	}
}

func (f *Feed) reload() {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, err := f.store.Load(f.ctx)
	if err != nil {
		if f.ctx.Err() == nil {
			f.logger.Warn().Err(err).Msg("could not reload profile")
		}
		return
	}
	if current, _ := f.event.Last(); current.Equal(p) {
		return
	}
	if err := p.Validate(); err != nil {
		f.logger.Warn().Err(err).Msg("ignoring invalid profile from store")
		return
	}
	f.event.Notify(p)
	f.logger.Info().Msg("profile changed in store")
}

// Shutdown stops the poll loop and ends every Stream with ErrFeedClosed.
func (f *Feed) Shutdown() {
	f.cancel()
	f.wg.Wait()
	f.event.Close()
}
