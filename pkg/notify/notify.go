// Package notify posts scheduled messages and new RSS items on a fixed one minute tick.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Jacobbrewer1/hound/pkg/dataaccess"
	"github.com/Jacobbrewer1/hound/pkg/discord"
	"github.com/Jacobbrewer1/hound/pkg/entities"
	"github.com/Jacobbrewer1/hound/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
)

const (
	// TickSchedule is the cron schedule of the notification poll.
	TickSchedule = "@every 60s"

	// SaveDelay is the quiet period before notification changes are written.
	SaveDelay = 2 * time.Second
)

var (
	// ErrNotFound is returned when a scheduled message or feed does not exist.
	ErrNotFound = errors.New("notification not found")

	// ErrInvalid is returned when input fails validation.
	ErrInvalid = errors.New("invalid notification")
)

var (
	// notificationsSent is the number of posted notifications by kind.
	notificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of scheduled messages and feed items posted",
		},
		[]string{"kind"},
	)

	// feedErrors is the number of failed feed polls.
	feedErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rss_poll_errors_total",
			Help: "Total number of failed RSS feed polls",
		},
	)
)

// document is the persisted form of the notification state.
type document struct {
	// ScheduledMessages is keyed by message ID.
	ScheduledMessages map[string]*entities.ScheduledMessage `json:"scheduledMessages"`

	// RSSFeeds is keyed by feed ID.
	RSSFeeds map[string]*entities.RSSFeed `json:"rssFeeds"`
}

// Service is the notification scheduler. Stored records are replaced, never mutated.
type Service struct {
	l       *slog.Logger
	store   dataaccess.DocumentStore
	client  discord.Client
	fetcher Fetcher
	now     func() time.Time

	mut       sync.RWMutex
	scheduled map[string]*entities.ScheduledMessage
	feeds     map[string]*entities.RSSFeed

	// tickMut keeps ticks from overlapping when a slow feed outlives the interval.
	tickMut sync.Mutex

	saver *dataaccess.Debouncer
}

// NewService creates a notification scheduler. A nil fetcher uses gofeed over HTTP.
func NewService(l *slog.Logger, store dataaccess.DocumentStore, client discord.Client, fetcher Fetcher) *Service {
	if fetcher == nil {
		fetcher = NewFeedFetcher()
	}
	s := &Service{
		l:         l.With(slog.String(logging.KeyComponent, "notify")),
		store:     store,
		client:    client,
		fetcher:   fetcher,
		now:       time.Now,
		scheduled: make(map[string]*entities.ScheduledMessage),
		feeds:     make(map[string]*entities.RSSFeed),
	}
	s.saver = dataaccess.NewDebouncer(s.l, SaveDelay, s.persist)
	return s
}

// Load reads the persisted notification state.
func (s *Service) Load(ctx context.Context) error {
	doc := new(document)
	err := s.store.Load(ctx, dataaccess.DocumentNotifications, doc)
	if errors.Is(err, dataaccess.ErrNotFound) {
		return nil
	} else if err != nil {
		return fmt.Errorf("error loading notifications: %w", err)
	}

	s.mut.Lock()
	defer s.mut.Unlock()

	for k, v := range doc.ScheduledMessages {
		s.scheduled[k] = v
	}
	for k, v := range doc.RSSFeeds {
		s.feeds[k] = v
	}
	return nil
}

func (s *Service) persist(ctx context.Context) error {
	s.mut.RLock()
	doc := &document{
		ScheduledMessages: make(map[string]*entities.ScheduledMessage, len(s.scheduled)),
		RSSFeeds:          make(map[string]*entities.RSSFeed, len(s.feeds)),
	}
	for k, v := range s.scheduled {
		doc.ScheduledMessages[k] = v
	}
	for k, v := range s.feeds {
		doc.RSSFeeds[k] = v
	}
	s.mut.RUnlock()

	if err := s.store.Save(ctx, dataaccess.DocumentNotifications, doc); err != nil {
		return fmt.Errorf("error saving notifications: %w", err)
	}
	return nil
}

// Flush writes pending changes. It is called on shutdown.
func (s *Service) Flush(ctx context.Context) error {
	return s.saver.Flush(ctx)
}

// Start runs the tick until the context is cancelled.
func (s *Service) Start(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(TickSchedule, func() {
		s.Tick(ctx, s.now())
	}); err != nil {
		return fmt.Errorf("error registering notification tick: %w", err)
	}

	c.Start()
	s.l.Info("Notification scheduler started")

	<-ctx.Done()

	// Wait for a running tick to finish.
	<-c.Stop().Done()
	s.l.Info("Notification scheduler stopped")
	return nil
}

// Tick sends the scheduled messages due at now and polls every feed.
func (s *Service) Tick(ctx context.Context, now time.Time) {
	s.tickMut.Lock()
	defer s.tickMut.Unlock()

	for _, m := range s.enabledScheduled() {
		if ctx.Err() != nil {
			return
		}
		if Due(m, now) {
			s.sendScheduled(ctx, m, now)
		}
	}

	for _, f := range s.allFeeds() {
		if ctx.Err() != nil {
			return
		}
		s.pollFeed(ctx, f, now)
	}
}

func (s *Service) enabledScheduled() []*entities.ScheduledMessage {
	s.mut.RLock()
	defer s.mut.RUnlock()

	out := make([]*entities.ScheduledMessage, 0, len(s.scheduled))
	for _, m := range s.scheduled {
		if m.Enabled {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Service) allFeeds() []*entities.RSSFeed {
	s.mut.RLock()
	defer s.mut.RUnlock()

	out := make([]*entities.RSSFeed, 0, len(s.feeds))
	for _, f := range s.feeds {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
