package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Jacobbrewer1/hound/pkg/custom"
	"github.com/Jacobbrewer1/hound/pkg/dataaccess"
	"github.com/Jacobbrewer1/hound/pkg/discord/discordtest"
	"github.com/Jacobbrewer1/hound/pkg/entities"
	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/require"
)

const (
	testGuild   = "guild-1"
	testChannel = "announcements"
	feedURL     = "https://example.com/feed.xml"
)

type fakeFetcher struct {
	mut   sync.Mutex
	feed  *gofeed.Feed
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(context.Context, string) (*gofeed.Feed, error) {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.feed, nil
}

func (f *fakeFetcher) set(items ...*gofeed.Item) {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.feed = &gofeed.Feed{Title: "Example", Items: items}
}

func newTestService(t *testing.T) (*Service, *discordtest.Client, *fakeFetcher, dataaccess.DocumentStore) {
	t.Helper()

	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := dataaccess.NewFileStore(l, t.TempDir())
	require.NoError(t, err)

	client := discordtest.New()
	fetcher := new(fakeFetcher)
	return NewService(l, store, client, fetcher), client, fetcher, store
}

func item(id string, published time.Time, title string) *gofeed.Item {
	return &gofeed.Item{
		GUID:            id,
		Title:           title,
		Link:            "https://example.com/" + id,
		PublishedParsed: &published,
	}
}

func TestDue(t *testing.T) {
	// Monday 1 January 2024, 09:00 in London is 09:00 UTC, in New York it is 04:00.
	now := time.Date(2024, 1, 1, 9, 0, 30, 0, time.UTC)
	sentToday := custom.Datetime(time.Date(2024, 1, 1, 0, 30, 0, 0, time.UTC))
	sentYesterday := custom.Datetime(time.Date(2023, 12, 31, 9, 0, 0, 0, time.UTC))

	tests := []struct {
		name string
		msg  entities.ScheduledMessage
		want bool
	}{
		{
			name: "daily match",
			msg:  entities.ScheduledMessage{Time: "09:00", Type: entities.ScheduleDaily, Enabled: true},
			want: true,
		},
		{
			name: "wrong minute",
			msg:  entities.ScheduledMessage{Time: "09:01", Type: entities.ScheduleDaily, Enabled: true},
			want: false,
		},
		{
			name: "disabled",
			msg:  entities.ScheduledMessage{Time: "09:00", Type: entities.ScheduleDaily},
			want: false,
		},
		{
			name: "timezone converts",
			msg:  entities.ScheduledMessage{Time: "04:00", Timezone: "America/New_York", Type: entities.ScheduleDaily, Enabled: true},
			want: true,
		},
		{
			name: "timezone mismatch",
			msg:  entities.ScheduledMessage{Time: "09:00", Timezone: "America/New_York", Type: entities.ScheduleDaily, Enabled: true},
			want: false,
		},
		{
			name: "weekly on monday",
			msg:  entities.ScheduledMessage{Time: "09:00", Type: entities.ScheduleWeekly, DayOfWeek: 1, Enabled: true},
			want: true,
		},
		{
			name: "weekly on tuesday",
			msg:  entities.ScheduledMessage{Time: "09:00", Type: entities.ScheduleWeekly, DayOfWeek: 2, Enabled: true},
			want: false,
		},
		{
			name: "monthly first",
			msg:  entities.ScheduledMessage{Time: "09:00", Type: entities.ScheduleMonthly, DayOfMonth: 1, Enabled: true},
			want: true,
		},
		{
			name: "monthly fifteenth",
			msg:  entities.ScheduledMessage{Time: "09:00", Type: entities.ScheduleMonthly, DayOfMonth: 15, Enabled: true},
			want: false,
		},
		{
			name: "once on date",
			msg:  entities.ScheduledMessage{Time: "09:00", Type: entities.ScheduleOnce, Date: "2024-01-01", Enabled: true},
			want: true,
		},
		{
			name: "once on another date",
			msg:  entities.ScheduledMessage{Time: "09:00", Type: entities.ScheduleOnce, Date: "2024-01-02", Enabled: true},
			want: false,
		},
		{
			name: "already sent today",
			msg:  entities.ScheduledMessage{Time: "09:00", Type: entities.ScheduleDaily, Enabled: true, LastSent: sentToday},
			want: false,
		},
		{
			name: "sent yesterday",
			msg:  entities.ScheduledMessage{Time: "09:00", Type: entities.ScheduleDaily, Enabled: true, LastSent: sentYesterday},
			want: true,
		},
		{
			// 00:30 UTC on the 1st is still the 31st in New York.
			name: "sent today compared in the message timezone",
			msg:  entities.ScheduledMessage{Time: "04:00", Timezone: "America/New_York", Type: entities.ScheduleDaily, Enabled: true, LastSent: sentToday},
			want: true,
		},
		{
			name: "unknown type",
			msg:  entities.ScheduledMessage{Time: "09:00", Type: "hourly", Enabled: true},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.msg
			require.Equal(t, tt.want, Due(&msg, now))
		})
	}
}

func TestAddScheduled_Validation(t *testing.T) {
	s, _, _, _ := newTestService(t)

	tests := []struct {
		name string
		msg  entities.ScheduledMessage
	}{
		{name: "no channel", msg: entities.ScheduledMessage{Content: "x", Time: "09:00", Type: entities.ScheduleDaily}},
		{name: "no content", msg: entities.ScheduledMessage{ChannelID: "c", Time: "09:00", Type: entities.ScheduleDaily}},
		{name: "bad time", msg: entities.ScheduledMessage{ChannelID: "c", Content: "x", Time: "9am", Type: entities.ScheduleDaily}},
		{name: "bad timezone", msg: entities.ScheduledMessage{ChannelID: "c", Content: "x", Time: "09:00", Timezone: "Mars/Olympus", Type: entities.ScheduleDaily}},
		{name: "bad type", msg: entities.ScheduledMessage{ChannelID: "c", Content: "x", Time: "09:00", Type: "hourly"}},
		{name: "bad weekday", msg: entities.ScheduledMessage{ChannelID: "c", Content: "x", Time: "09:00", Type: entities.ScheduleWeekly, DayOfWeek: 7}},
		{name: "bad month day", msg: entities.ScheduledMessage{ChannelID: "c", Content: "x", Time: "09:00", Type: entities.ScheduleMonthly}},
		{name: "bad date", msg: entities.ScheduledMessage{ChannelID: "c", Content: "x", Time: "09:00", Type: entities.ScheduleOnce, Date: "01/02/2024"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.msg
			_, err := s.AddScheduled(context.Background(), testGuild, &msg)
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
	require.Empty(t, s.Scheduled(testGuild))
}

func TestTick_ScheduledMessages(t *testing.T) {
	s, client, _, _ := newTestService(t)
	ctx := context.Background()

	daily, err := s.AddScheduled(ctx, testGuild, &entities.ScheduledMessage{
		ChannelID: testChannel,
		Content:   "Good morning",
		Time:      "09:00",
		Type:      entities.ScheduleDaily,
	})
	require.NoError(t, err)
	require.True(t, daily.Enabled)

	once, err := s.AddScheduled(ctx, testGuild, &entities.ScheduledMessage{
		ChannelID: testChannel,
		Title:     "Event",
		Content:   "Starting now",
		Time:      "09:00",
		Type:      entities.ScheduleOnce,
	})
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	s.Tick(ctx, now)
	require.Len(t, client.SentTo(testChannel), 2)

	// A second tick in the same minute does not resend.
	s.Tick(ctx, now.Add(30*time.Second))
	require.Len(t, client.SentTo(testChannel), 2)

	// The once message disabled itself, the daily one fires again the next day.
	s.Tick(ctx, now.Add(24*time.Hour))
	sent := client.SentTo(testChannel)
	require.Len(t, sent, 3)
	require.Equal(t, "Good morning", sent[2].Content)

	for _, m := range s.Scheduled(testGuild) {
		if m.ID == once.ID {
			require.False(t, m.Enabled)
		}
		if m.ID == daily.ID {
			require.True(t, m.Enabled)
			require.Equal(t, now.Add(24*time.Hour), m.LastSent.Time())
		}
	}

	require.NoError(t, s.RemoveScheduled(ctx, testGuild, daily.ID))
	require.ErrorIs(t, s.RemoveScheduled(ctx, testGuild, daily.ID), ErrNotFound)
	require.ErrorIs(t, s.RemoveScheduled(ctx, "other-guild", once.ID), ErrNotFound)
	require.Len(t, s.Scheduled(testGuild), 1)
}

func TestMatches(t *testing.T) {
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		feed entities.RSSFeed
		item *gofeed.Item
		want bool
	}{
		{
			name: "no filters",
			item: item("1", now, "Anything"),
			want: true,
		},
		{
			name: "include matches case insensitive",
			feed: entities.RSSFeed{IncludeKeywords: []string{"golang"}},
			item: item("1", now, "New GoLang release"),
			want: true,
		},
		{
			name: "include missing",
			feed: entities.RSSFeed{IncludeKeywords: []string{"golang"}},
			item: item("1", now, "Rust news"),
			want: false,
		},
		{
			name: "exclude wins",
			feed: entities.RSSFeed{IncludeKeywords: []string{"release"}, ExcludeKeywords: []string{"beta"}},
			item: item("1", now, "Beta release"),
			want: false,
		},
		{
			name: "too old",
			feed: entities.RSSFeed{MaxAgeHours: 12},
			item: item("1", now.Add(-13*time.Hour), "Old"),
			want: false,
		},
		{
			name: "within max age",
			feed: entities.RSSFeed{MaxAgeHours: 12},
			item: item("1", now.Add(-11*time.Hour), "Fresh"),
			want: true,
		},
		{
			name: "unknown age passes",
			feed: entities.RSSFeed{MaxAgeHours: 12},
			item: &gofeed.Item{GUID: "1", Title: "Undated"},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed := tt.feed
			require.Equal(t, tt.want, Matches(&feed, tt.item, now))
		})
	}
}

func TestTick_Feed(t *testing.T) {
	s, client, fetcher, _ := newTestService(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	feed, err := s.AddFeed(ctx, testGuild, &entities.RSSFeed{
		ChannelID:       testChannel,
		URL:             feedURL,
		ExcludeKeywords: []string{"sponsored"},
	})
	require.NoError(t, err)

	// Feeds list newest first.
	fetcher.set(
		item("b", now.Add(-time.Hour), "Second"),
		item("a", now.Add(-2*time.Hour), "First"),
	)

	// The first poll seeds without posting.
	s.Tick(ctx, now)
	require.Empty(t, client.SentTo(testChannel))
	require.Equal(t, []string{"a", "b"}, s.Feeds(testGuild)[0].SeenIDs)

	fetcher.set(
		item("e", now.Add(3*time.Minute), "Fifth"),
		item("d", now.Add(2*time.Minute), "Sponsored post"),
		item("c", now.Add(time.Minute), "Third"),
		item("b", now.Add(-time.Hour), "Second"),
		item("a", now.Add(-2*time.Hour), "First"),
	)
	s.Tick(ctx, now.Add(time.Minute))

	// New items are posted oldest first, filtered ones are only remembered.
	sent := client.SentTo(testChannel)
	require.Len(t, sent, 2)
	require.Equal(t, "Third", sent[0].Embeds[0].Title)
	require.Equal(t, "Fifth", sent[1].Embeds[0].Title)
	require.Equal(t, "https://example.com/c", sent[0].Embeds[0].URL)
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, s.Feeds(testGuild)[0].SeenIDs)

	// Nothing new, nothing posted.
	s.Tick(ctx, now.Add(2*time.Minute))
	require.Len(t, client.SentTo(testChannel), 2)

	require.NoError(t, s.RemoveFeed(ctx, testGuild, feed.ID))
	require.ErrorIs(t, s.RemoveFeed(ctx, testGuild, feed.ID), ErrNotFound)
	require.Empty(t, s.Feeds(testGuild))
}

func TestTick_FeedSeenCacheCapped(t *testing.T) {
	s, client, fetcher, _ := newTestService(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.AddFeed(ctx, testGuild, &entities.RSSFeed{ChannelID: testChannel, URL: feedURL})
	require.NoError(t, err)

	fetcher.set(item("seed", now, "Seed"))
	s.Tick(ctx, now)

	items := make([]*gofeed.Item, 0, 60)
	for i := 59; i >= 0; i-- {
		items = append(items, item(fmt.Sprintf("item-%02d", i), now.Add(time.Duration(i+1)*time.Second), "Item"))
	}
	fetcher.set(items...)
	s.Tick(ctx, now.Add(time.Minute))

	require.Len(t, client.SentTo(testChannel), 60)
	seen := s.Feeds(testGuild)[0].SeenIDs
	require.Len(t, seen, SeenCacheSize)
	require.Equal(t, "item-10", seen[0])
	require.Equal(t, "item-59", seen[SeenCacheSize-1])
}

func TestTick_FeedErrorKeepsState(t *testing.T) {
	s, client, fetcher, _ := newTestService(t)
	ctx := context.Background()

	_, err := s.AddFeed(ctx, testGuild, &entities.RSSFeed{ChannelID: testChannel, URL: feedURL})
	require.NoError(t, err)

	fetcher.err = errors.New("connection refused")
	s.Tick(ctx, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	require.Equal(t, 1, fetcher.calls)
	require.Empty(t, client.SentTo(testChannel))
	require.True(t, s.Feeds(testGuild)[0].LastChecked.IsZero())
}

func TestAddFeed_Validation(t *testing.T) {
	s, _, _, _ := newTestService(t)

	tests := []struct {
		name string
		feed entities.RSSFeed
	}{
		{name: "no channel", feed: entities.RSSFeed{URL: feedURL}},
		{name: "not a url", feed: entities.RSSFeed{ChannelID: "c", URL: "feed"}},
		{name: "wrong scheme", feed: entities.RSSFeed{ChannelID: "c", URL: "ftp://example.com/feed"}},
		{name: "negative age", feed: entities.RSSFeed{ChannelID: "c", URL: feedURL, MaxAgeHours: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed := tt.feed
			_, err := s.AddFeed(context.Background(), testGuild, &feed)
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestPersistence(t *testing.T) {
	s, client, fetcher, store := newTestService(t)
	ctx := context.Background()

	_, err := s.AddScheduled(ctx, testGuild, &entities.ScheduledMessage{
		ChannelID: testChannel, Content: "Hello", Time: "10:00", Type: entities.ScheduleDaily,
	})
	require.NoError(t, err)
	_, err = s.AddFeed(ctx, testGuild, &entities.RSSFeed{ChannelID: testChannel, URL: feedURL})
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx))

	reloaded := NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), store, client, fetcher)
	require.NoError(t, reloaded.Load(ctx))
	require.Len(t, reloaded.Scheduled(testGuild), 1)
	require.Len(t, reloaded.Feeds(testGuild), 1)
}
