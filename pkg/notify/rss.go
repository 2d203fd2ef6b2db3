package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/Jacobbrewer1/hound/pkg/custom"
	"github.com/Jacobbrewer1/hound/pkg/entities"
	"github.com/Jacobbrewer1/hound/pkg/logging"
	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
)

const (
	// SeenCacheSize is the number of item IDs remembered per feed.
	SeenCacheSize = 50

	// fetchTimeout bounds a single feed download.
	fetchTimeout = 30 * time.Second

	// maxSummary is the longest item summary posted.
	maxSummary = 300
)

// Fetcher downloads and parses a feed.
type Fetcher interface {
	Fetch(ctx context.Context, feedURL string) (*gofeed.Feed, error)
}

type feedFetcher struct {
	parser *gofeed.Parser
}

// NewFeedFetcher creates a Fetcher backed by gofeed.
func NewFeedFetcher() Fetcher {
	p := gofeed.NewParser()
	p.UserAgent = "hound"
	return &feedFetcher{parser: p}
}

func (f *feedFetcher) Fetch(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("error fetching feed: %w", err)
	}
	return feed, nil
}

// itemID identifies an item by GUID, falling back to the link and then the title.
func itemID(item *gofeed.Item) string {
	switch {
	case item.GUID != "":
		return item.GUID
	case item.Link != "":
		return item.Link
	default:
		return item.Title
	}
}

func published(item *gofeed.Item) *time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed
	}
	return item.UpdatedParsed
}

// Matches reports whether an item passes the feed's keyword and age filters.
func Matches(feed *entities.RSSFeed, item *gofeed.Item, now time.Time) bool {
	text := strings.ToLower(item.Title + " " + item.Description)

	if len(feed.IncludeKeywords) > 0 {
		found := false
		for _, k := range feed.IncludeKeywords {
			if k != "" && strings.Contains(text, strings.ToLower(k)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	for _, k := range feed.ExcludeKeywords {
		if k != "" && strings.Contains(text, strings.ToLower(k)) {
			return false
		}
	}

	if feed.MaxAgeHours > 0 {
		if p := published(item); p != nil && now.Sub(*p) > time.Duration(feed.MaxAgeHours)*time.Hour {
			return false
		}
	}
	return true
}

// oldestFirst orders items by publish time. Items without one keep their feed position,
// which is newest first by convention, so the slice is reversed before sorting.
func oldestFirst(items []*gofeed.Item) []*gofeed.Item {
	out := make([]*gofeed.Item, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		out = append(out, items[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := published(out[i]), published(out[j])
		if a == nil || b == nil {
			return false
		}
		return a.Before(*b)
	})
	return out
}

// pollFeed posts the feed's unseen items. The first poll only seeds the cache.
func (s *Service) pollFeed(ctx context.Context, feed *entities.RSSFeed, now time.Time) {
	l := s.l.With(
		slog.String(logging.KeyGuild, feed.GuildID),
		slog.String("feed_url", feed.URL),
	)

	parsed, err := s.fetcher.Fetch(ctx, feed.URL)
	if err != nil {
		feedErrors.Inc()
		l.Error("Error polling feed", slog.String(logging.KeyError, err.Error()))
		return
	}

	items := oldestFirst(parsed.Items)
	seen := make(map[string]bool, len(feed.SeenIDs))
	for _, id := range feed.SeenIDs {
		seen[id] = true
	}
	seeding := feed.LastChecked.IsZero()

	ids := append([]string(nil), feed.SeenIDs...)
	posted := 0
	for _, item := range items {
		id := itemID(item)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)

		if seeding || !Matches(feed, item, now) {
			continue
		}
		if err := s.postItem(feed, parsed.Title, item); err != nil {
			l.Error("Error posting feed item", slog.String(logging.KeyError, err.Error()))
			continue
		}
		posted++
	}
	if len(ids) > SeenCacheSize {
		ids = ids[len(ids)-SeenCacheSize:]
	}

	s.mut.Lock()
	if current, ok := s.feeds[feed.ID]; ok {
		next := *current
		next.SeenIDs = ids
		next.LastChecked = custom.Datetime(now.UTC())
		s.feeds[feed.ID] = &next
	}
	s.mut.Unlock()
	s.saver.Trigger()

	if posted > 0 {
		l.Info("Feed items posted", slog.Int("count", posted))
	}
}

func (s *Service) postItem(feed *entities.RSSFeed, feedTitle string, item *gofeed.Item) error {
	embed := &discordgo.MessageEmbed{
		Title:       truncate(item.Title, 256),
		URL:         item.Link,
		Description: truncate(item.Description, maxSummary),
		Color:       0xf26522,
	}
	if feedTitle != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: truncate(feedTitle, 256)}
	}
	if p := published(item); p != nil {
		embed.Timestamp = p.UTC().Format(time.RFC3339)
	}

	if _, err := s.client.MessageSend(feed.ChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
	}); err != nil {
		return fmt.Errorf("error sending feed item: %w", err)
	}
	notificationsSent.WithLabelValues("rss").Inc()
	return nil
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-3]) + "..."
}

func validateFeed(f *entities.RSSFeed) error {
	if f.ChannelID == "" {
		return fmt.Errorf("%w: channel is required", ErrInvalid)
	}
	u, err := url.Parse(f.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: feed url must be http or https", ErrInvalid)
	}
	if f.MaxAgeHours < 0 {
		return fmt.Errorf("%w: max age cannot be negative", ErrInvalid)
	}
	return nil
}

// AddFeed validates and stores a feed. Its first poll seeds the seen cache.
func (s *Service) AddFeed(_ context.Context, guildID string, f *entities.RSSFeed) (*entities.RSSFeed, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: missing feed", ErrInvalid)
	}
	if err := validateFeed(f); err != nil {
		return nil, err
	}

	next := *f
	next.ID = uuid.NewString()
	next.GuildID = guildID
	next.IncludeKeywords = append([]string{}, f.IncludeKeywords...)
	next.ExcludeKeywords = append([]string{}, f.ExcludeKeywords...)
	next.SeenIDs = []string{}
	next.LastChecked = custom.Datetime{}

	s.mut.Lock()
	s.feeds[next.ID] = &next
	s.mut.Unlock()
	s.saver.Trigger()

	out := next
	return &out, nil
}

// RemoveFeed deletes a feed.
func (s *Service) RemoveFeed(_ context.Context, guildID, id string) error {
	s.mut.Lock()
	defer s.mut.Unlock()

	f, ok := s.feeds[id]
	if !ok || f.GuildID != guildID {
		return ErrNotFound
	}
	delete(s.feeds, id)
	s.saver.Trigger()
	return nil
}

// Feeds returns the guild's feeds ordered by URL.
func (s *Service) Feeds(guildID string) []entities.RSSFeed {
	s.mut.RLock()
	defer s.mut.RUnlock()

	out := make([]entities.RSSFeed, 0)
	for _, f := range s.feeds {
		if f.GuildID == guildID {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].URL != out[j].URL {
			return out[i].URL < out[j].URL
		}
		return out[i].ID < out[j].ID
	})
	return out
}
