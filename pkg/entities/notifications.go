package entities

import "github.com/Jacobbrewer1/hound/pkg/custom"

// ScheduleType is how often a scheduled message repeats.
type ScheduleType string

const (
	ScheduleOnce    ScheduleType = "once"
	ScheduleDaily   ScheduleType = "daily"
	ScheduleWeekly  ScheduleType = "weekly"
	ScheduleMonthly ScheduleType = "monthly"
)

// ScheduledMessage is a message posted at a configured time of day.
type ScheduledMessage struct {
	ID        string `json:"id" bson:"id"`
	GuildID   string `json:"guildId" bson:"guild_id"`
	ChannelID string `json:"channelId" bson:"channel_id"`
	Title     string `json:"title,omitempty" bson:"title,omitempty"`
	Content   string `json:"content" bson:"content"`

	// Time is the time of day in HH:MM, evaluated in Timezone.
	Time     string       `json:"time" bson:"time"`
	Timezone string       `json:"timezone" bson:"timezone"`
	Type     ScheduleType `json:"type" bson:"type"`

	// Date is the YYYY-MM-DD day a once message is sent on. Empty means the next matching time.
	Date       string `json:"date,omitempty" bson:"date,omitempty"`
	DayOfWeek  int    `json:"dayOfWeek,omitempty" bson:"day_of_week,omitempty"`
	DayOfMonth int    `json:"dayOfMonth,omitempty" bson:"day_of_month,omitempty"`

	Enabled  bool            `json:"enabled" bson:"enabled"`
	LastSent custom.Datetime `json:"lastSent,omitempty" bson:"last_sent,omitempty"`
}

// RSSFeed is a feed polled for new items.
type RSSFeed struct {
	ID              string          `json:"id" bson:"id"`
	GuildID         string          `json:"guildId" bson:"guild_id"`
	ChannelID       string          `json:"channelId" bson:"channel_id"`
	URL             string          `json:"url" bson:"url"`
	IncludeKeywords []string        `json:"includeKeywords" bson:"include_keywords"`
	ExcludeKeywords []string        `json:"excludeKeywords" bson:"exclude_keywords"`
	MaxAgeHours     int             `json:"maxAgeHours" bson:"max_age_hours"`
	SeenIDs         []string        `json:"seenIds" bson:"seen_ids"`
	LastChecked     custom.Datetime `json:"lastChecked,omitempty" bson:"last_checked,omitempty"`
}
