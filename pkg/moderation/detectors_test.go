package moderation

import (
	"testing"
	"time"

	"github.com/Jacobbrewer1/hound/pkg/entities"
	"github.com/stretchr/testify/require"
)

func TestDetectSpam(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cfg := entities.SpamConfig{Enabled: true, MaxMessages: 5, WindowSeconds: 5}

	times := func(ago ...time.Duration) []time.Time {
		out := make([]time.Time, 0, len(ago))
		for _, a := range ago {
			out = append(out, now.Add(-a))
		}
		return out
	}

	tests := []struct {
		name   string
		recent []time.Time
		cfg    entities.SpamConfig
		want   bool
	}{
		{"below max", times(4*time.Second, 3*time.Second, 2*time.Second, 0), cfg, false},
		{"at max", times(4*time.Second, 3*time.Second, 2*time.Second, time.Second, 0), cfg, true},
		{"outside window", times(20*time.Second, 10*time.Second, 6*time.Second, time.Second, 0), cfg, false},
		{"disabled", times(4*time.Second, 3*time.Second, 2*time.Second, time.Second, 0), entities.SpamConfig{MaxMessages: 5, WindowSeconds: 5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, DetectSpam(tt.recent, now, tt.cfg))
		})
	}
}

func TestDetectSpam_OnlyRecentHistory(t *testing.T) {
	now := time.Now()
	recent := make([]time.Time, 0, 15)
	for i := 0; i < 15; i++ {
		recent = append(recent, now)
	}
	// A threshold above the history size can never be met.
	require.False(t, DetectSpam(recent, now, entities.SpamConfig{Enabled: true, MaxMessages: 11, WindowSeconds: 5}))
	require.True(t, DetectSpam(recent, now, entities.SpamConfig{Enabled: true, MaxMessages: 10, WindowSeconds: 5}))
}

func TestDetectProfanity(t *testing.T) {
	cfg := entities.ProfanityConfig{Enabled: true, Words: []string{"darn", "heck"}}

	tests := []struct {
		content string
		want    bool
	}{
		{"well darn it", true},
		{"DARN!", true},
		{"what the Heck", true},
		{"darned", false},
		{"check this", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			require.Equal(t, tt.want, DetectProfanity(tt.content, cfg))
		})
	}

	require.False(t, DetectProfanity("darn", entities.ProfanityConfig{Words: []string{"darn"}}))
}

func TestWordFilter(t *testing.T) {
	tests := []struct {
		name    string
		cfg     entities.ProfanityConfig
		content string
		want    bool
	}{
		{"second word", entities.ProfanityConfig{Enabled: true, Words: []string{"darn", "heck"}}, "oh heck", true},
		{"prefix word", entities.ProfanityConfig{Enabled: true, Words: []string{"he", "heck"}}, "heck", true},
		{"meta characters", entities.ProfanityConfig{Enabled: true, Words: []string{"a.b"}}, "axb", false},
		{"blank words", entities.ProfanityConfig{Enabled: true, Words: []string{" ", ""}}, "anything", false},
		{"disabled", entities.ProfanityConfig{Words: []string{"darn"}}, "darn", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, NewWordFilter(tt.cfg).Match(tt.content))
		})
	}

	var nilFilter *WordFilter
	require.False(t, nilFilter.Match("darn"))
}

func TestDetectLink(t *testing.T) {
	cfg := entities.LinkConfig{Enabled: true, AllowedDomains: []string{"example.com", "youtube.com"}}

	tests := []struct {
		content string
		want    bool
	}{
		{"see https://example.com/page", false},
		{"see https://docs.example.com/page", false},
		{"watch www.youtube.com/watch?v=1", false},
		{"free nitro https://evil.test/claim", true},
		{"join discord.gg/abc", true},
		{"https://example.com.evil.test", true},
		{"no links here", false},
	}
	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			require.Equal(t, tt.want, DetectLink(tt.content, cfg))
		})
	}
}

func TestDetectCaps(t *testing.T) {
	cfg := entities.CapsConfig{Enabled: true, MinLength: 10, Percent: 70}

	tests := []struct {
		content string
		want    bool
	}{
		{"THIS IS VERY LOUD", true},
		{"SHORT", false},
		{"This Is Not Very Loud", false},
		{"1234567890!!", false},
		{"MOSTLY CAPS here", true},
	}
	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			require.Equal(t, tt.want, DetectCaps(tt.content, cfg))
		})
	}
}

func TestEvaluate_Order(t *testing.T) {
	now := time.Now()
	cfg := entities.DefaultAutoModConfig()
	cfg.Enabled = true
	cfg.Profanity = entities.ProfanityConfig{Enabled: true, Words: []string{"darn"}}
	cfg.Links = entities.LinkConfig{Enabled: true}
	cfg.Caps = entities.CapsConfig{Enabled: true, MinLength: 5, Percent: 70}

	burst := []time.Time{now, now, now, now, now}
	words := NewWordFilter(cfg.Profanity)

	v := Evaluate(cfg, words, "DARN HTTPS://EVIL.TEST", burst, now)
	require.Equal(t, DetectorSpam, v.Detector)
	require.Equal(t, ReasonSpam, v.Reason)

	v = Evaluate(cfg, words, "DARN HTTPS://EVIL.TEST", nil, now)
	require.Equal(t, DetectorProfanity, v.Detector)

	v = Evaluate(cfg, words, "LOOK HTTPS://EVIL.TEST", nil, now)
	require.Equal(t, DetectorLink, v.Detector)

	v = Evaluate(cfg, words, "LOOK AT THIS", nil, now)
	require.Equal(t, DetectorCaps, v.Detector)

	require.Nil(t, Evaluate(cfg, words, "hello there", nil, now))
}
