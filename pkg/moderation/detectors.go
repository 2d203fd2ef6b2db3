package moderation

import (
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/Jacobbrewer1/hound/pkg/entities"
)

// SpamHistorySize is the number of recent messages per user the spam detector looks at.
const SpamHistorySize = 10

// Detector names.
const (
	DetectorSpam      = "spam"
	DetectorProfanity = "profanity"
	DetectorLink      = "link"
	DetectorCaps      = "caps"
)

// Warning reasons recorded for automatic detections.
const (
	ReasonSpam      = "Spam detected"
	ReasonProfanity = "Inappropriate language"
	ReasonLink      = "Unauthorized link"
	ReasonCaps      = "Excessive caps"
)

// Violation is the first detector that matched a message.
type Violation struct {
	Detector string `json:"detector"`
	Reason   string `json:"reason"`
}

var linkRegex = regexp.MustCompile(`(?i)\b((?:https?://|www\.)[^\s<>]+|discord\.gg/[^\s<>]+)`)

// DetectSpam reports whether at least max of the recent message times fall inside the
// window ending at now. Only the newest SpamHistorySize times are considered.
func DetectSpam(recent []time.Time, now time.Time, cfg entities.SpamConfig) bool {
	if !cfg.Enabled || cfg.MaxMessages <= 0 || cfg.WindowSeconds <= 0 {
		return false
	}
	if len(recent) > SpamHistorySize {
		recent = recent[len(recent)-SpamHistorySize:]
	}

	window := time.Duration(cfg.WindowSeconds) * time.Second
	count := 0
	for _, t := range recent {
		if now.Sub(t) <= window {
			count++
		}
	}
	return count >= cfg.MaxMessages
}

// WordFilter matches listed words as whole words, ignoring case. The list is compiled once.
type WordFilter struct {
	re *regexp.Regexp
}

// NewWordFilter compiles the profanity word list. A disabled config or an empty list matches nothing.
func NewWordFilter(cfg entities.ProfanityConfig) *WordFilter {
	if !cfg.Enabled {
		return new(WordFilter)
	}

	quoted := make([]string, 0, len(cfg.Words))
	for _, w := range cfg.Words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(w))
	}
	if len(quoted) == 0 {
		return new(WordFilter)
	}
	return &WordFilter{re: regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)}
}

// Match reports whether the content holds a listed word.
func (f *WordFilter) Match(content string) bool {
	return f != nil && f.re != nil && f.re.MatchString(content)
}

// DetectProfanity reports whether the content holds a listed word as a whole word, ignoring case.
func DetectProfanity(content string, cfg entities.ProfanityConfig) bool {
	return NewWordFilter(cfg).Match(content)
}

// DetectLink reports whether the content links to a domain outside the allow list.
// Subdomains of an allowed domain are allowed.
func DetectLink(content string, cfg entities.LinkConfig) bool {
	if !cfg.Enabled {
		return false
	}
	for _, raw := range linkRegex.FindAllString(content, -1) {
		if !domainAllowed(linkHost(raw), cfg.AllowedDomains) {
			return true
		}
	}
	return false
}

func linkHost(raw string) string {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func domainAllowed(host string, allowed []string) bool {
	if host == "" {
		return false
	}
	for _, d := range allowed {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "www.")
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// DetectCaps reports whether a long enough message is mostly upper case letters.
func DetectCaps(content string, cfg entities.CapsConfig) bool {
	if !cfg.Enabled || len([]rune(content)) < cfg.MinLength {
		return false
	}

	letters, upper := 0, 0
	for _, r := range content {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if letters == 0 {
		return false
	}
	return upper*100 >= cfg.Percent*letters
}

// Evaluate runs the detectors in order and returns the first match. The word filter must be
// compiled from cfg.Profanity.
func Evaluate(cfg *entities.AutoModConfig, words *WordFilter, content string, recent []time.Time, now time.Time) *Violation {
	switch {
	case DetectSpam(recent, now, cfg.Spam):
		return &Violation{Detector: DetectorSpam, Reason: ReasonSpam}
	case words.Match(content):
		return &Violation{Detector: DetectorProfanity, Reason: ReasonProfanity}
	case DetectLink(content, cfg.Links):
		return &Violation{Detector: DetectorLink, Reason: ReasonLink}
	case DetectCaps(content, cfg.Caps):
		return &Violation{Detector: DetectorCaps, Reason: ReasonCaps}
	}
	return nil
}
