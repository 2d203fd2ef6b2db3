package roles

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/Jacobbrewer1/hound/pkg/discord"
	"github.com/Jacobbrewer1/hound/pkg/entities"
	"github.com/Jacobbrewer1/hound/pkg/logging"
)

var customEmojiRegex = regexp.MustCompile(`^<a?:(\w+):(\d+)>$`)

// NormalizeEmoji converts an emoji to the "name:id" form Discord reports for custom emojis.
// Unicode emojis are returned unchanged.
func NormalizeEmoji(emoji string) string {
	emoji = strings.TrimSpace(emoji)
	if m := customEmojiRegex.FindStringSubmatch(emoji); m != nil {
		return m[1] + ":" + m[2]
	}
	return emoji
}

// Bind binds a reaction on a message to a role and adds the reaction to the message.
func (s *Service) Bind(ctx context.Context, b entities.ReactionRoleBinding) (*entities.ReactionRoleBinding, error) {
	b.Emoji = NormalizeEmoji(b.Emoji)
	if b.GuildID == "" || b.MessageID == "" || b.Emoji == "" || b.RoleID == "" {
		return nil, fmt.Errorf("%w: guild, message, emoji and role are required", ErrInvalid)
	}

	s.mut.Lock()
	if existing, ok := s.reactions[b.Key()]; ok && existing.RoleID == b.RoleID {
		// Rebinding the same role keeps the usage count.
		b.UsageCount = existing.UsageCount
	} else {
		b.UsageCount = 0
	}
	s.reactions[b.Key()] = &b
	s.mut.Unlock()

	if err := s.persist(ctx); err != nil {
		return nil, err
	}

	if b.ChannelID != "" {
		if err := s.client.ReactionAdd(b.ChannelID, b.MessageID, b.Emoji); err != nil {
			s.l.Warn("Error adding reaction role reaction", slog.String(logging.KeyError, err.Error()))
		}
	}

	out := b
	return &out, nil
}

// Unbind removes a reaction role binding.
func (s *Service) Unbind(ctx context.Context, guildID, messageID, emoji string) error {
	key := entities.ReactionRoleKey(messageID, NormalizeEmoji(emoji))

	s.mut.Lock()
	b, ok := s.reactions[key]
	if !ok || b.GuildID != guildID {
		s.mut.Unlock()
		return ErrBindingNotFound
	}
	delete(s.reactions, key)
	s.mut.Unlock()

	return s.persist(ctx)
}

// Bindings lists the guild's reaction role bindings.
func (s *Service) Bindings(guildID string) []entities.ReactionRoleBinding {
	s.mut.RLock()
	defer s.mut.RUnlock()

	out := make([]entities.ReactionRoleBinding, 0)
	for _, b := range s.reactions {
		if b.GuildID == guildID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func (s *Service) binding(messageID, emoji string) (*entities.ReactionRoleBinding, bool) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	b, ok := s.reactions[entities.ReactionRoleKey(messageID, NormalizeEmoji(emoji))]
	return b, ok
}

// HandleReactionAdd grants the bound role if the member does not have it yet. Reactions
// without a binding are ignored. Failures are logged, the member sees nothing.
func (s *Service) HandleReactionAdd(ctx context.Context, guildID, messageID, userID, emoji string) {
	s.handleReaction(ctx, guildID, messageID, userID, emoji, true)
}

// HandleReactionRemove revokes the bound role if the member has it.
func (s *Service) HandleReactionRemove(ctx context.Context, guildID, messageID, userID, emoji string) {
	s.handleReaction(ctx, guildID, messageID, userID, emoji, false)
}

func (s *Service) handleReaction(ctx context.Context, guildID, messageID, userID, emoji string, add bool) {
	b, ok := s.binding(messageID, emoji)
	if !ok || b.GuildID != guildID {
		return
	}

	l := s.l.With(
		slog.String(logging.KeyGuild, guildID),
		slog.String(logging.KeyUser, userID),
		slog.String("role_id", b.RoleID),
	)

	unlock := s.members.Lock(guildID + ":" + userID)
	defer unlock()

	member, err := s.client.Member(guildID, userID)
	if err != nil {
		l.Error("Error getting member for reaction role", slog.String(logging.KeyError, err.Error()))
		return
	}

	has := discord.HasRole(member, b.RoleID)

	switch {
	case add && !has:
		if err := s.client.RoleAdd(guildID, userID, b.RoleID); err != nil {
			l.Error("Error adding reaction role", slog.String(logging.KeyError, err.Error()))
			return
		}

		s.mut.Lock()
		if current, ok := s.reactions[b.Key()]; ok {
			next := *current
			next.UsageCount++
			s.reactions[b.Key()] = &next
		}
		s.mut.Unlock()
		s.persistAndLog(ctx)

		s.audit(guildID, userID, b.RoleID, SourceReaction, true)
	case !add && has:
		if err := s.client.RoleRemove(guildID, userID, b.RoleID); err != nil {
			l.Error("Error removing reaction role", slog.String(logging.KeyError, err.Error()))
			return
		}
		s.audit(guildID, userID, b.RoleID, SourceReaction, false)
	}
}
