package commands

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Jacobbrewer1/hound/pkg/custom"
	"github.com/Jacobbrewer1/hound/pkg/entities"
)

// MaxCustomPerGuild caps the custom commands of a guild.
const MaxCustomPerGuild = 50

var customNameRegex = regexp.MustCompile(`^[a-z0-9_-]{1,32}$`)

// AddCustom creates or replaces a guild command.
func (r *Registry) AddCustom(_ context.Context, guildID, name, response, createdBy string) (*entities.CustomCommand, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if !customNameRegex.MatchString(name) {
		return nil, fmt.Errorf("%w: names are 1 to 32 lowercase letters, digits, dashes or underscores", ErrInvalid)
	}
	if strings.TrimSpace(response) == "" || len(response) > 2000 {
		return nil, fmt.Errorf("%w: response must be 1 to 2000 characters", ErrInvalid)
	}

	r.mut.Lock()
	defer r.mut.Unlock()

	if _, ok := r.commands[string(KindBuiltin)+":"+name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	if r.customs[guildID] == nil {
		r.customs[guildID] = make(map[string]*entities.CustomCommand)
	}
	existing, replacing := r.customs[guildID][name]
	if !replacing && len(r.customs[guildID]) >= MaxCustomPerGuild {
		return nil, fmt.Errorf("%w: a server can have at most %d custom commands", ErrInvalid, MaxCustomPerGuild)
	}

	c := &entities.CustomCommand{
		Name:      name,
		GuildID:   guildID,
		Response:  response,
		CreatedBy: createdBy,
		CreatedAt: custom.Datetime(r.now().UTC()),
	}
	if replacing {
		c.Uses = existing.Uses
	}
	r.customs[guildID][name] = c
	r.saver.Trigger()

	out := *c
	return &out, nil
}

// RemoveCustom deletes a guild command.
func (r *Registry) RemoveCustom(_ context.Context, guildID, name string) error {
	name = strings.ToLower(strings.TrimSpace(name))

	r.mut.Lock()
	defer r.mut.Unlock()

	if _, ok := r.customs[guildID][name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	delete(r.customs[guildID], name)
	r.saver.Trigger()
	return nil
}

// Customs returns the guild's commands ordered by name.
func (r *Registry) Customs(guildID string) []entities.CustomCommand {
	r.mut.RLock()
	defer r.mut.RUnlock()

	out := make([]entities.CustomCommand, 0, len(r.customs[guildID]))
	for _, c := range r.customs[guildID] {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
