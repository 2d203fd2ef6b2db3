package dashboard

import (
	"net/http"

	"github.com/Jacobbrewer1/hound/pkg/entities"
	"github.com/Jacobbrewer1/hound/pkg/request"
	"github.com/gorilla/mux"
)

func (s *Server) listButtonRoles(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}
	request.Encode(s.l, w, http.StatusOK, s.svc.Roles.Setups(guild))
}

func (s *Server) createButtonRoles(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}

	setup := new(entities.ButtonRoleSetup)
	if err := request.Decode(r, setup); err != nil {
		request.Encode(s.l, w, http.StatusBadRequest, request.NewMessageError("Invalid button role setup", err))
		return
	}
	setup.GuildID = guild

	created, err := s.svc.Roles.CreateSetup(r.Context(), *setup)
	if err != nil {
		s.fail(w, err)
		return
	}
	request.Encode(s.l, w, http.StatusCreated, created)
}

func (s *Server) updateButtonRoles(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}

	setup := new(entities.ButtonRoleSetup)
	if err := request.Decode(r, setup); err != nil {
		request.Encode(s.l, w, http.StatusBadRequest, request.NewMessageError("Invalid button role setup", err))
		return
	}

	updated, err := s.svc.Roles.UpdateSetup(r.Context(), guild, mux.Vars(r)["id"], *setup)
	if err != nil {
		s.fail(w, err)
		return
	}
	request.Encode(s.l, w, http.StatusOK, updated)
}

func (s *Server) deleteButtonRoles(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}
	if err := s.svc.Roles.DeleteSetup(r.Context(), guild, mux.Vars(r)["id"]); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deployButtonRoles(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}

	req := new(deployRequest)
	if err := request.Decode(r, req); err != nil || req.ChannelID == "" {
		request.Error(s.l, w, http.StatusBadRequest, "channelId is required")
		return
	}

	setup, err := s.svc.Roles.Deploy(r.Context(), guild, mux.Vars(r)["id"], req.ChannelID)
	if err != nil {
		s.fail(w, err)
		return
	}
	request.Encode(s.l, w, http.StatusOK, setup)
}

func (s *Server) listReactionRoles(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}
	request.Encode(s.l, w, http.StatusOK, s.svc.Roles.Bindings(guild))
}

func (s *Server) createReactionRole(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}

	b := new(entities.ReactionRoleBinding)
	if err := request.Decode(r, b); err != nil {
		request.Encode(s.l, w, http.StatusBadRequest, request.NewMessageError("Invalid reaction role", err))
		return
	}
	b.GuildID = guild

	created, err := s.svc.Roles.Bind(r.Context(), *b)
	if err != nil {
		s.fail(w, err)
		return
	}
	request.Encode(s.l, w, http.StatusCreated, created)
}

func (s *Server) deleteReactionRole(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}

	q := r.URL.Query()
	messageID, emoji := q.Get("messageId"), q.Get("emoji")
	if messageID == "" || emoji == "" {
		request.Error(s.l, w, http.StatusBadRequest, "messageId and emoji are required")
		return
	}
	if err := s.svc.Roles.Unbind(r.Context(), guild, messageID, emoji); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getRoleLogConfig(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}
	request.Encode(s.l, w, http.StatusOK, s.svc.Roles.LogConfig(guild))
}

func (s *Server) saveRoleLogConfig(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}

	cfg := new(entities.RoleLogConfig)
	if err := request.Decode(r, cfg); err != nil {
		request.Encode(s.l, w, http.StatusBadRequest, request.NewMessageError("Invalid role log configuration", err))
		return
	}
	if err := s.svc.Roles.SaveLogConfig(r.Context(), guild, *cfg); err != nil {
		s.fail(w, err)
		return
	}
	request.Encode(s.l, w, http.StatusOK, s.svc.Roles.LogConfig(guild))
}

func (s *Server) listRules(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}
	request.Encode(s.l, w, http.StatusOK, s.svc.Roles.Rules(guild))
}

func (s *Server) createRule(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}

	rule := new(entities.AutomationRule)
	if err := request.Decode(r, rule); err != nil {
		request.Encode(s.l, w, http.StatusBadRequest, request.NewMessageError("Invalid automation rule", err))
		return
	}
	rule.GuildID = guild

	created, err := s.svc.Roles.AddRule(r.Context(), *rule)
	if err != nil {
		s.fail(w, err)
		return
	}
	request.Encode(s.l, w, http.StatusCreated, created)
}

func (s *Server) deleteRule(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}
	if err := s.svc.Roles.RemoveRule(r.Context(), guild, mux.Vars(r)["id"]); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
