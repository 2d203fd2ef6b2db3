package dashboard

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Jacobbrewer1/hound/pkg/entities"
	"github.com/Jacobbrewer1/hound/pkg/moderation"
	"github.com/Jacobbrewer1/hound/pkg/request"
	"github.com/gorilla/mux"
)

// defaultLogLimit is the number of moderation logs returned when no limit is given.
const defaultLogLimit = 100

func (s *Server) listWarnings(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}
	request.Encode(s.l, w, http.StatusOK, s.svc.Moderation.Warnings(guild, r.URL.Query().Get("userId")))
}

type warnRequest struct {
	UserID string `json:"userId"`
	Reason string `json:"reason"`
}

type warnResponse struct {
	Warning    *entities.Warning    `json:"warning"`
	Punishment *entities.Punishment `json:"punishment,omitempty"`
}

func (s *Server) warn(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}

	req := new(warnRequest)
	if err := request.Decode(r, req); err != nil {
		request.Encode(s.l, w, http.StatusBadRequest, request.NewMessageError("Invalid warning", err))
		return
	}

	warning, punishment, err := s.svc.Moderation.Warn(r.Context(), guild, req.UserID, DashboardModeratorID, req.Reason)
	if err != nil {
		s.fail(w, err)
		return
	}
	request.Encode(s.l, w, http.StatusCreated, &warnResponse{
		Warning:    warning,
		Punishment: punishment,
	})
}

func (s *Server) removeWarning(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}
	if err := s.svc.Moderation.RemoveWarning(r.Context(), guild, mux.Vars(r)["id"], DashboardModeratorID); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listPunishments(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}
	request.Encode(s.l, w, http.StatusOK, s.svc.Moderation.Punishments(guild, r.URL.Query().Get("userId")))
}

type punishRequest struct {
	UserID string                  `json:"userId"`
	Type   entities.PunishmentType `json:"type"`
	Reason string                  `json:"reason"`

	// Duration is a Go duration such as "1h30m".
	Duration string `json:"duration"`
}

func (s *Server) punish(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}

	req := new(punishRequest)
	if err := request.Decode(r, req); err != nil {
		request.Encode(s.l, w, http.StatusBadRequest, request.NewMessageError("Invalid punishment", err))
		return
	}

	var d time.Duration
	if req.Duration != "" {
		var err error
		d, err = time.ParseDuration(req.Duration)
		if err != nil {
			request.Encode(s.l, w, http.StatusBadRequest, request.NewMessageError("Invalid duration", err))
			return
		}
	}

	p, err := s.svc.Moderation.Punish(r.Context(), moderation.PunishRequest{
		GuildID:     guild,
		UserID:      req.UserID,
		ModeratorID: DashboardModeratorID,
		Type:        req.Type,
		Reason:      req.Reason,
		Duration:    d,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	request.Encode(s.l, w, http.StatusCreated, p)
}

func (s *Server) removePunishment(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}
	if err := s.svc.Moderation.RemovePunishment(r.Context(), guild, mux.Vars(r)["id"], DashboardModeratorID); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getAutoMod(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}
	request.Encode(s.l, w, http.StatusOK, s.svc.Moderation.Config(guild))
}

func (s *Server) saveAutoMod(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}

	cfg := new(entities.AutoModConfig)
	if err := request.Decode(r, cfg); err != nil {
		request.Encode(s.l, w, http.StatusBadRequest, request.NewMessageError("Invalid auto moderation configuration", err))
		return
	}
	if err := s.svc.Moderation.SaveConfig(r.Context(), guild, cfg); err != nil {
		s.fail(w, err)
		return
	}
	request.Encode(s.l, w, http.StatusOK, s.svc.Moderation.Config(guild))
}

func (s *Server) moderationLogs(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}

	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			request.Error(s.l, w, http.StatusBadRequest, "limit must be a positive number")
			return
		}
		limit = n
	}
	request.Encode(s.l, w, http.StatusOK, s.svc.Moderation.Logs(guild, limit))
}
