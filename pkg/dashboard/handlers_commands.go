package dashboard

import (
	"net/http"
	"time"

	"github.com/Jacobbrewer1/hound/pkg/commands"
	"github.com/Jacobbrewer1/hound/pkg/entities"
	"github.com/Jacobbrewer1/hound/pkg/request"
	"github.com/gorilla/mux"
)

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	req := new(loginRequest)
	if err := request.Decode(r, req); err != nil {
		request.Encode(s.l, w, http.StatusBadRequest, request.NewMessageError("Invalid login request", err))
		return
	}

	token, expires, err := s.auth.Login(req.Password)
	if err != nil {
		request.Error(s.l, w, http.StatusUnauthorized, ErrBadCredentials.Error())
		return
	}
	request.Encode(s.l, w, http.StatusOK, &loginResponse{
		Token:     token,
		ExpiresAt: expires.UTC().Format(time.RFC3339),
	})
}

// commandSummary is a registered command as listed on the dashboard.
type commandSummary struct {
	Name        string        `json:"name"`
	Kind        commands.Kind `json:"kind"`
	Description string        `json:"description"`
	Usage       string        `json:"usage,omitempty"`
}

type commandsResponse struct {
	Builtin []commandSummary         `json:"builtin"`
	Slash   []commandSummary         `json:"slash"`
	Custom  []entities.CustomCommand `json:"custom"`
}

func summaries(list []commands.Descriptor) []commandSummary {
	out := make([]commandSummary, 0, len(list))
	for _, d := range list {
		out = append(out, commandSummary{
			Name:        d.Name,
			Kind:        d.Kind,
			Description: d.Description,
			Usage:       d.Usage,
		})
	}
	return out
}

func (s *Server) listCommands(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}
	request.Encode(s.l, w, http.StatusOK, &commandsResponse{
		Builtin: summaries(s.svc.Commands.Descriptors(commands.KindBuiltin)),
		Slash:   summaries(s.svc.Commands.Descriptors(commands.KindSlash)),
		Custom:  s.svc.Commands.Customs(guild),
	})
}

type commandRequest struct {
	Name     string `json:"name"`
	Response string `json:"response"`
}

func (s *Server) createCommand(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}

	req := new(commandRequest)
	if err := request.Decode(r, req); err != nil {
		request.Encode(s.l, w, http.StatusBadRequest, request.NewMessageError("Invalid command", err))
		return
	}

	created, err := s.svc.Commands.AddCustom(r.Context(), guild, req.Name, req.Response, DashboardModeratorID)
	if err != nil {
		s.fail(w, err)
		return
	}
	request.Encode(s.l, w, http.StatusCreated, created)
}

func (s *Server) deleteCommand(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}
	if err := s.svc.Commands.RemoveCustom(r.Context(), guild, mux.Vars(r)["name"]); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stats is the dashboard overview of a guild.
type Stats struct {
	ActiveTickets  int                    `json:"activeTickets"`
	ClosedTickets  int                    `json:"closedTickets"`
	Warnings       int                    `json:"warnings"`
	ActiveWarnings int                    `json:"activeWarnings"`
	Commands       *entities.CommandStats `json:"commands"`
	SocketClients  int                    `json:"socketClients"`
	Bot            BotStatus              `json:"bot"`
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}

	st := &Stats{
		ActiveTickets: len(s.svc.Tickets.ActiveTickets(guild)),
		ClosedTickets: len(s.svc.Tickets.ClosedTickets(guild)),
		Commands:      s.svc.Commands.Stats(),
		SocketClients: s.hub.Clients(),
	}
	for _, warning := range s.svc.Moderation.Warnings(guild, "") {
		st.Warnings++
		if warning.Active {
			st.ActiveWarnings++
		}
	}
	if s.status != nil {
		st.Bot = s.status()
	}
	request.Encode(s.l, w, http.StatusOK, st)
}
