package dashboard

import (
	"net/http"

	"github.com/Jacobbrewer1/hound/pkg/entities"
	"github.com/Jacobbrewer1/hound/pkg/request"
	"github.com/Jacobbrewer1/hound/pkg/tickets"
	"github.com/gorilla/mux"
)

// dashboardActor is the actor used for ticket actions taken from the dashboard.
var dashboardActor = tickets.Actor{ID: DashboardModeratorID, Username: "Dashboard", Admin: true}

func (s *Server) getTicketConfig(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}
	request.Encode(s.l, w, http.StatusOK, s.svc.Tickets.Config(guild))
}

func (s *Server) saveTicketConfig(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}

	cfg := new(entities.TicketConfig)
	if err := request.Decode(r, cfg); err != nil {
		request.Encode(s.l, w, http.StatusBadRequest, request.NewMessageError("Invalid ticket configuration", err))
		return
	}
	if err := s.svc.Tickets.SaveConfig(r.Context(), guild, cfg); err != nil {
		s.fail(w, err)
		return
	}
	request.Encode(s.l, w, http.StatusOK, s.svc.Tickets.Config(guild))
}

type ticketsResponse struct {
	Active []*entities.Ticket `json:"active"`
	Closed []*entities.Ticket `json:"closed"`
}

func (s *Server) listTickets(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}

	resp := &ticketsResponse{
		Active: make([]*entities.Ticket, 0),
		Closed: make([]*entities.Ticket, 0),
	}
	switch r.URL.Query().Get("status") {
	case string(entities.TicketStatusOpen):
		resp.Active = s.svc.Tickets.ActiveTickets(guild)
	case string(entities.TicketStatusClosed):
		resp.Closed = s.svc.Tickets.ClosedTickets(guild)
	default:
		resp.Active = s.svc.Tickets.ActiveTickets(guild)
		resp.Closed = s.svc.Tickets.ClosedTickets(guild)
	}
	request.Encode(s.l, w, http.StatusOK, resp)
}

type closeRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) closeTicket(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}
	id := mux.Vars(r)["id"]

	req := new(closeRequest)
	if r.ContentLength != 0 {
		if err := request.Decode(r, req); err != nil {
			request.Encode(s.l, w, http.StatusBadRequest, request.NewMessageError("Invalid close request", err))
			return
		}
	}

	// Only tickets of the guild may be closed.
	found := false
	for _, t := range s.svc.Tickets.ActiveTickets(guild) {
		if t.ID == id {
			found = true
			break
		}
	}
	if !found {
		request.Error(s.l, w, http.StatusNotFound, "Ticket not found")
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "Closed from the dashboard"
	}
	t, err := s.svc.Tickets.Close(r.Context(), id, dashboardActor, reason)
	if err != nil {
		s.fail(w, err)
		return
	}
	request.Encode(s.l, w, http.StatusOK, t)
}

func (s *Server) listTicketTypes(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}
	request.Encode(s.l, w, http.StatusOK, s.svc.Tickets.ListTypes(guild))
}

func (s *Server) createTicketType(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}

	tt := new(entities.TicketType)
	if err := request.Decode(r, tt); err != nil {
		request.Encode(s.l, w, http.StatusBadRequest, request.NewMessageError("Invalid ticket type", err))
		return
	}
	created, err := s.svc.Tickets.CreateType(r.Context(), guild, *tt)
	if err != nil {
		s.fail(w, err)
		return
	}
	request.Encode(s.l, w, http.StatusCreated, created)
}

func (s *Server) updateTicketType(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}

	tt := new(entities.TicketType)
	if err := request.Decode(r, tt); err != nil {
		request.Encode(s.l, w, http.StatusBadRequest, request.NewMessageError("Invalid ticket type", err))
		return
	}
	updated, err := s.svc.Tickets.UpdateType(r.Context(), guild, mux.Vars(r)["id"], *tt)
	if err != nil {
		s.fail(w, err)
		return
	}
	request.Encode(s.l, w, http.StatusOK, updated)
}

func (s *Server) deleteTicketType(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}
	if err := s.svc.Tickets.DeleteType(r.Context(), guild, mux.Vars(r)["id"]); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type deployRequest struct {
	ChannelID string `json:"channelId"`
}

func (s *Server) deployTicketPanel(w http.ResponseWriter, r *http.Request) {
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
	msg, err := s.svc.Tickets.DeployPanel(r.Context(), guild, req.ChannelID)
	if err != nil {
		s.fail(w, err)
		return
	}
	request.Encode(s.l, w, http.StatusOK, map[string]string{
		"channelId": req.ChannelID,
		"messageId": msg.ID,
	})
}
