package dashboard

import (
	"net/http"

	"github.com/Jacobbrewer1/hound/pkg/entities"
	"github.com/Jacobbrewer1/hound/pkg/request"
	"github.com/gorilla/mux"
)

func (s *Server) listScheduled(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}
	request.Encode(s.l, w, http.StatusOK, s.svc.Notify.Scheduled(guild))
}

func (s *Server) createScheduled(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}

	m := new(entities.ScheduledMessage)
	if err := request.Decode(r, m); err != nil {
		request.Encode(s.l, w, http.StatusBadRequest, request.NewMessageError("Invalid scheduled message", err))
		return
	}

	created, err := s.svc.Notify.AddScheduled(r.Context(), guild, m)
	if err != nil {
		s.fail(w, err)
		return
	}
	request.Encode(s.l, w, http.StatusCreated, created)
}

func (s *Server) deleteScheduled(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}
	if err := s.svc.Notify.RemoveScheduled(r.Context(), guild, mux.Vars(r)["id"]); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listFeeds(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}
	request.Encode(s.l, w, http.StatusOK, s.svc.Notify.Feeds(guild))
}

func (s *Server) createFeed(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}

	f := new(entities.RSSFeed)
	if err := request.Decode(r, f); err != nil {
		request.Encode(s.l, w, http.StatusBadRequest, request.NewMessageError("Invalid feed", err))
		return
	}

	created, err := s.svc.Notify.AddFeed(r.Context(), guild, f)
	if err != nil {
		s.fail(w, err)
		return
	}
	request.Encode(s.l, w, http.StatusCreated, created)
}

func (s *Server) deleteFeed(w http.ResponseWriter, r *http.Request) {
	guild, ok := guildID(r)
	if !ok {
		request.Error(s.l, w, http.StatusBadRequest, "guildId is required")
		return
	}
	if err := s.svc.Notify.RemoveFeed(r.Context(), guild, mux.Vars(r)["id"]); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
