package main

import (
	"net/http"
	"strconv"
	"strings"

	apperrors "allyboard/internal/errors"
	"allyboard/internal/httputil"
	"allyboard/internal/models"
	"allyboard/internal/service"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type mentionBody struct {
	Scope      string `json:"scope"`
	ExternalID string `json:"externalId"`
}

func scopeFromQuery(r *http.Request) models.Scope {
	return models.Scope{Group: strings.TrimSpace(r.URL.Query().Get("scope"))}
}

func mentionKindFromPath(r *http.Request) (models.MentionKind, error) {
	raw := mux.Vars(r)["kind"]
	kind, err := models.ParseMentionKind(raw)
	if err != nil {
		return "", apperrors.NewValidationError("kind", raw, "kind must be role or channel")
	}
	return kind, nil
}

// writeError logs err with the request path and renders it.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.Log(s.logger.WithFields(logrus.Fields{
		service.LogFieldMethod: r.Method,
		service.LogFieldURL:    r.URL.Path,
	}), err, "Request failed")
	httputil.WriteError(w, r, err)
}

func (s *Server) handleListMentions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot, err := s.services.Mentions.Snapshot(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, snapshot)
	}
}

func (s *Server) handleLookupMentions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := mentionKindFromPath(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		names, err := s.services.Mentions.Lookup(r.Context(), kind, scopeFromQuery(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, names)
	}
}

func (s *Server) handleUpsertMention() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := mentionKindFromPath(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		var body mentionBody
		if err := httputil.DecodeJSON(r, &body); err != nil {
			s.writeError(w, r, err)
			return
		}
		name := mux.Vars(r)["name"]
		scope := models.Scope{Group: strings.TrimSpace(body.Scope)}
		if err := s.services.Mentions.Upsert(r.Context(), kind, scope, name, body.ExternalID); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleRemoveMention() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := mentionKindFromPath(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.services.Mentions.Remove(r.Context(), kind, scopeFromQuery(r), mux.Vars(r)["name"]); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handlePreview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.CreateRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		preview, err := s.services.Queue.Preview(r.Context(), req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, preview)
	}
}

func (s *Server) handleListQueue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := service.ListFilter{Status: models.SendStatus(r.URL.Query().Get("status"))}
		items, err := s.services.Queue.List(r.Context(), filter)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, items)
	}
}

func (s *Server) handleCreateQueueItem() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.CreateRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		item, err := s.services.Queue.Create(r.Context(), req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, item)
	}
}

func (s *Server) handleGetQueueItem() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := s.services.Queue.Get(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, item)
	}
}

func (s *Server) handleDeleteQueueItem() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.services.Queue.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleSendQueueItem answers 200 with the updated item whether or not the
// gateway accepted the message; the item's status carries the outcome.
func (s *Server) handleSendQueueItem() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := s.services.Queue.SendOne(r.Context(), mux.Vars(r)["id"], "")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, item)
	}
}

func (s *Server) handleCancelQueueItem() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := s.services.Queue.Cancel(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, item)
	}
}

func (s *Server) handleSendDue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := s.services.Queue.SendDueNow(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, report)
	}
}

func (s *Server) handleDirectSend() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.DirectSendRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		res, err := s.services.Direct.Send(r.Context(), req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleListSendLog() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := models.LogFilter{Query: q.Get("q")}

		if raw := q.Get("failures"); raw != "" {
			failures, err := strconv.ParseBool(raw)
			if err != nil {
				s.writeError(w, r, apperrors.NewValidationError("failures", raw, "failures must be a boolean"))
				return
			}
			filter.FailuresOnly = failures
		}
		if raw := q.Get("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit < 0 {
				s.writeError(w, r, apperrors.NewValidationError("limit", raw, "limit must be a non-negative integer"))
				return
			}
			filter.Limit = limit
		}

		entries, err := s.services.SendLog.List(r.Context(), filter)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, entries)
	}
}

func (s *Server) handleClearSendLog() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.services.SendLog.Clear(r.Context()); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
