package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/wemo-gateway/internal/journal"
)

// handleListJournal returns a page of journalled commands, newest first.
//
// Query parameters: type, name, outcome, limit, offset.
func (s *Server) handleListJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeUnavailable(w, "command journal is disabled")
		return
	}

	q := r.URL.Query()
	filter := journal.Filter{
		Type:    q.Get("type"),
		Name:    q.Get("name"),
		Outcome: q.Get("outcome"),
	}

	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeBadRequest(w, "offset must be a non-negative integer")
		return
	}

	result, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing journal", "error", err)
		writeInternalError(w, "listing journal")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// intParam parses an optional non-negative integer; "" is 0.
func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}
