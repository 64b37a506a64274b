package core

import (
	"context"
	"net/http"

	"greetbot/internal/run"
	"greetbot/internal/types"
)

// HandleRun runs the greeting pass for ?date=YYYY-MM-DD, or for today in the
// configured timezone when date is absent. The run is detached from the
// request's cancellation and deadline.
//
// Responses:
//   - 200 {"message": summary}
//   - 400 {"error": ...} for a malformed date
//   - 409 {"error": ...} when another run holds the lock
//   - 500 {"error": summary} for any other failure
func (s *Server) HandleRun(w http.ResponseWriter, r *http.Request) {
	date := s.Runner.Today()
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := types.ParseDate(raw)
		if err != nil {
			Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidDate, "date must be YYYY-MM-DD", err))
			return
		}
		date = d
	}

	// A run always goes to completion: a caller hanging up or timing out must
	// not abort the remaining sends. Request-scoped values are kept.
	res := s.Runner.Run(context.WithoutCancel(r.Context()), date)
	if res.Status() == run.StatusSuccess {
		JSON(w, r, http.StatusOK, MessageResponse{Message: res.Summary()})
		return
	}

	status := http.StatusInternalServerError
	if types.CodeOf(res.Err) == types.ErrCodeLockUnavailable {
		status = http.StatusConflict
	}
	JSON(w, r, status, ErrorResponse{
		Error:     res.Summary(),
		Code:      string(types.CodeOf(res.Err)),
		RequestID: types.GetRequestID(r.Context()),
	})
}
