package query

import (
	"strings"
)

const (
	TypeGetSessionStatus = "scoring.query.session.status"
	TypeListSessionJobs  = "scoring.query.session.jobs"

	maxJobsPerPage = 100
)

type GetSessionStatusMessage struct {
	SessionID string
}

func (GetSessionStatusMessage) Type() string { return TypeGetSessionStatus }

func (m GetSessionStatusMessage) Validate() error {
	if strings.TrimSpace(m.SessionID) == "" {
		return queryValidationError("session_id", "session id is required")
	}
	return nil
}

type ListSessionJobsMessage struct {
	SessionID string
	Limit     int
}

func (ListSessionJobsMessage) Type() string { return TypeListSessionJobs }

func (m ListSessionJobsMessage) Validate() error {
	if strings.TrimSpace(m.SessionID) == "" {
		return queryValidationError("session_id", "session id is required")
	}
	if m.Limit < 0 || m.Limit > maxJobsPerPage {
		return queryValidationError("limit", "limit must be between 0 and 100")
	}
	return nil
}
