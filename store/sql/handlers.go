package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// Session ids are assigned by the caller and are not always UUIDs, so the
// session handlers expose the raw string through GetIdentifierValue and map
// non-UUID values to uuid.Nil.
func sessionHandlers() repository.ModelHandlers[*sessionRecord] {
	return repository.ModelHandlers[*sessionRecord]{
		NewRecord: func() *sessionRecord {
			return &sessionRecord{}
		},
		GetID: func(record *sessionRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *sessionRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *sessionRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func scoringJobHandlers() repository.ModelHandlers[*scoringJobRecord] {
	return repository.ModelHandlers[*scoringJobRecord]{
		NewRecord: func() *scoringJobRecord {
			return &scoringJobRecord{}
		},
		GetID: func(record *scoringJobRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *scoringJobRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *scoringJobRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func scoreHandlers() repository.ModelHandlers[*scoreRecord] {
	return repository.ModelHandlers[*scoreRecord]{
		NewRecord: func() *scoreRecord {
			return &scoreRecord{}
		},
		GetID: func(record *scoreRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *scoreRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "session_id"
		},
		GetIdentifierValue: func(record *scoreRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.SessionID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
