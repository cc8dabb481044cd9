package core

// sessionTransitions is the fixed transition table. Edges back into
// webhook_received and scoring_in_progress model redelivered webhooks and
// re-claimed jobs; both are last-write-wins. Nothing leaves
// scored_successfully.
var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionStatusStarted: {
		SessionStatusWebhookReceived,
	},
	SessionStatusWebhookReceived: {
		SessionStatusWebhookReceived,
		SessionStatusWebhookReceivedNotScored,
		SessionStatusScoringEnqueued,
		SessionStatusScoringEnqueueFailed,
		SessionStatusScoringInProgress,
	},
	SessionStatusWebhookReceivedNotScored: {
		SessionStatusWebhookReceived,
	},
	SessionStatusScoringEnqueued: {
		SessionStatusWebhookReceived,
		SessionStatusScoringInProgress,
	},
	SessionStatusScoringEnqueueFailed: {
		SessionStatusWebhookReceived,
		SessionStatusScoringInProgress,
	},
	SessionStatusScoringInProgress: {
		SessionStatusWebhookReceived,
		SessionStatusScoringInProgress,
		SessionStatusScoredSuccessfully,
		SessionStatusScoringFailedLLM,
		SessionStatusScoringFailedDB,
	},
	SessionStatusScoringFailedLLM: {
		SessionStatusWebhookReceived,
		SessionStatusScoringInProgress,
	},
	SessionStatusScoringFailedDB: {
		SessionStatusWebhookReceived,
		SessionStatusScoringInProgress,
	},
	SessionStatusScoredSuccessfully: {},
}

var statusLabels = map[SessionStatus]string{
	SessionStatusStarted:                  "Interview in progress",
	SessionStatusWebhookReceived:          "Interview received",
	SessionStatusWebhookReceivedNotScored: "Interview ended before completion",
	SessionStatusScoringEnqueued:          "Waiting to be scored",
	SessionStatusScoringInProgress:        "Scoring your interview",
	SessionStatusScoredSuccessfully:       "Results ready",
}

const failureStatusLabel = "We hit an issue while scoring your interview"

func AllowedTransition(from, to SessionStatus) bool {
	from = normalizeSessionStatus(from)
	to = normalizeSessionStatus(to)
	for _, candidate := range sessionTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

func ValidSessionStatus(status SessionStatus) bool {
	_, ok := sessionTransitions[normalizeSessionStatus(status)]
	return ok
}

func IsFailureStatus(status SessionStatus) bool {
	switch normalizeSessionStatus(status) {
	case SessionStatusScoringEnqueueFailed, SessionStatusScoringFailedLLM, SessionStatusScoringFailedDB:
		return true
	default:
		return false
	}
}

func IsTerminalStatus(status SessionStatus) bool {
	switch normalizeSessionStatus(status) {
	case SessionStatusScoredSuccessfully,
		SessionStatusScoringFailedLLM,
		SessionStatusScoringFailedDB,
		SessionStatusScoringEnqueueFailed,
		SessionStatusWebhookReceivedNotScored:
		return true
	default:
		return false
	}
}

// StatusLabel returns the candidate-facing label. Failure states share one
// generic label; the stored status_error is for operators only.
func StatusLabel(status SessionStatus) string {
	status = normalizeSessionStatus(status)
	if IsFailureStatus(status) {
		return failureStatusLabel
	}
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return "Unknown"
}

func ValidJobStatus(status JobStatus) bool {
	switch normalizeJobStatus(status) {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed, JobStatusArchived:
		return true
	default:
		return false
	}
}
