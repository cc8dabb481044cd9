package voice

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/goliatone/go-interview-scoring/transport"
)

// TranscriptBuffer is a Handler that keeps final transcript chunks per
// conversation. It also serves them back as a transcript source for the
// scoring engine, so a single process can score calls it streamed.
type TranscriptBuffer struct {
	NopHandler
	mu    sync.RWMutex
	lines map[string][]string
}

func NewTranscriptBuffer() *TranscriptBuffer {
	return &TranscriptBuffer{lines: map[string][]string{}}
}

func (b *TranscriptBuffer) OnTranscriptChunk(_ context.Context, e TranscriptChunkEvent) error {
	if !e.Final {
		return nil
	}
	text := strings.TrimSpace(e.Text)
	if text == "" {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id := e.ConversationID()
	b.lines[id] = append(b.lines[id], formatLine(string(e.Speaker), text))
	return nil
}

func (b *TranscriptBuffer) Transcript(_ context.Context, sessionID string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	lines, ok := b.lines[strings.TrimSpace(sessionID)]
	if !ok {
		return "", fmt.Errorf("voice: no transcript for session %q", sessionID)
	}
	return strings.Join(lines, "\n"), nil
}

// Forget drops a conversation once it has been scored.
func (b *TranscriptBuffer) Forget(conversationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.lines, conversationID)
}

// RemoteTranscripts fetches a finished conversation from the voice
// provider's API: GET <BaseURL>/<conversation_id>.
type RemoteTranscripts struct {
	Doer         transport.Doer
	BaseURL      string
	APIKey       string
	APIKeyHeader string
}

type remoteConversation struct {
	Transcript []struct {
		Role    string `json:"role"`
		Message string `json:"message"`
	} `json:"transcript"`
}

func (r RemoteTranscripts) Transcript(ctx context.Context, sessionID string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(r.BaseURL), "/")
	if base == "" {
		return "", fmt.Errorf("voice: transcript base url is required")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", fmt.Errorf("voice: session id is required")
	}
	doer := r.Doer
	if doer == nil {
		doer = transport.NewRESTAdapter(nil)
	}
	headers := map[string]string{}
	if key := strings.TrimSpace(r.APIKey); key != "" {
		header := strings.TrimSpace(r.APIKeyHeader)
		if header == "" {
			header = "xi-api-key"
		}
		headers[header] = key
	}

	var conversation remoteConversation
	if _, err := transport.GetJSON(ctx, doer, base+"/"+url.PathEscape(sessionID), headers, &conversation); err != nil {
		return "", err
	}
	lines := make([]string, 0, len(conversation.Transcript))
	for _, turn := range conversation.Transcript {
		message := strings.TrimSpace(turn.Message)
		if message == "" {
			continue
		}
		lines = append(lines, formatLine(turn.Role, message))
	}
	return strings.Join(lines, "\n"), nil
}

func formatLine(speaker, text string) string {
	speaker = strings.TrimSpace(speaker)
	if speaker == "" {
		speaker = "unknown"
	}
	return speaker + ": " + text
}
