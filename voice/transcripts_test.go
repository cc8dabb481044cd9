package voice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goliatone/go-interview-scoring/transport"
)

func TestTranscriptBuffer_KeepsFinalChunksInOrder(t *testing.T) {
	ctx := context.Background()
	buffer := NewTranscriptBuffer()
	at := time.Now()

	events := make(chan Event, 4)
	events <- NewTranscriptChunkEvent("conv_1", SpeakerAgent, "Why this role?", true, at)
	events <- NewTranscriptChunkEvent("conv_1", SpeakerCandidate, "I like", false, at)
	events <- NewTranscriptChunkEvent("conv_1", SpeakerCandidate, "I like the team", true, at)
	events <- NewTranscriptChunkEvent("conv_2", SpeakerAgent, "Hello", true, at)
	close(events)

	if err := NewConsumer(buffer, nil, nil).Run(ctx, events); err != nil {
		t.Fatalf("run: %v", err)
	}
	text, err := buffer.Transcript(ctx, "conv_1")
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if text != "agent: Why this role?\ncandidate: I like the team" {
		t.Fatalf("unexpected transcript %q", text)
	}

	buffer.Forget("conv_1")
	if _, err := buffer.Transcript(ctx, "conv_1"); err == nil {
		t.Fatalf("expected forgotten transcript to be missing")
	}
}

func TestRemoteTranscripts_FetchesConversation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/conversations/conv%201" {
			t.Errorf("unexpected path %q", r.URL.EscapedPath())
		}
		if r.Header.Get("xi-api-key") != "secret" {
			t.Errorf("missing api key header")
		}
		_, _ = w.Write([]byte(`{"transcript":[{"role":"agent","message":"Hi"},{"role":"user","message":" "},{"role":"user","message":"Hello"}]}`))
	}))
	defer server.Close()

	source := RemoteTranscripts{
		Doer:    transport.NewRESTAdapter(server.Client()),
		BaseURL: server.URL + "/conversations/",
		APIKey:  "secret",
	}
	text, err := source.Transcript(context.Background(), "conv 1")
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if text != "agent: Hi\nuser: Hello" {
		t.Fatalf("unexpected transcript %q", text)
	}
}

func TestRemoteTranscripts_RequiresBaseURL(t *testing.T) {
	if _, err := (RemoteTranscripts{}).Transcript(context.Background(), "conv_1"); err == nil {
		t.Fatalf("expected missing base url to fail")
	}
}
