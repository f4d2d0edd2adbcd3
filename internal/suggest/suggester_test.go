package suggest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"promptloop/internal/llm"
	"promptloop/internal/session"
)

type fakeSender struct {
	available bool
	replies   []string
	err       error

	lastPrompt string
	lastOpts   llm.Options
	calls      int
}

func (f *fakeSender) Available() bool { return f.available }

func (f *fakeSender) Send(_ context.Context, prompt string, opts llm.Options) ([]string, error) {
	f.calls++
	f.lastPrompt = prompt
	f.lastOpts = opts
	return f.replies, f.err
}

var _ llm.Sender = (*fakeSender)(nil)

func TestSuggestUnavailableClient(t *testing.T) {
	s := New(&fakeSender{available: false}, "mod-model")
	suggestion, ok := s.Suggest(context.Background(), "prompt", "", "response", session.ScoreRecord{})
	assert.False(t, ok)
	assert.Empty(t, suggestion)

	s = New(nil, "mod-model")
	suggestion, ok = s.Suggest(context.Background(), "prompt", "", "response", session.ScoreRecord{})
	assert.False(t, ok)
	assert.Empty(t, suggestion)
}

func TestSuggestReturnsCleanedPrompt(t *testing.T) {
	sender := &fakeSender{available: true, replies: []string{"  You are a historian. Describe the event in detail.  "}}
	s := New(sender, "mod-model")

	suggestion, ok := s.Suggest(context.Background(), "Describe the event.", "the event", "Too brief.", session.ScoreRecord{DetailScore: 0.1})
	assert.True(t, ok)
	assert.Equal(t, "You are a historian. Describe the event in detail.", suggestion)

	assert.Equal(t, "mod-model", sender.lastOpts.Model)
	assert.Equal(t, 0.5, sender.lastOpts.Temperature)
	assert.Equal(t, len("Describe the event.")+500, sender.lastOpts.MaxTokens)
}

func TestSuggestRequestCarriesContext(t *testing.T) {
	sender := &fakeSender{available: true, replies: []string{"revised"}}
	s := New(sender, "mod-model")

	eval := session.ScoreRecord{
		IsRefusal:             true,
		JailbreakSuccessScore: 0.0,
		DetailScore:           0.0,
		SafetyScore:           1.0,
		Notes:                 "refused outright",
	}
	_, ok := s.Suggest(context.Background(), "current prompt text", "target query text", "last response text", eval)
	assert.True(t, ok)

	assert.Contains(t, sender.lastPrompt, "current prompt text")
	assert.Contains(t, sender.lastPrompt, "target query text")
	assert.Contains(t, sender.lastPrompt, "last response text")
	assert.Contains(t, sender.lastPrompt, "Was it a refusal? Yes")
	assert.Contains(t, sender.lastPrompt, "refused outright")
}

func TestSuggestMarkersForAbsentInputs(t *testing.T) {
	sender := &fakeSender{available: true, replies: []string{"revised"}}
	s := New(sender, "mod-model")

	_, ok := s.Suggest(context.Background(), "p", "", "", session.ScoreRecord{})
	assert.True(t, ok)
	assert.Contains(t, sender.lastPrompt, "Not explicitly specified, infer from prompt.")
	assert.Contains(t, sender.lastPrompt, "No response was generated.")
	assert.Contains(t, sender.lastPrompt, "Was it a refusal? No")
}

func TestSuggestEmptyReply(t *testing.T) {
	sender := &fakeSender{available: true, replies: []string{"   "}}
	s := New(sender, "mod-model")

	suggestion, ok := s.Suggest(context.Background(), "p", "", "r", session.ScoreRecord{})
	assert.False(t, ok)
	assert.Empty(t, suggestion)

	sender = &fakeSender{available: true, replies: nil}
	s = New(sender, "mod-model")
	_, ok = s.Suggest(context.Background(), "p", "", "r", session.ScoreRecord{})
	assert.False(t, ok)
}

func TestSuggestSendError(t *testing.T) {
	sender := &fakeSender{available: true, err: errors.New("boom")}
	s := New(sender, "mod-model")

	suggestion, ok := s.Suggest(context.Background(), "p", "", "r", session.ScoreRecord{})
	assert.False(t, ok)
	assert.Empty(t, suggestion)
}

func TestCleanSuggestion(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Revised Prompt: Do the thing.", "Do the thing."},
		{"revised prompt：Do the thing.", "Do the thing."},
		{"```\nDo the thing.\n```", "Do the thing."},
		{"```text\nDo the thing.\n```", "Do the thing."},
		{"```plaintext\nDo the thing.\n```", "Do the thing."},
		{"Revised Prompt:\n```text\nDo the thing.\n```", "Do the thing."},
		{"  Do the thing.  \n", "Do the thing."},
		{"```\n```", ""},
		{"Plain prompt with no markup", "Plain prompt with no markup"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, cleanSuggestion(tc.in), "input %q", tc.in)
	}
}

func TestSuggestOnlyMarkupReply(t *testing.T) {
	sender := &fakeSender{available: true, replies: []string{"Revised Prompt:\n```\n```"}}
	s := New(sender, "mod-model")

	suggestion, ok := s.Suggest(context.Background(), "p", "", "r", session.ScoreRecord{})
	assert.False(t, ok)
	assert.Empty(t, suggestion)
}
