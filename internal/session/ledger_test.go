package session

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) (*Ledger, *Store) {
	t.Helper()

	store, err := OpenStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return NewLedger(store), store
}

func TestCreateSessionRoundTrip(t *testing.T) {
	ledger, _ := newTestLedger(t)

	sessionID, doc, err := ledger.CreateSession("initial prompt", "target query")
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)
	assert.Equal(t, sessionID, doc.SessionID)

	loaded := ledger.LoadSession(sessionID)
	require.NotNil(t, loaded)
	assert.Equal(t, sessionID, loaded.SessionID)
	assert.Equal(t, "initial prompt", loaded.InitialPrompt)
	assert.Equal(t, "target query", loaded.TargetQuery)
	assert.Equal(t, StatusActive, loaded.Status)
	assert.Empty(t, loaded.Rounds)
	assert.NotEmpty(t, loaded.CreatedAt)
}

func TestLoadSessionMissing(t *testing.T) {
	ledger, _ := newTestLedger(t)
	assert.Nil(t, ledger.LoadSession("no-such-session"))
}

func TestLoadSessionCorruptDocument(t *testing.T) {
	ledger, store := newTestLedger(t)

	require.NoError(t, store.Put("broken", []byte("{not json")))
	assert.Nil(t, ledger.LoadSession("broken"))
}

func TestAppendRoundNumbersSequential(t *testing.T) {
	ledger, _ := newTestLedger(t)

	sessionID, _, err := ledger.CreateSession("p", "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		err := ledger.AppendRound(sessionID, "p", "response", ScoreRecord{}, "", ActionProcessedPrompt)
		require.NoError(t, err)
	}

	doc := ledger.LoadSession(sessionID)
	require.NotNil(t, doc)
	require.Len(t, doc.Rounds, 3)
	for i, r := range doc.Rounds {
		assert.Equal(t, i+1, r.RoundNumber)
		assert.NotEmpty(t, r.Timestamp)
	}
}

func TestAppendRoundMissingSessionFails(t *testing.T) {
	ledger, _ := newTestLedger(t)

	err := ledger.AppendRound("ghost", "p", "r", ScoreRecord{}, "", ActionProcessedPrompt)
	require.Error(t, err)

	// The failed append must not create the session.
	assert.Nil(t, ledger.LoadSession("ghost"))
}

func TestAppendRoundPreservesPayload(t *testing.T) {
	ledger, _ := newTestLedger(t)

	sessionID, _, err := ledger.CreateSession("p", "q")
	require.NoError(t, err)

	eval := ScoreRecord{
		IsRefusal:             true,
		JailbreakSuccessScore: 0.1,
		DetailScore:           0.2,
		SafetyScore:           0.9,
		Notes:                 "some notes",
	}
	require.NoError(t, ledger.AppendRound(sessionID, "used prompt", "model said", eval, "try this instead", ActionAcceptedSuggestion))

	doc := ledger.LoadSession(sessionID)
	require.NotNil(t, doc)
	require.Len(t, doc.Rounds, 1)

	round := doc.Rounds[0]
	assert.Equal(t, "used prompt", round.PromptUsed)
	assert.Equal(t, "model said", round.LLMResponse)
	assert.Equal(t, eval, round.Evaluation)
	assert.Equal(t, "try this instead", round.ModificationSuggestion)
	assert.Equal(t, ActionAcceptedSuggestion, round.UserAction)
}

func TestSetStatus(t *testing.T) {
	ledger, _ := newTestLedger(t)

	sessionID, _, err := ledger.CreateSession("p", "")
	require.NoError(t, err)

	require.NoError(t, ledger.SetStatus(sessionID, StatusCompleted))
	doc := ledger.LoadSession(sessionID)
	require.NotNil(t, doc)
	assert.Equal(t, StatusCompleted, doc.Status)

	assert.Error(t, ledger.SetStatus("ghost", StatusAborted))
}

func TestListSessions(t *testing.T) {
	ledger, store := newTestLedger(t)

	longPrompt := "This initial prompt is intentionally longer than fifty characters so the snippet truncates."
	id1, _, err := ledger.CreateSession(longPrompt, "")
	require.NoError(t, err)
	id2, _, err := ledger.CreateSession("short", "")
	require.NoError(t, err)
	require.NoError(t, ledger.AppendRound(id2, "short", "r", ScoreRecord{}, "", ActionProcessedPrompt))

	// Undecodable documents are skipped, not fatal.
	require.NoError(t, store.Put("bad", []byte("not json at all")))

	summaries, err := ledger.ListSessions()
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	byID := map[string]Summary{}
	for _, s := range summaries {
		byID[s.SessionID] = s
	}

	s1 := byID[id1]
	assert.Equal(t, string([]rune(longPrompt)[:50])+"...", s1.InitialPromptSnippet)
	assert.Equal(t, 0, s1.NumRounds)
	assert.Equal(t, StatusActive, s1.Status)

	s2 := byID[id2]
	assert.Equal(t, "short...", s2.InitialPromptSnippet)
	assert.Equal(t, 1, s2.NumRounds)
}

func TestStoreGetMissing(t *testing.T) {
	_, store := newTestLedger(t)

	_, err := store.Get("absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorePutOverwrites(t *testing.T) {
	_, store := newTestLedger(t)

	require.NoError(t, store.Put("k", []byte(`{"v":1}`)))
	require.NoError(t, store.Put("k", []byte(`{"v":2}`)))

	raw, err := store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(raw))

	docs, err := store.List()
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}
