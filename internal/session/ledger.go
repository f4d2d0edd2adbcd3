package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

const snippetLen = 50

// Ledger owns the append-only round log and status lifecycle of persisted
// sessions. It is the only component that reads-modifies-writes session
// documents; a single writer per session is assumed.
type Ledger struct {
	store *Store
}

// NewLedger creates a ledger over the given document store.
func NewLedger(store *Store) *Ledger {
	return &Ledger{store: store}
}

// CreateSession generates a fresh session, persists it and returns both the
// new identifier and the document.
func (l *Ledger) CreateSession(initialPrompt, targetQuery string) (string, *Session, error) {
	sessionID := uuid.New().String()
	doc := &Session{
		SessionID:     sessionID,
		CreatedAt:     time.Now().Format(time.RFC3339),
		InitialPrompt: initialPrompt,
		TargetQuery:   targetQuery,
		Rounds:        []Round{},
		Status:        StatusActive,
	}
	if err := l.save(doc); err != nil {
		return "", nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sessionID, doc, nil
}

// LoadSession returns the stored document, or nil if the session is absent
// or its document cannot be decoded. Corruption is logged, not raised.
func (l *Ledger) LoadSession(sessionID string) *Session {
	raw, err := l.store.Get(sessionID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Printf("Failed to read session %s: %v", sessionID, err)
		}
		return nil
	}

	var doc Session
	if err := json.Unmarshal(raw, &doc); err != nil {
		log.Printf("Could not decode session document %s: %v", sessionID, err)
		return nil
	}
	return &doc
}

// AppendRound appends one round to an existing session and persists the
// full document. The round number is always len(existing rounds)+1; rounds
// are never rewritten. Appending to a missing session fails and does not
// create it.
func (l *Ledger) AppendRound(sessionID, promptUsed, llmResponse string, evaluation ScoreRecord, suggestion string, action UserAction) error {
	doc := l.LoadSession(sessionID)
	if doc == nil {
		return fmt.Errorf("cannot add round: %w: %s", ErrNotFound, sessionID)
	}

	doc.Rounds = append(doc.Rounds, Round{
		RoundNumber:            len(doc.Rounds) + 1,
		Timestamp:              time.Now().Format(time.RFC3339),
		PromptUsed:             promptUsed,
		LLMResponse:            llmResponse,
		Evaluation:             evaluation,
		ModificationSuggestion: suggestion,
		UserAction:             action,
	})
	return l.save(doc)
}

// SetStatus overwrites the session status and persists. The status
// vocabulary is not validated beyond being a string.
func (l *Ledger) SetStatus(sessionID string, status Status) error {
	doc := l.LoadSession(sessionID)
	if doc == nil {
		return fmt.Errorf("cannot update status: %w: %s", ErrNotFound, sessionID)
	}
	doc.Status = status
	return l.save(doc)
}

// ListSessions enumerates all stored sessions in storage order. Documents
// that fail to decode are skipped with a log line.
func (l *Ledger) ListSessions() ([]Summary, error) {
	documents, err := l.store.List()
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(documents))
	for _, raw := range documents {
		var doc Session
		if err := json.Unmarshal(raw, &doc); err != nil {
			log.Printf("Skipping undecodable session document: %v", err)
			continue
		}
		summaries = append(summaries, Summary{
			SessionID:            doc.SessionID,
			CreatedAt:            doc.CreatedAt,
			InitialPromptSnippet: snippet(doc.InitialPrompt),
			NumRounds:            len(doc.Rounds),
			Status:               doc.Status,
		})
	}
	return summaries, nil
}

func (l *Ledger) save(doc *Session) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", doc.SessionID, err)
	}
	return l.store.Put(doc.SessionID, raw)
}

func snippet(prompt string) string {
	runes := []rune(prompt)
	if len(runes) > snippetLen {
		runes = runes[:snippetLen]
	}
	return string(runes) + "..."
}
