package refine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"promptloop/internal/eval"
	"promptloop/internal/llm"
	"promptloop/internal/session"
	"promptloop/internal/suggest"
)

// ErrNoActiveSession is returned by operations that need a started or
// loaded session. The controller never fabricates one.
var ErrNoActiveSession = errors.New("no active session")

// Sentinels recorded when a step cannot produce a real result.
const (
	noResponseSentinel = "ERROR: No response from LLM"
	commFailureNote    = "LLM communication failure"
	manualEditResponse = "N/A (Prompt manually edited before processing)"
	manualEditNote     = "Prompt manually edited"

	queryPlaceholder = "{query}"
)

// Controller drives one interactive refinement session at a time. It is
// the single owner of the working prompt and target query while a session
// is active, and the only caller of the ledger's append operation.
type Controller struct {
	mu          sync.Mutex
	client      llm.Sender
	ledger      *session.Ledger
	evaluator   *eval.Evaluator
	suggester   *suggest.Suggester
	targetModel string

	sessionID string
	prompt    string
	query     string
}

// NewController wires the controller with its collaborators. targetModel
// is the default model used when no override is given.
func NewController(client llm.Sender, ledger *session.Ledger, evaluator *eval.Evaluator, suggester *suggest.Suggester, targetModel string) *Controller {
	return &Controller{
		client:      client,
		ledger:      ledger,
		evaluator:   evaluator,
		suggester:   suggester,
		targetModel: targetModel,
	}
}

// StartSession creates a brand-new session and makes it the active one.
func (c *Controller) StartSession(initialPrompt, targetQuery string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sessionID, _, err := c.ledger.CreateSession(initialPrompt, targetQuery)
	if err != nil {
		return "", err
	}

	c.sessionID = sessionID
	c.prompt = initialPrompt
	c.query = targetQuery
	log.Printf("New session started with ID: %s", sessionID)
	return sessionID, nil
}

// LoadSession makes an existing session the active one. The working prompt
// resumes from the most recent round when any exist, else from the initial
// prompt. On failure the controller state is unchanged.
func (c *Controller) LoadSession(sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc := c.ledger.LoadSession(sessionID)
	if doc == nil {
		return fmt.Errorf("failed to load session %s", sessionID)
	}

	c.sessionID = sessionID
	if len(doc.Rounds) > 0 {
		c.prompt = doc.Rounds[len(doc.Rounds)-1].PromptUsed
	} else {
		c.prompt = doc.InitialPrompt
	}
	c.query = doc.TargetQuery
	log.Printf("Loaded session %s", sessionID)
	return nil
}

// SessionID returns the active session identifier, empty when none.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// WorkingPrompt returns the controller's current in-memory prompt.
func (c *Controller) WorkingPrompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompt
}

// WorkingQuery returns the controller's current target query.
func (c *Controller) WorkingQuery() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query
}

// ProcessCurrentPrompt sends the working prompt (with query substitution)
// to the target model and evaluates the response. On transport failure a
// sentinel round is appended and an error returned; on success nothing is
// appended. Recording the decision about the response is the caller's
// follow-up.
func (c *Controller) ProcessCurrentPrompt(ctx context.Context, modelOverride string) (string, session.ScoreRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionID == "" {
		return "", session.ScoreRecord{}, ErrNoActiveSession
	}

	fullPrompt := c.prompt
	if c.query != "" {
		if strings.Contains(c.prompt, queryPlaceholder) {
			fullPrompt = strings.ReplaceAll(c.prompt, queryPlaceholder, c.query)
		} else {
			fullPrompt = fmt.Sprintf("%s\n\nRegarding the query: %s", c.prompt, c.query)
		}
	}

	model := modelOverride
	if model == "" {
		model = c.targetModel
	}

	replies, err := c.client.Send(ctx, fullPrompt, llm.Options{Model: model})
	if err != nil || len(replies) == 0 {
		if err == nil {
			err = errors.New("model returned no choices")
		}
		log.Printf("Failed to get response from LLM: %v", err)
		if appendErr := c.ledger.AppendRound(
			c.sessionID,
			c.prompt,
			noResponseSentinel,
			session.ScoreRecord{Error: commFailureNote},
			"",
			session.ActionLLMError,
		); appendErr != nil {
			log.Printf("Failed to record llm_error round: %v", appendErr)
		}
		return "", session.ScoreRecord{}, fmt.Errorf("no response from LLM: %w", err)
	}

	response := replies[0]
	evaluation := c.evaluator.Evaluate(ctx, response, c.prompt, c.query)
	return response, evaluation, nil
}

// GetSuggestion asks the suggester for a revised prompt based on the last
// response and its evaluation. ok=false is a valid outcome, not an error.
func (c *Controller) GetSuggestion(ctx context.Context, lastResponse string, evaluation session.ScoreRecord) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionID == "" {
		log.Println("Error: no active session")
		return "", false
	}
	return c.suggester.Suggest(ctx, c.prompt, c.query, lastResponse, evaluation)
}

// ApplySuggestion records the round that produced the suggestion and
// adopts the candidate as the new working prompt. The recorded prompt_used
// is the prompt the response was obtained with, not the candidate.
func (c *Controller) ApplySuggestion(suggested, lastResponse string, evaluation session.ScoreRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionID == "" {
		return ErrNoActiveSession
	}
	if err := c.ledger.AppendRound(c.sessionID, c.prompt, lastResponse, evaluation, suggested, session.ActionAcceptedSuggestion); err != nil {
		return err
	}
	c.prompt = suggested
	return nil
}

// ApplyManualEdit records a manual-edit round and adopts the edited text
// as the new working prompt. lastResponse and evaluation may be absent
// when the prompt is edited before ever being processed.
func (c *Controller) ApplyManualEdit(editedText, lastResponse string, evaluation *session.ScoreRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionID == "" {
		return ErrNoActiveSession
	}

	response := lastResponse
	if response == "" {
		response = manualEditResponse
	}
	record := session.ScoreRecord{Notes: manualEditNote}
	if evaluation != nil {
		record = *evaluation
	}

	if err := c.ledger.AppendRound(c.sessionID, c.prompt, response, record, "", session.ActionManualEdit); err != nil {
		return err
	}
	c.prompt = editedText
	return nil
}

// RecordContinuation appends a round with the given action tag without
// changing the working prompt (rejected suggestion, plain re-process, ...).
func (c *Controller) RecordContinuation(lastResponse string, evaluation session.ScoreRecord, action session.UserAction) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionID == "" {
		return ErrNoActiveSession
	}
	return c.ledger.AppendRound(c.sessionID, c.prompt, lastResponse, evaluation, "", action)
}

// EndSession sets the terminal status and clears the active session. Once
// ended, no further rounds are fed to the session by this controller.
func (c *Controller) EndSession(status session.Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionID == "" {
		return ErrNoActiveSession
	}
	if err := c.ledger.SetStatus(c.sessionID, status); err != nil {
		return err
	}
	log.Printf("Session %s ended with status: %s", c.sessionID, status)
	c.sessionID = ""
	c.prompt = ""
	c.query = ""
	return nil
}

// ListSessions delegates to the ledger; it needs no active session.
func (c *Controller) ListSessions() ([]session.Summary, error) {
	return c.ledger.ListSessions()
}
