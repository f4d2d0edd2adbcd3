package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"promptloop/internal/config"
	"promptloop/internal/eval"
	"promptloop/internal/llm"
	"promptloop/internal/refine"
	"promptloop/internal/session"
	"promptloop/internal/suggest"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ./config.{yaml,json,toml})")
	flag.Parse()

	// Local .env is optional; absence is not an error.
	_ = godotenv.Load()

	cfg := config.Load(*configPath)

	store, err := session.OpenStore(cfg.StoragePath())
	if err != nil {
		log.Fatalf("Failed to open session store: %v", err)
	}
	defer store.Close()

	client := llm.NewClient(cfg.APIKey(), cfg.BaseURL(), cfg.TargetModel(), cfg.RequestsPerMinute())
	defer client.Close()
	if !client.Available() {
		fmt.Println("WARNING: model API key not configured; model-dependent features will not work.")
		fmt.Println("Set api_key in the config file or PROMPTLOOP_API_KEY in the environment.")
	}

	ledger := session.NewLedger(store)
	evaluator := eval.New(eval.ParseMethod(cfg.EvaluationMethod()), cfg.JudgeModel(), client)
	suggester := suggest.New(client, cfg.ModifierModel())
	controller := refine.NewController(client, ledger, evaluator, suggester, cfg.TargetModel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{
		ctx:        ctx,
		controller: controller,
		ledger:     ledger,
		stdin:      bufio.NewScanner(os.Stdin),
	}
	a.mainMenu()
}

type app struct {
	ctx        context.Context
	controller *refine.Controller
	ledger     *session.Ledger
	stdin      *bufio.Scanner

	lastResponse   string
	lastEvaluation *session.ScoreRecord
}

func (a *app) mainMenu() {
	for {
		fmt.Println("\n--- promptloop ---")
		fmt.Println("1. New session")
		fmt.Println("2. Load session")
		fmt.Println("3. List sessions")
		fmt.Println("0. Exit")

		switch a.readLine("Choose an action: ") {
		case "1":
			a.newSession()
		case "2":
			a.loadSession()
		case "3":
			a.listSessions()
		case "0", "":
			fmt.Println("Bye.")
			return
		default:
			fmt.Println("Invalid choice.")
		}

		if a.ctx.Err() != nil {
			return
		}
	}
}

func (a *app) newSession() {
	prompt := a.readLine("Enter the initial prompt: ")
	if prompt == "" {
		fmt.Println("An initial prompt is required.")
		return
	}
	query := a.readLine("Enter the target query (optional): ")

	sessionID, err := a.controller.StartSession(prompt, query)
	if err != nil {
		fmt.Printf("Failed to create a new session: %v\n", err)
		return
	}
	fmt.Printf("New session created with ID: %s\n", sessionID)
	a.interact()
}

func (a *app) loadSession() {
	summaries, err := a.controller.ListSessions()
	if err != nil {
		fmt.Printf("Failed to list sessions: %v\n", err)
		return
	}
	if len(summaries) == 0 {
		fmt.Println("No existing sessions found.")
		return
	}
	for i, s := range summaries {
		fmt.Printf("  %d. ID: %s | Created: %s | Prompt: %q | Rounds: %d | Status: %s\n",
			i+1, s.SessionID, s.CreatedAt, s.InitialPromptSnippet, s.NumRounds, s.Status)
	}

	choice := a.readLine("Enter the number or ID of the session to load: ")
	if choice == "" {
		return
	}
	sessionID := choice
	var idx int
	if _, err := fmt.Sscanf(choice, "%d", &idx); err == nil && idx >= 1 && idx <= len(summaries) {
		sessionID = summaries[idx-1].SessionID
	}

	if err := a.controller.LoadSession(sessionID); err != nil {
		fmt.Printf("Failed to load session %s: %v\n", sessionID, err)
		return
	}
	fmt.Printf("Session %s loaded successfully.\n", sessionID)
	a.interact()
}

func (a *app) listSessions() {
	summaries, err := a.controller.ListSessions()
	if err != nil {
		fmt.Printf("Failed to list sessions: %v\n", err)
		return
	}
	if len(summaries) == 0 {
		fmt.Println("No existing sessions found.")
		return
	}
	for _, s := range summaries {
		fmt.Printf("- ID: %s\n  Created: %s\n  Initial Prompt: %q\n  Rounds: %d\n  Status: %s\n",
			s.SessionID, s.CreatedAt, s.InitialPromptSnippet, s.NumRounds, s.Status)
	}
}

func (a *app) interact() {
	a.lastResponse = ""
	a.lastEvaluation = nil

	for {
		fmt.Println("\n--- Current State ---")
		fmt.Printf("Session ID: %s\n", a.controller.SessionID())
		fmt.Printf("Current Prompt:\n%s\n", a.controller.WorkingPrompt())
		if q := a.controller.WorkingQuery(); q != "" {
			fmt.Printf("Target Query: %s\n", q)
		}
		if a.lastResponse != "" {
			fmt.Printf("Last LLM Response:\n%s\n", a.lastResponse)
		}

		fmt.Println("\n--- Actions ---")
		fmt.Println("1. Process current prompt with target LLM")
		fmt.Println("2. Get modification suggestion")
		fmt.Println("3. Manually edit current prompt")
		fmt.Println("4. View full session history")
		fmt.Println("5. End current session")
		fmt.Println("0. Back to main menu")

		switch a.readLine("Choose an action: ") {
		case "1":
			a.processPrompt()
		case "2":
			a.getSuggestion()
		case "3":
			a.manualEdit()
		case "4":
			a.showHistory()
		case "5":
			a.endSession()
			return
		case "0":
			return
		default:
			fmt.Println("Invalid choice.")
		}

		if a.ctx.Err() != nil {
			return
		}
	}
}

func (a *app) processPrompt() {
	fmt.Println("Processing...")
	response, evaluation, err := a.controller.ProcessCurrentPrompt(a.ctx, "")
	if err != nil {
		fmt.Printf("Failed to process prompt with LLM: %v\n", err)
		return
	}

	a.lastResponse = response
	a.lastEvaluation = &evaluation
	fmt.Printf("\nTarget LLM Response:\n%s\n", response)
	fmt.Printf("\nEvaluation: refusal=%t success=%.2f detail=%.2f safety=%.2f\nNotes: %s\n",
		evaluation.IsRefusal, evaluation.JailbreakSuccessScore, evaluation.DetailScore,
		evaluation.SafetyScore, evaluation.Notes)

	if err := a.controller.RecordContinuation(response, evaluation, session.ActionProcessedPrompt); err != nil {
		fmt.Printf("Failed to record round: %v\n", err)
	}
}

func (a *app) getSuggestion() {
	if a.lastResponse == "" || a.lastEvaluation == nil {
		fmt.Println("Process the prompt first (action 1) to get a response and evaluation.")
		return
	}

	fmt.Println("Getting suggestion...")
	suggestion, ok := a.controller.GetSuggestion(a.ctx, a.lastResponse, *a.lastEvaluation)
	if !ok {
		fmt.Println("Modifier did not provide a suggestion.")
		if err := a.controller.RecordContinuation(a.lastResponse, *a.lastEvaluation, session.ActionContinuedNoSuggestion); err != nil {
			fmt.Printf("Failed to record round: %v\n", err)
		}
		return
	}

	fmt.Printf("Suggested New Prompt:\n%s\n", suggestion)
	if strings.EqualFold(a.readLine("Apply this suggestion? [y/N]: "), "y") {
		if err := a.controller.ApplySuggestion(suggestion, a.lastResponse, *a.lastEvaluation); err != nil {
			fmt.Printf("Failed to apply suggestion: %v\n", err)
			return
		}
		a.lastResponse = ""
		a.lastEvaluation = nil
		fmt.Println("Suggestion applied. Process the new prompt (action 1) to see its effect.")
	} else {
		if err := a.controller.RecordContinuation(a.lastResponse, *a.lastEvaluation, session.ActionRejectedSuggestionKeptOld); err != nil {
			fmt.Printf("Failed to record rejection: %v\n", err)
		}
		fmt.Println("Suggestion not applied. Current prompt remains unchanged.")
	}
}

func (a *app) manualEdit() {
	edited := a.readLine("Enter the new prompt: ")
	if edited == "" || edited == a.controller.WorkingPrompt() {
		fmt.Println("Prompt not changed.")
		return
	}

	if err := a.controller.ApplyManualEdit(edited, a.lastResponse, a.lastEvaluation); err != nil {
		fmt.Printf("Failed to apply manual edit: %v\n", err)
		return
	}
	a.lastResponse = ""
	a.lastEvaluation = nil
	fmt.Println("Prompt manually updated. Process it (action 1) to see its effect.")
}

func (a *app) showHistory() {
	doc := a.ledger.LoadSession(a.controller.SessionID())
	if doc == nil {
		fmt.Println("Could not load session data for history view.")
		return
	}
	fmt.Printf("--- Session %s (%s, %d rounds) ---\n", doc.SessionID, doc.Status, len(doc.Rounds))
	for _, r := range doc.Rounds {
		fmt.Printf("Round %d [%s] action=%s\n  Prompt: %s\n  Response: %s\n",
			r.RoundNumber, r.Timestamp, r.UserAction, r.PromptUsed, r.LLMResponse)
		if r.ModificationSuggestion != "" {
			fmt.Printf("  Suggestion: %s\n", r.ModificationSuggestion)
		}
	}
}

func (a *app) endSession() {
	status := a.readLine("End session status [completed]: ")
	if status == "" {
		status = string(session.StatusCompleted)
	}
	sessionID := a.controller.SessionID()
	if err := a.controller.EndSession(session.Status(status)); err != nil {
		fmt.Printf("Failed to end session: %v\n", err)
		return
	}
	fmt.Printf("Session %s ended.\n", sessionID)
}

func (a *app) readLine(prompt string) string {
	fmt.Print(prompt)
	if !a.stdin.Scan() {
		return ""
	}
	return strings.TrimSpace(a.stdin.Text())
}
