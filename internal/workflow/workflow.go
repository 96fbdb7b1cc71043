// Package workflow orchestrates the question lifecycle: answer directly,
// or escalate to a supervisor and deliver the resolution back to the user.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/frontdesk/internal/answer"
	"github.com/kalambet/frontdesk/internal/escalation"
	"github.com/kalambet/frontdesk/internal/storage"
)

// Query outcome statuses exposed on the wire.
const (
	StatusAnswered               = "answered"
	StatusEscalated              = "escalated"
	StatusResolvedFromSupervisor = "resolved_from_supervisor"
	StatusNoUpdate               = "no_update"
)

const (
	escalatedMessage    = "Let me check with my supervisor and get back to you."
	resolvedMessage     = "Supervisor provided a final answer."
	learnedRecordFormat = "Q: %s A: %s"
)

// QuestionAnswerer is the slice of the answerer the workflow needs.
type QuestionAnswerer interface {
	Answer(ctx context.Context, question string) (answer.Reply, error)
	Refine(ctx context.Context, question, supervisorAnswer string) (string, error)
}

// Learner feeds refined answers back into the knowledge base.
type Learner interface {
	Add(ctx context.Context, text string) (int64, error)
}

// QueryResult is the outcome of a user query or update poll.
type QueryResult struct {
	Status  string
	Answer  string
	Message string
}

// Workflow drives a question through
// NEW → (ANSWERED | ESCALATED) and ESCALATED → RESOLVED → NOTIFIED.
// Once a request is RESOLVED a notification is always published, falling
// back to the raw supervisor answer if refinement fails.
type Workflow struct {
	answerer QuestionAnswerer
	registry *escalation.Registry
	learner  Learner
	logger   *slog.Logger
}

// New creates a Workflow over the given collaborators.
func New(answerer QuestionAnswerer, registry *escalation.Registry, learner Learner) *Workflow {
	return &Workflow{
		answerer: answerer,
		registry: registry,
		learner:  learner,
		logger:   slog.Default(),
	}
}

// HandleQuery routes a user question. A pending notification for the user
// takes priority over generating a fresh answer; otherwise the question is
// answered directly when confident, or escalated. A generator outage also
// escalates: the human path must stay available when the model is down,
// and queries never hard-fail.
func (w *Workflow) HandleQuery(ctx context.Context, userID, text string) (QueryResult, error) {
	if refined, ok := w.registry.ConsumeNotification(userID); ok {
		return QueryResult{
			Status:  StatusResolvedFromSupervisor,
			Answer:  refined,
			Message: resolvedMessage,
		}, nil
	}

	reply, err := w.answerer.Answer(ctx, text)
	if err != nil {
		w.logger.Warn("answer generation failed, escalating", "user_id", userID, "error", err)
		return w.escalate(userID, text)
	}

	if !reply.Confident {
		return w.escalate(userID, text)
	}

	return QueryResult{Status: StatusAnswered, Answer: reply.Text}, nil
}

func (w *Workflow) escalate(userID, text string) (QueryResult, error) {
	id, err := w.registry.Create(userID, text)
	if err != nil {
		return QueryResult{}, fmt.Errorf("creating help request: %w", err)
	}
	w.logger.Info("question escalated", "request_id", id, "user_id", userID)
	// The generated text is withheld from the asker on escalation.
	return QueryResult{Status: StatusEscalated, Message: escalatedMessage}, nil
}

// HandleSupervisorResponse resolves a pending request, refines the raw
// answer, teaches the knowledge base, and queues a notification for the
// asking user. Returns the refined answer. Unknown ids surface
// storage.ErrNotFound.
//
// Refinement and learning are best-effort: a refine failure falls back to
// the trimmed raw answer, and a learning failure is logged. Neither may
// drop the resolution or its notification.
func (w *Workflow) HandleSupervisorResponse(ctx context.Context, requestID int64, rawAnswer string) (string, error) {
	req, err := w.registry.Resolve(requestID, rawAnswer)
	if err != nil {
		return "", err
	}

	refined, err := w.answerer.Refine(ctx, req.Question, rawAnswer)
	if err != nil {
		w.logger.Warn("refinement failed, using raw supervisor answer", "request_id", requestID, "error", err)
		refined = strings.TrimSpace(rawAnswer)
	}

	if err := w.registry.SetRefined(requestID, refined); err != nil {
		w.logger.Warn("storing refined answer failed", "request_id", requestID, "error", err)
	}

	record := fmt.Sprintf(learnedRecordFormat, req.Question, refined)
	if _, err := w.learner.Add(ctx, record); err != nil {
		w.logger.Warn("learning from resolution failed", "request_id", requestID, "error", err)
	}

	w.registry.PublishNotification(req.UserID, refined)
	w.logger.Info("request resolved", "request_id", requestID, "user_id", req.UserID)
	return refined, nil
}

// CheckUpdates pops the pending notification for the user, if any.
func (w *Workflow) CheckUpdates(userID string) QueryResult {
	refined, ok := w.registry.ConsumeNotification(userID)
	if !ok {
		return QueryResult{Status: StatusNoUpdate}
	}
	return QueryResult{
		Status:  StatusResolvedFromSupervisor,
		Answer:  refined,
		Message: resolvedMessage,
	}
}

// ListPending returns all pending help requests.
func (w *Workflow) ListPending() ([]storage.HelpRequest, error) {
	return w.registry.ListPending()
}

// DeletePending removes a request administratively, independent of
// resolution. The id is never reissued.
func (w *Workflow) DeletePending(requestID int64) error {
	return w.registry.Delete(requestID)
}
