package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/frontdesk/internal/knowledge"
)

// Generator maps a prompt to generated text. Failures are typed errors
// (ollama.ErrUnavailable from the default backend), never sentinel text
// masquerading as an answer.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GenerateClient is the backend capability the default Generator needs.
// Satisfied by *ollama.Client.
type GenerateClient interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// llmGenerator binds a GenerateClient to a fixed model name.
type llmGenerator struct {
	client GenerateClient
	model  string
}

// NewGenerator creates a Generator using the given client and model name.
func NewGenerator(client GenerateClient, model string) Generator {
	return &llmGenerator{client: client, model: model}
}

func (g *llmGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.client.Generate(ctx, g.model, prompt)
}

// Retriever is the slice of the knowledge store the Answerer needs.
type Retriever interface {
	Query(ctx context.Context, text string, k int) ([]knowledge.Result, error)
}

// Reply is a generated answer plus its confidence classification.
type Reply struct {
	Text      string
	Confident bool
}

// Answerer builds retrieval-augmented prompts, invokes the generator, and
// classifies results. Retrieval holds the store's read lock internally;
// by the time generation runs, no lock is held, so slow generations never
// block unrelated queries.
type Answerer struct {
	generator  Generator
	retriever  Retriever
	classifier Classifier
	topK       int
	timeout    time.Duration
	logger     *slog.Logger
}

// New creates an Answerer. topK bounds retrieved context documents and
// timeout bounds each generation call; zero values fall back to 50 and 60s.
func New(generator Generator, retriever Retriever, classifier Classifier, topK int, timeout time.Duration) *Answerer {
	if topK <= 0 {
		topK = 50
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Answerer{
		generator:  generator,
		retriever:  retriever,
		classifier: classifier,
		topK:       topK,
		timeout:    timeout,
		logger:     slog.Default(),
	}
}

// Answer retrieves context for the question, generates a reply, and
// classifies it. A retrieval failure degrades to the empty-corpus
// placeholder; a generation failure is returned as a typed error for the
// caller to map onto the escalation path.
func (a *Answerer) Answer(ctx context.Context, question string) (Reply, error) {
	chunks, err := a.retriever.Query(ctx, question, a.topK)
	if err != nil {
		// The question can still be answered from the model's general
		// knowledge or escalated; don't fail the query over retrieval.
		a.logger.Warn("context retrieval failed, answering without context", "error", err)
		chunks = nil
	}

	text, err := a.generate(ctx, buildAnswerPrompt(question, chunks))
	if err != nil {
		return Reply{}, err
	}

	return Reply{
		Text:      text,
		Confident: !a.classifier.Escalates(text),
	}, nil
}

// Refine rewrites a raw supervisor answer into a polished reply. No
// escalation classification is applied to the output.
func (a *Answerer) Refine(ctx context.Context, question, supervisorAnswer string) (string, error) {
	text, err := a.generate(ctx, buildRefinePrompt(question, supervisorAnswer))
	if err != nil {
		return "", fmt.Errorf("refining supervisor answer: %w", err)
	}
	return text, nil
}

// Polish wraps ad hoc text in the polish prompt and generates. Used by the
// preview endpoint.
func (a *Answerer) Polish(ctx context.Context, text string) (string, error) {
	out, err := a.generate(ctx, buildPolishPrompt(text))
	if err != nil {
		return "", fmt.Errorf("polishing text: %w", err)
	}
	return out, nil
}

func (a *Answerer) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	text, err := a.generator.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
