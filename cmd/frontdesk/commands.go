package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/frontdesk/internal/config"
	"github.com/kalambet/frontdesk/internal/ingest"
	"github.com/kalambet/frontdesk/internal/knowledge"
	"github.com/kalambet/frontdesk/internal/ollama"
)

// sampleKnowledge is the starter corpus for a fresh install.
var sampleKnowledge = []string{
	"Basic haircut for men costs $20.",
	"Haircut and styling for women starts at $30.",
	"Hair coloring services range from $50 to $120 depending on length.",
	"Hair wash and scalp massage costs $10.",
	"Salon is open from 9 AM to 6 PM, Monday through Saturday.",
	"Located at 123 Main Street, Springfield.",
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the knowledge base",
	Long: `Seed the knowledge base with documents.

Without flags, loads a small sample corpus. With --file, ingests the file
paragraph by paragraph (.txt, .md, .pdf, and .html are supported).

The server must be stopped: seeding writes the index files directly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		if serverRunning(cfg.Server.Port) {
			printWarning("frontdesk is running; stop it before seeding")
			return fmt.Errorf("server running on port %d", cfg.Server.Port)
		}

		texts := sampleKnowledge
		if file != "" {
			content, err := ingest.ExtractText(file)
			if err != nil {
				return err
			}
			texts = ingest.Paragraphs(content)
			if len(texts) == 0 {
				return fmt.Errorf("no text found in %s", file)
			}
		}

		ctx := context.Background()
		ollamaClient := ollama.New(cfg.Ollama.BaseURL)
		if cfg.Ollama.Username != "" {
			ollamaClient.WithBasicAuth(cfg.Ollama.Username, cfg.Ollama.Password)
		}
		if !ollamaClient.IsRunning(ctx) {
			return fmt.Errorf("Ollama is not running. Start it with: ollama serve")
		}

		embedder := knowledge.NewEmbedder(ollamaClient, cfg.Ollama.EmbedModel)
		kb, err := knowledge.Open(embedder, cfg.Retrieval.Dimension, cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening knowledge base: %w", err)
		}

		ids, err := kb.AddBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("seeding knowledge base: %w", err)
		}

		printSuccess("Seeded %d documents (total %d)", len(ids), kb.Count())
		return nil
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the receptionist a question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		question := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/query", map[string]string{
			"user_id": user,
			"message": question,
		})
		if err != nil {
			return err
		}

		var result struct {
			Status  string `json:"status"`
			Answer  string `json:"answer"`
			Message string `json:"message"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		switch result.Status {
		case "answered", "resolved_from_supervisor":
			fmt.Println(result.Answer)
		case "escalated":
			printWarning("%s", result.Message)
			fmt.Fprintf(cmd.ErrOrStderr(), "Check back with: frontdesk ask --user %s \"anything\"\n", user)
		default:
			fmt.Println(result.Message)
		}
		return nil
	},
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List questions awaiting a supervisor answer",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/pending")
		if err != nil {
			return err
		}

		var pending map[string]struct {
			UserID   string `json:"user_id"`
			Question string `json:"question"`
		}
		if err := decodeJSON(resp, &pending); err != nil {
			return err
		}

		if len(pending) == 0 {
			fmt.Println("No pending requests.")
			return nil
		}

		for id, req := range pending {
			fmt.Printf("%s  %s  %s\n",
				colorize(colorCyan, "#"+id),
				req.UserID,
				req.Question,
			)
		}
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <request-id> <answer>",
	Short: "Answer an escalated question as the supervisor",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var id int64
		if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
			return fmt.Errorf("invalid request id %q", args[0])
		}
		rawAnswer := strings.Join(args[1:], " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/supervisor/respond", map[string]any{
			"request_id": id,
			"answer":     rawAnswer,
		})
		if err != nil {
			return err
		}

		var result struct {
			Status        string `json:"status"`
			RefinedAnswer string `json:"refined_answer"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Request %d resolved", id)
		fmt.Println(result.RefinedAnswer)
		return nil
	},
}

func init() {
	seedCmd.Flags().String("file", "", "file to ingest (.txt, .md, .pdf, .html)")
	askCmd.Flags().String("user", "cli", "user id for the conversation")
}
