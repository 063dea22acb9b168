package main

import (
	"context"
	"fmt"
	"os"
	"time"

	anamnesis "github.com/aria-companion/anamnesis"
	"github.com/spf13/cobra"
)

var (
	dbPath     string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "anamnesis",
	Short: "Administrative CLI for the anamnesis memory substrate",
	Long:  `Inspect, prune, and forecast episodic memory stored in an anamnesis database.`,
}

func openCompanion() (*anamnesis.Companion, error) {
	cfg := anamnesis.Config{
		DBPath:          dbPath,
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
	}

	if configPath != "" {
		fileCfg, err := anamnesis.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = fileCfg
	}

	return anamnesis.Open(context.Background(), cfg)
}

var rememberCmd = &cobra.Command{
	Use:   "remember <user-text> <assistant-text>",
	Short: "Store a conversation turn as an episodic memory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		satisfaction, _ := cmd.Flags().GetFloat64("satisfaction")

		c, err := openCompanion()
		if err != nil {
			return fmt.Errorf("open companion: %w", err)
		}
		defer c.Close()

		id, err := c.Episodic.Store(cmd.Context(), args[0], args[1], satisfaction)
		if err != nil {
			return fmt.Errorf("store episode: %w", err)
		}

		// Best-effort fan-out per spec.md §2: extraction augments the graph
		// and wiki opportunistically and must never fail the remember call.
		if err := c.GraphExtract.Extract(cmd.Context(), id, args[0], args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "graph extraction for episode %s: %v\n", id, err)
		}
		if _, err := c.Wiki.LearnFromTurn(cmd.Context(), id, id, args[0], args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "wiki learn for episode %s: %v\n", id, err)
		}

		fmt.Println(id)
		return nil
	},
}

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Retrieve the top-k semantically relevant memories",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topK, _ := cmd.Flags().GetInt("top-k")

		c, err := openCompanion()
		if err != nil {
			return fmt.Errorf("open companion: %w", err)
		}
		defer c.Close()

		episodes, err := c.Retrieval.Semantic(cmd.Context(), args[0], topK)
		if err != nil {
			return fmt.Errorf("retrieve: %w", err)
		}
		for _, r := range episodes {
			fmt.Printf("%s  [%.3f]  %s -> %s\n", r.Episode.ID, r.Cosine, r.Episode.UserText, r.Episode.AssistantText)
		}
		return nil
	},
}

var forecastCmd = &cobra.Command{
	Use:   "forecast <episode-id>",
	Short: "Project an episode's retention curve forward",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		horizon, _ := cmd.Flags().GetInt("horizon-days")

		c, err := openCompanion()
		if err != nil {
			return fmt.Errorf("open companion: %w", err)
		}
		defer c.Close()

		current, trajectory, err := c.Temporal.Forecast(args[0], horizon, time.Now())
		if err != nil {
			return fmt.Errorf("forecast: %w", err)
		}
		fmt.Printf("current retention: %.4f\n", current)
		for _, p := range trajectory {
			fmt.Printf("  +%dd  %.4f\n", int(p.DaysFromNow.Hours()/24), p.Retention)
		}
		return nil
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete non-pinned episodes below a retention threshold",
	RunE: func(cmd *cobra.Command, args []string) error {
		threshold, _ := cmd.Flags().GetFloat64("threshold")

		c, err := openCompanion()
		if err != nil {
			return fmt.Errorf("open companion: %w", err)
		}
		defer c.Close()

		n, err := c.Temporal.Prune(threshold)
		if err != nil {
			return fmt.Errorf("prune: %w", err)
		}
		fmt.Printf("pruned %d episodes\n", n)
		return nil
	},
}

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Run one memory consolidation pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCompanion()
		if err != nil {
			return fmt.Errorf("open companion: %w", err)
		}
		defer c.Close()

		report, err := c.Consolidator.Run(cmd.Context())
		if err != nil {
			return fmt.Errorf("consolidate: %w", err)
		}
		fmt.Printf("clusters formed: %d, episodes merged: %d, kept: %d\n",
			report.ClustersFormed, report.EpisodesMerged, report.EpisodesKept)
		return nil
	},
}

var personaCmd = &cobra.Command{
	Use:   "persona",
	Short: "Print the current persona vector and system-prompt rendering",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCompanion()
		if err != nil {
			return fmt.Errorf("open companion: %w", err)
		}
		defer c.Close()

		p, err := c.Persona.Current()
		if err != nil {
			return fmt.Errorf("load persona: %w", err)
		}
		fmt.Println(anamnesis.RenderSystemPrompt(p))
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "./data/anamnesis.db", "path to the anamnesis SQLite database")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (overrides --db and API key env vars)")

	rememberCmd.Flags().Float64("satisfaction", 0.5, "satisfaction score for this turn (0.0-1.0)")
	recallCmd.Flags().Int("top-k", 5, "number of results to return")
	forecastCmd.Flags().Int("horizon-days", 30, "how many days ahead to project")
	pruneCmd.Flags().Float64("threshold", 0.1, "retention score below which episodes are deleted")

	rootCmd.AddCommand(rememberCmd, recallCmd, forecastCmd, pruneCmd, consolidateCmd, personaCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
