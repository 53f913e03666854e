package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/idiolect/internal/config"
	"github.com/kalambet/idiolect/internal/style"
)

// --- learn ---

var learnCmd = &cobra.Command{
	Use:   "learn <style-key> [text...]",
	Short: "Log a message and learn from its style",
	Long: `Log a message and learn from its style.

The text is taken from the arguments, or from stdin when none are given.

Examples:
  idiolect learn alice "おはようございます。今日もよろしくね"
  echo "えっと、僕はそう思うよ" | idiolect learn alice`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		role, _ := cmd.Flags().GetString("role")

		text := strings.Join(args[1:], " ")
		if text == "" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			text = strings.TrimRight(string(data), "\n")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		res, err := sendMessage(cmd.Context(), client, messageLine{StyleKey: key, Role: role, Content: text})
		if err != nil {
			return err
		}
		if !res.Learned && role == "user" {
			printWarning("Saved message %s but the profile was not updated; run 'idiolect rebuild %s'", res.ID, key)
			return nil
		}
		if res.Learned {
			printSuccess("Learned from message %s (%d messages total)", res.ID, res.TotalMessages)
		} else {
			printSuccess("Saved message %s", res.ID)
		}
		return nil
	},
}

func init() {
	learnCmd.Flags().String("role", "user", `message role ("user" or "assistant")`)
}

type messageLine struct {
	StyleKey string `json:"style_key"`
	Role     string `json:"role,omitempty"`
	Content  string `json:"content"`
}

type messageResult struct {
	ID            string `json:"id"`
	Learned       bool   `json:"learned"`
	TotalMessages int    `json:"total_messages"`
}

func sendMessage(ctx context.Context, client *apiClient, m messageLine) (messageResult, error) {
	var res messageResult
	resp, err := client.post(ctx, "/messages", m)
	if err != nil {
		return res, err
	}
	err = decodeJSON(resp, &res)
	return res, err
}

// --- import ---

var importCmd = &cobra.Command{
	Use:   "import <file.jsonl>",
	Short: "Import a message history from JSON Lines",
	Long: `Import a message history from JSON Lines.

Each line is {"style_key": "...", "role": "user", "content": "..."}. Lines
without a style_key use --key. Use "-" to read from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defaultKey, _ := cmd.Flags().GetString("key")

		var r io.Reader = cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening import file: %w", err)
			}
			defer f.Close()
			r = f
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		stats, err := importMessages(cmd.Context(), client, r, defaultKey)
		if err != nil {
			return err
		}
		printSuccess("Imported %d messages (%d learned, %d skipped)", stats.saved, stats.learned, stats.skipped)
		if stats.saved > stats.learned+stats.assistant {
			printWarning("Some profiles were not updated; run 'idiolect rebuild --all'")
		}
		return nil
	},
}

func init() {
	importCmd.Flags().String("key", "", "style key for lines that do not name one")
}

type importStats struct {
	saved, learned, assistant, skipped int
}

func importMessages(ctx context.Context, client *apiClient, r io.Reader, defaultKey string) (importStats, error) {
	var stats importStats
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var m messageLine
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			printWarning("line %d: %v", lineNo, err)
			stats.skipped++
			continue
		}
		if m.StyleKey == "" {
			m.StyleKey = defaultKey
		}
		if m.StyleKey == "" {
			printWarning("line %d: no style_key and no --key given", lineNo)
			stats.skipped++
			continue
		}

		res, err := sendMessage(ctx, client, m)
		if err != nil {
			return stats, fmt.Errorf("line %d: %w", lineNo, err)
		}
		stats.saved++
		switch {
		case res.Learned:
			stats.learned++
		case m.Role == "assistant":
			stats.assistant++
		}
	}
	if err := sc.Err(); err != nil {
		return stats, fmt.Errorf("reading import: %w", err)
	}
	return stats, nil
}

// --- summary ---

var summaryCmd = &cobra.Command{
	Use:   "summary <style-key>",
	Short: "Show the ranked style summary for a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		asPrompt, _ := cmd.Flags().GetBool("prompt")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/styles/" + url.PathEscape(key) + "/summary"
		if asPrompt {
			resp, err := client.get(cmd.Context(), path+"?format=prompt")
			if err != nil {
				return err
			}
			var out struct {
				Prompt string `json:"prompt"`
			}
			if err := decodeJSON(resp, &out); err != nil {
				return err
			}
			fmt.Fprint(stdout, out.Prompt)
			return nil
		}

		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var s style.Summary
		if err := decodeJSON(resp, &s); err != nil {
			return err
		}
		if asJSON {
			return printJSON(s)
		}
		printSummary(key, s)
		return nil
	},
}

func init() {
	summaryCmd.Flags().Bool("prompt", false, "print the summary as a system prompt block")
	summaryCmd.Flags().Bool("json", false, "print the summary as JSON")
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect raw style profiles",
}

var profileShowCmd = &cobra.Command{
	Use:   "show <style-key>",
	Short: "Show the full profile document as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/styles/"+url.PathEscape(args[0])+"/profile")
		if err != nil {
			return err
		}

		var profile style.Profile
		if err := decodeJSON(resp, &profile); err != nil {
			return err
		}
		return printJSON(profile)
	},
}

func init() {
	profileCmd.AddCommand(profileShowCmd)
}

// --- styles ---

var stylesCmd = &cobra.Command{
	Use:   "styles",
	Short: "List style keys with a learned profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/styles")
		if err != nil {
			return err
		}
		var keys []string
		if err := decodeJSON(resp, &keys); err != nil {
			return err
		}
		if len(keys) == 0 {
			fmt.Fprintln(stdout, "No style profiles yet.")
			return nil
		}
		for _, k := range keys {
			fmt.Fprintln(stdout, k)
		}
		return nil
	},
}

// --- rebuild ---

var rebuildCmd = &cobra.Command{
	Use:   "rebuild [style-key]",
	Short: "Recompute profiles from the logged message history",
	Long: `Recompute profiles from the logged message history.

By default the rebuild is queued for the background worker. With --wait the
command blocks until the new profile is saved.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		wait, _ := cmd.Flags().GetBool("wait")

		if all == (len(args) == 1) {
			return fmt.Errorf("give either a style key or --all")
		}

		path := "/styles/rebuild"
		if !all {
			path = "/styles/" + url.PathEscape(args[0]) + "/rebuild"
		}
		if wait {
			path += "?wait=true"
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), path, nil)
		if err != nil {
			return err
		}

		switch {
		case !wait:
			var job struct {
				ID string `json:"id"`
			}
			if err := decodeJSON(resp, &job); err != nil {
				return err
			}
			printSuccess("Queued rebuild job %s", job.ID)
		case all:
			var out struct {
				Rebuilt []string `json:"rebuilt"`
			}
			if err := decodeJSON(resp, &out); err != nil {
				return err
			}
			printSuccess("Rebuilt %d profiles", len(out.Rebuilt))
		default:
			var p style.Profile
			if err := decodeJSON(resp, &p); err != nil {
				return err
			}
			printSuccess("Rebuilt %s from %d messages", args[0], p.TotalMessages)
		}
		return nil
	},
}

func init() {
	rebuildCmd.Flags().Bool("all", false, "rebuild every known style key")
	rebuildCmd.Flags().Bool("wait", false, "wait for the rebuild to finish")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(stdout, "  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "$"+k.EnvVar))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.ValidKeys(), ", "))
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
