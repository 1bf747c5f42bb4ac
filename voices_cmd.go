package main

import (
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/orate/internal/openai"
)

var voicesCmd = &cobra.Command{
	Use:   "voices [QUERY]",
	Short: "List available voices, models, and formats",
	Long: paragraph(fmt.Sprintf(
		"\nList everything the speech API can be asked for. An optional query %s the lists.",
		keyword("fuzzy-filters"))),
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := ""
		if len(args) == 1 {
			query = args[0]
		}

		out := cmd.OutOrStdout()
		sections := []struct {
			name  string
			items []string
		}{
			{"Voices", openai.Voices},
			{"Models", openai.Models},
			{"Formats", openai.Formats},
		}

		printed := false
		for _, sec := range sections {
			items := filterItems(sec.items, query)
			if len(items) == 0 {
				continue
			}
			if printed {
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "%s\n", sec.name)
			for _, item := range items {
				note := ""
				if sec.name == "Models" && openai.SupportsInstructions(item) {
					note = "  (supports instructions)"
				}
				fmt.Fprintf(out, "  %s%s\n", item, note)
			}
			printed = true
		}
		if !printed {
			return fmt.Errorf("nothing matches %q", query)
		}
		return nil
	},
}

// filterItems fuzzy-matches items against query, keeping the original
// order when the query is empty.
func filterItems(items []string, query string) []string {
	query = strings.TrimSpace(query)
	if query == "" {
		return items
	}
	matches := fuzzy.Find(query, items)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Str)
	}
	return out
}
