package cmd

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dhcgn/rawmail/filter"
	"github.com/dhcgn/rawmail/mbox"
	"github.com/dhcgn/rawmail/model"
	"github.com/dhcgn/rawmail/parser"
	"github.com/dhcgn/rawmail/stats"
)

var (
	reportDir     string
	topN          int
	includeHeader []string
	includeBody   []string
	excludeHeader []string
	excludeBody   []string
)

// Categories tracked by mbox-stats, in print order.
const (
	catFrom        = "From"
	catTo          = "To"
	catSubject     = "Subject"
	catContentType = "Content-Type"
	catCharset     = "Charset"
	catEncoding    = "Transfer-Encoding"
	catParseError  = "Parse-Error"
)

var trackedCategories = []string{catFrom, catTo, catSubject, catContentType, catCharset, catEncoding, catParseError}

var mboxStatsCmd = &cobra.Command{
	Use:   "mbox-stats [mbox file]",
	Short: "Parse the mbox file and show statistics about senders and MIME structure",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mboxPath := args[0]
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, "Analyzing mbox file:", mboxPath)

		includeActive := len(includeHeader) > 0 || len(includeBody) > 0
		excludeActive := len(excludeHeader) > 0 || len(excludeBody) > 0
		if includeActive && excludeActive {
			return fmt.Errorf("include and exclude flags are mutually exclusive")
		}

		f, err := filter.New(filter.Options{
			IncludeHeader: includeHeader,
			IncludeBody:   includeBody,
			ExcludeHeader: excludeHeader,
			ExcludeBody:   excludeBody,
		})
		if err != nil {
			return fmt.Errorf("create filter: %w", err)
		}

		counter := newCounter()
		messageCount := 0
		skippedCount := 0
		printStats := func() {
			// ANSI escape code to clear screen and move cursor to top-left
			fmt.Fprint(out, "\033[H\033[2J")
			totalMessages := messageCount + skippedCount
			var filterPercent float64
			if totalMessages > 0 {
				filterPercent = float64(skippedCount) / float64(totalMessages) * 100
			}
			fmt.Fprintf(out, "Processed %d messages (skipped %d by filters, %.2f%%)...\n\n", messageCount, skippedCount, filterPercent)

			printFilterStats(out, f.Stats())

			for _, category := range trackedCategories {
				if len(counter[category]) == 0 {
					continue
				}
				fmt.Fprintf(out, "Top %d %s:\n", topN, category)
				stats.PrettyPrintTop(out, counter[category], topN)
				fmt.Fprintln(out)
			}
		}

		err = mbox.Read(mboxPath, func(item model.Item) error {
			if !f.Allows(item.Message) {
				skippedCount++
				return nil
			}

			messageCount++
			counter.add(item)

			if messageCount%250 == 0 {
				printStats()
			}

			return nil
		})

		if err != nil {
			return fmt.Errorf("error reading mbox file: %w", err)
		}

		printStats()

		if err := saveCSVReports(counter, trackedCategories, reportDir, 1000); err != nil {
			return fmt.Errorf("error saving CSV reports: %w", err)
		}

		fmt.Fprintf(out, "\nReports saved to directory: %s\n", reportDir)

		return nil
	},
}

func init() {
	mboxStatsCmd.Flags().StringVarP(&reportDir, "output", "o", ".", "Output directory for CSV reports")
	mboxStatsCmd.Flags().IntVarP(&topN, "top", "t", 10, "Number of top items to display in statistics")
	mboxStatsCmd.Flags().StringArrayVar(&includeHeader, "include-header", nil, "Regex allow-list applied to message headers (mutually exclusive with exclude flags)")
	mboxStatsCmd.Flags().StringArrayVar(&includeBody, "include-body", nil, "Regex allow-list applied to message text parts (mutually exclusive with exclude flags)")
	mboxStatsCmd.Flags().StringArrayVar(&excludeHeader, "exclude-header", nil, "Regex block-list applied to message headers (mutually exclusive with include flags)")
	mboxStatsCmd.Flags().StringArrayVar(&excludeBody, "exclude-body", nil, "Regex block-list applied to message text parts (mutually exclusive with include flags)")
	rootCmd.AddCommand(mboxStatsCmd)
}

// counter maps a category to value frequencies.
type counter map[string]map[string]int

func newCounter() counter {
	c := make(counter, len(trackedCategories))
	for _, category := range trackedCategories {
		c[category] = make(map[string]int)
	}
	return c
}

// add counts the envelope headers of item and the content type, charset and
// transfer encoding of every leaf part.
func (c counter) add(item model.Item) {
	msg := item.Message
	if msg.FromAddress != "" {
		c[catFrom][msg.FromAddress]++
	}
	if to := msg.To(); to != "" {
		c[catTo][to]++
	}
	if subject := msg.Subject(); subject != "" {
		c[catSubject][subject]++
	}

	msg.Walk(func(p *model.Message) bool {
		if p.ContentType == nil || p.IsMultipart() {
			return true
		}
		c[catContentType][p.ContentType.Type]++
		if charset := p.ContentType.Charset(); charset != "" {
			c[catCharset][strings.ToLower(charset)]++
		}
		encoding := "7bit"
		if cte := p.TransferEncoding(); cte != "" {
			encoding = strings.ToLower(cte)
		}
		c[catEncoding][encoding]++
		return true
	})

	if item.Err != nil {
		kind := item.Err.Error()
		var perr *parser.ParseError
		if errors.As(item.Err, &perr) {
			kind = perr.Err.Error()
		}
		c[catParseError][kind]++
	}
}

func printFilterStats(out io.Writer, st filter.Stats) {
	groups := []struct {
		title    string
		patterns []string
		hits     map[string]int
	}{
		{"Include Header Filters", st.IncludeHeaderPatterns, st.IncludeHeaderHits},
		{"Include Body Filters", st.IncludeBodyPatterns, st.IncludeBodyHits},
		{"Exclude Header Filters", st.ExcludeHeaderPatterns, st.ExcludeHeaderHits},
		{"Exclude Body Filters", st.ExcludeBodyPatterns, st.ExcludeBodyHits},
	}

	hasFilterStats := false
	for _, g := range groups {
		if len(g.patterns) == 0 {
			continue
		}
		hasFilterStats = true
		fmt.Fprintf(out, "%s:\n", g.title)
		printFilterHits(out, g.patterns, g.hits)
		fmt.Fprintln(out)
	}

	if hasFilterStats {
		fmt.Fprintln(out, "---")
		fmt.Fprintln(out)
	}
}

// saveCSVReports writes one report_<category>.csv per category with the
// limit most frequent values.
func saveCSVReports(counter counter, categories []string, dir string, limit int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, category := range categories {
		path := filepath.Join(dir, fmt.Sprintf("report_%s.csv", normalizeHeaderName(category)))
		if err := writeCSVReport(path, stats.Top(counter[category], limit)); err != nil {
			return fmt.Errorf("%s report: %w", category, err)
		}
	}
	return nil
}

func writeCSVReport(path string, counts []stats.Count) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"Value", "Count"}); err != nil {
		return err
	}
	for _, c := range counts {
		if err := writer.Write([]string{c.Key, strconv.Itoa(c.N)}); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Close()
}

func normalizeHeaderName(header string) string {
	// Convert to lowercase and replace invalid filename chars
	name := strings.ToLower(header)
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, " ", "_")
	return name
}

func printFilterHits(out io.Writer, patterns []string, hits map[string]int) {
	// Sort by hit count descending
	type pair struct {
		Pattern string
		Count   int
		HasHits bool
	}
	var pairs []pair

	// Add all patterns with their hit counts
	for _, pattern := range patterns {
		count := hits[pattern]
		pairs = append(pairs, pair{pattern, count, count > 0})
	}

	sort.Slice(pairs, func(i, j int) bool {
		// Sort by hit count descending, then by pattern
		if pairs[i].Count != pairs[j].Count {
			return pairs[i].Count > pairs[j].Count
		}
		return pairs[i].Pattern < pairs[j].Pattern
	})

	for _, p := range pairs {
		if p.HasHits {
			fmt.Fprintf(out, "  ✓ %s: %d hits\n", p.Pattern, p.Count)
		} else {
			fmt.Fprintf(out, "  ✗ %s: 0 hits\n", p.Pattern)
		}
	}
}
