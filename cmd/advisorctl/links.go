package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohamadbazzy/Agentic-Rag/internal/calendar"
	"github.com/mohamadbazzy/Agentic-Rag/internal/domain"
)

var (
	linksTimeZone string
	linksJSON     bool
)

var linksCmd = &cobra.Command{
	Use:   "links <schedule.json|->",
	Short: "Print Google Calendar links for a schedule",
	Long: `Read a structured schedule and print one pre-filled Google Calendar link per
weekly meeting. Overlapping meetings are reported. Use "-" to read stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runLinks,
}

func init() {
	linksCmd.Flags().StringVar(&linksTimeZone, "timezone", "Asia/Beirut", "time zone of the meeting times")
	linksCmd.Flags().BoolVar(&linksJSON, "json", false, "print links and conflicts as JSON")
	rootCmd.AddCommand(linksCmd)
}

func readSchedule(path string, stdin io.Reader) (*domain.StructuredSchedule, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read schedule: %w", err)
	}
	var s domain.StructuredSchedule
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse schedule: %w", err)
	}
	s.Normalize()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func runLinks(cmd *cobra.Command, args []string) error {
	loc, err := time.LoadLocation(linksTimeZone)
	if err != nil {
		return fmt.Errorf("invalid --timezone: %w", err)
	}
	s, err := readSchedule(args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}

	links := calendar.Links(s, time.Now(), loc)
	conflicts := calendar.InternalConflicts(s)
	out := cmd.OutOrStdout()

	if linksJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"links": links, "conflicts": conflicts})
	}
	for _, l := range links {
		fmt.Fprintf(out, "%s  %s %s\n  %s\n", l.Course, l.Day, l.Time, l.URL)
	}
	for _, c := range conflicts {
		fmt.Fprintf(out, "Overlap on %s: %s (%s) and %s (%s)\n", c.Day, c.First, c.FirstTime, c.Second, c.SecondTime)
	}
	return nil
}
