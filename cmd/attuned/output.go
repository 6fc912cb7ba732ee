// ABOUTME: Output rendering for the attuned CLI
// ABOUTME: pretty uses tabwriter and color, json is indented, quiet prints the bare minimum

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/attuned-gateway/internal/client"
	"github.com/2389/attuned-gateway/internal/health"
	"github.com/2389/attuned-gateway/internal/infer"
	"github.com/2389/attuned-gateway/internal/state"
	"github.com/2389/attuned-gateway/internal/translate"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sortedAxes(axes map[string]float64) []string {
	names := make([]string, 0, len(axes))
	for name := range axes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func printAxes(w io.Writer, axes map[string]float64) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, name := range sortedAxes(axes) {
		fmt.Fprintf(tw, "  %s\t%.2f\n", name, axes[name])
	}
	tw.Flush()
}

func printState(w io.Writer, s *client.State) {
	cyan := color.New(color.FgCyan)

	fmt.Fprintln(w)
	cyan.Fprintf(w, "  %s\n", s.UserID)
	cyan.Fprintln(w, "  "+strings.Repeat("-", len(s.UserID)))
	fmt.Fprintf(w, "  Updated:    %s\n", s.UpdatedAt().Local().Format(time.DateTime))
	fmt.Fprintf(w, "  Source:     %s\n", s.Source)
	fmt.Fprintf(w, "  Confidence: %.2f\n", s.Confidence)
	fmt.Fprintln(w)
	if len(s.Axes) == 0 {
		fmt.Fprintln(w, "  (no axes)")
	} else {
		printAxes(w, s.Axes)
	}
	fmt.Fprintln(w)
}

func printHistory(w io.Writer, h *client.History) {
	if len(h.Snapshots) == 0 {
		fmt.Fprintf(w, "No history for %s\n", h.UserID)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  UPDATED\tSOURCE\tCONFIDENCE\tAXES")
	fmt.Fprintln(tw, "  -------\t------\t----------\t----")
	for _, s := range h.Snapshots {
		parts := make([]string, 0, len(s.Axes))
		for _, name := range sortedAxes(s.Axes) {
			parts = append(parts, fmt.Sprintf("%s=%.2f", name, s.Axes[name]))
		}
		fmt.Fprintf(tw, "  %s\t%s\t%.2f\t%s\n",
			s.UpdatedAt().Local().Format("Jan 02 15:04:05"), s.Source, s.Confidence, strings.Join(parts, " "))
	}
	tw.Flush()
}

func printPromptContext(w io.Writer, pc *translate.PromptContext) {
	yellow := color.New(color.FgYellow)

	fmt.Fprintf(w, "Tone:      %s\n", pc.Tone)
	fmt.Fprintf(w, "Verbosity: %s\n", pc.Verbosity)
	if len(pc.Flags) > 0 {
		fmt.Fprint(w, "Flags:     ")
		yellow.Fprintln(w, strings.Join(pc.Flags, ", "))
	}
	if len(pc.Guidelines) > 0 {
		fmt.Fprintln(w, "Guidelines:")
		for _, g := range pc.Guidelines {
			fmt.Fprintf(w, "  - %s\n", g)
		}
	}
}

func printEstimates(w io.Writer, res *client.InferResult) {
	if len(res.Estimates) == 0 {
		fmt.Fprintln(w, "No estimates (message too short or no signal)")
	} else {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  AXIS\tVALUE\tCONFIDENCE\tFEATURES")
		fmt.Fprintln(tw, "  ----\t-----\t----------\t--------")
		for _, e := range res.Estimates {
			fmt.Fprintf(tw, "  %s\t%.2f\t%.2f\t%s\n", e.Axis, e.Value, e.Confidence, strings.Join(e.Source.FeaturesUsed, ","))
		}
		tw.Flush()
	}

	if res.Features != nil {
		fmt.Fprintln(w)
		printFeatures(w, res.Features)
	}
}

func printFeatures(w io.Writer, f *infer.Features) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  words\t%d\n", f.WordCount)
	fmt.Fprintf(tw, "  sentences\t%d\n", f.SentenceCount)
	fmt.Fprintf(tw, "  hedges\t%d\n", f.HedgeCount)
	fmt.Fprintf(tw, "  urgency words\t%d\n", f.UrgencyWordCount)
	fmt.Fprintf(tw, "  negative emotion\t%d\n", f.NegativeEmotionCount)
	fmt.Fprintf(tw, "  politeness\t%d\n", f.PolitenessCount)
	fmt.Fprintf(tw, "  exclamation ratio\t%.2f\n", f.ExclamationRatio)
	fmt.Fprintf(tw, "  question ratio\t%.2f\n", f.QuestionRatio)
	fmt.Fprintf(tw, "  caps ratio\t%.2f\n", f.CapsRatio)
	tw.Flush()
}

func printAxisList(w io.Writer, axes []state.Axis) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  NAME\tCATEGORY\tDESCRIPTION")
	fmt.Fprintln(tw, "  ----\t--------\t-----------")
	for _, a := range axes {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", a.Name, a.Category, a.Description)
	}
	tw.Flush()
}

func printHealth(w io.Writer, st *health.Status) {
	var status string
	switch st.Status {
	case health.Healthy:
		status = color.GreenString(string(st.Status))
	case health.Degraded:
		status = color.YellowString(string(st.Status))
	default:
		status = color.RedString(string(st.Status))
	}

	fmt.Fprintf(w, "Status:  %s\n", status)
	if st.Version != "" {
		fmt.Fprintf(w, "Version: %s\n", st.Version)
	}
	fmt.Fprintf(w, "Uptime:  %s\n", time.Duration(st.UptimeSeconds)*time.Second)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, c := range st.Components {
		fmt.Fprintf(tw, "  %s\t%s\t%dms\t%s\n", c.Name, c.State, c.LatencyMs, c.Message)
	}
	tw.Flush()
}
