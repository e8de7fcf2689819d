package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/cbout22/assetsync/internal/syncer"
)

var (
	successColor = color.New(color.FgGreen)
	skippedColor = color.New(color.FgYellow)
	failedColor  = color.New(color.FgRed)
	headerColor  = color.New(color.Bold)
)

// printResult writes the status line of one asset.
func printResult(w io.Writer, r syncer.Result) {
	switch r.Outcome {
	case syncer.OutcomeSuccess:
		successColor.Fprintf(w, "  ✅ %s ← %s (%s)\n", r.Name, r.Descriptor.Source, formatBytes(r.Size))
	case syncer.OutcomeSkipped:
		skippedColor.Fprintf(w, "  ⏭️  %s already present\n", r.Name)
	default:
		failedColor.Fprintf(w, "  ❌ %s ← %s: %s\n", r.Name, r.Descriptor.Source, r.Reason)
	}
}

// printReport writes every result followed by the summary block.
func printReport(w io.Writer, report *syncer.Report) {
	for _, r := range report.Results {
		printResult(w, r)
	}

	c := report.Counts()
	fmt.Fprintln(w)
	headerColor.Fprintln(w, "📊 Summary")
	successColor.Fprintf(w, "  downloaded: %d\n", c.Success)
	skippedColor.Fprintf(w, "  skipped:    %d\n", c.Skipped)
	failedColor.Fprintf(w, "  failed:     %d\n", c.Failed)
	fmt.Fprintf(w, "  bytes:      %s\n", formatBytes(report.Bytes()))
	fmt.Fprintf(w, "  duration:   %s\n", report.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  folder:     %s\n", report.Destination)
	fmt.Fprintf(w, "  run:        %s\n", report.RunID)

	if c.Failed > 0 {
		fmt.Fprintln(w)
		failedColor.Fprintf(w, "⚠️  %d asset(s) failed:\n", c.Failed)
		for _, r := range report.Failed() {
			fmt.Fprintf(w, "  - %s: %v\n", r.Name, r.Err)
		}
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
