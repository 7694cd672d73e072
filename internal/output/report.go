package output

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/Cruz1122/thingsboard/internal/metrics"
)

// CallReport is the result of a call run: API request statistics plus what
// the token guard did to keep those requests authenticated.
type CallReport struct {
	Target string            `json:"target" yaml:"target"`
	API    metrics.Stats     `json:"api" yaml:"api"`
	Auth   metrics.AuthStats `json:"auth" yaml:"auth"`
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, report CallReport) {
	stats := report.API
	fmt.Fprintln(w, "\n--- Call Results ---")
	if report.Target != "" {
		fmt.Fprintf(w, "Target:            %s\n", report.Target)
	}
	fmt.Fprintf(w, "Total Requests:    %d\n", stats.Total)
	fmt.Fprintf(w, "Successful:        %d\n", stats.Successes)
	fmt.Fprintf(w, "Failed:            %d\n", stats.Failures)
	fmt.Fprintf(w, "Duration:          %s\n", stats.Duration)
	fmt.Fprintf(w, "Requests/sec:      %.2f\n", stats.RequestsPerSec)
	fmt.Fprintln(w, "\nLatency:")
	writeLatency(w, stats, "  ")

	fmt.Fprintln(w, "\nToken Guard:")
	fmt.Fprintf(w, "  Cache hits:      %d\n", report.Auth.CacheHits)
	for _, op := range sortedKeys(report.Auth.Operations) {
		s := report.Auth.Operations[op]
		fmt.Fprintf(w, "  %-16s total=%d, failures=%d, mean=%s, max=%s\n",
			op+":", s.Total, s.Failures, s.MeanLatency, s.MaxLatency)
	}

	buckets := map[string]map[string]int{}
	if len(stats.StatusCodes) > 0 {
		buckets["api"] = stats.StatusCodes
	}
	for op, s := range report.Auth.Operations {
		if len(s.StatusCodes) > 0 {
			buckets[op] = s.StatusCodes
		}
	}
	if len(buckets) > 0 {
		fmt.Fprintln(w, "\nStatus Buckets:")
		writeStatusBuckets(w, buckets, "  ")
	}

	if len(stats.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		for _, name := range sortedKeys(stats.Errors) {
			fmt.Fprintf(w, "  %s: %d\n", metrics.FriendlyErrorName(name), stats.Errors[name])
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, report CallReport) error {
	return writeJSON(w, report)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, report CallReport) error {
	return writeYAML(w, report)
}

// WriteReport dispatches on format.
func WriteReport(w io.Writer, report CallReport, format Format) error {
	switch format {
	case FormatJSON:
		return PrintJSONReport(w, report)
	case FormatYAML:
		return PrintYAMLReport(w, report)
	default:
		PrintReport(w, report)
		return nil
	}
}

func writeLatency(w io.Writer, stats metrics.Stats, indent string) {
	fmt.Fprintf(w, "%sMin:             %s\n", indent, stats.MinLatency)
	fmt.Fprintf(w, "%sMax:             %s\n", indent, stats.MaxLatency)
	fmt.Fprintf(w, "%sMean:            %s\n", indent, stats.MeanLatency)
	fmt.Fprintf(w, "%sP50:             %s\n", indent, stats.P50Latency)
	fmt.Fprintf(w, "%sP90:             %s\n", indent, stats.P90Latency)
	fmt.Fprintf(w, "%sP99:             %s\n", indent, stats.P99Latency)
}

func writeStatusBuckets(w io.Writer, buckets map[string]map[string]int, indent string) {
	rows := metrics.FlattenStatusBuckets(buckets)
	if len(rows) == 0 {
		fmt.Fprintf(w, "%sNone\n", indent)
		return
	}
	for _, row := range rows {
		fmt.Fprintf(
			w,
			"%s%s %s: %d\n",
			indent,
			strings.ToUpper(row.Source),
			row.Code,
			row.Count,
		)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
