// Package report renders optimization reports and delivers them to files,
// stdout, object storage or the run history.
package report

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aristath/frontier/internal/modules/optimization"
)

const sectionRule = "=========="

// WriteText renders r in the plain-text result file layout:
//
//	Tickers: ['QLD', 'SSO']
//	Window size: 365
//	Total portfolio value: 1000000
//
//	========== Maximises Sharpe ==========
//	Expected annual return: 24.10%
//	...
func WriteText(w io.Writer, r *optimization.Report) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "Tickers: %s\n", pyList(r.Tickers))
	fmt.Fprintf(bw, "Window size: %d\n", r.WindowSize)
	fmt.Fprintf(bw, "Total portfolio value: %s\n", strconv.FormatFloat(r.TotalValue, 'f', -1, 64))

	for _, res := range r.Results {
		fmt.Fprintf(bw, "\n%s %s %s\n", sectionRule, res.Objective.Title(), sectionRule)
		if !res.Success {
			fmt.Fprintln(bw, "Optimization failed.")
			continue
		}
		writeResult(bw, r.Tickers, res)
	}

	return bw.Flush()
}

func writeResult(w io.Writer, tickers []string, res optimization.Result) {
	riskLabel, ratioLabel := "Annual volatility", "Sharpe Ratio"
	if res.Objective.IsSemivariance() {
		riskLabel, ratioLabel = "Semi-deviation", "Sortino Ratio"
	}

	fmt.Fprintf(w, "Expected annual return: %s\n", percent(res.Performance.ExpectedReturn))
	fmt.Fprintf(w, "%s: %s\n", riskLabel, percent(res.Performance.Risk))
	fmt.Fprintf(w, "%s: %.2f\n", ratioLabel, res.Performance.Ratio)

	weights := make([]string, 0, len(res.Weights))
	for _, t := range orderedKeys(tickers, res.Weights) {
		weights = append(weights, fmt.Sprintf("('%s', '%s')", t, percent(res.Weights[t])))
	}
	fmt.Fprintf(w, "Weights: [%s]\n", strings.Join(weights, ", "))

	shares := make([]string, 0, len(res.Allocation))
	for _, t := range orderedKeys(tickers, res.Allocation) {
		if res.Allocation[t] == 0 {
			continue
		}
		shares = append(shares, fmt.Sprintf("'%s': %d", t, res.Allocation[t]))
	}
	fmt.Fprintf(w, "Discrete allocation: {%s}\n", strings.Join(shares, ", "))
	fmt.Fprintf(w, "Funds remaining: $%.2f\n", res.Leftover)
}

func percent(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

func pyList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = "'" + s + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// orderedKeys returns the keys of m in tickers order.
func orderedKeys[V any](tickers []string, m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for _, t := range tickers {
		if _, ok := m[t]; ok {
			keys = append(keys, t)
		}
	}
	return keys
}
