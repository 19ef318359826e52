package main

import (
	"fmt"
	"strconv"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/universe"
)

// runArgs are the positional arguments:
//
//	frontier [tickers] [window_size] [total_portfolio_value] [result_file]
type runArgs struct {
	Input      optimization.RunInput
	ResultFile string
}

// parseArgs fills the positional arguments over the configured defaults.
func parseArgs(args []string, defaults config.RunDefaults) (runArgs, error) {
	out := runArgs{
		Input: optimization.RunInput{
			Tickers:    defaults.Tickers,
			WindowSize: defaults.WindowSize,
			TotalValue: defaults.TotalValue,
		},
		ResultFile: defaults.ResultFile,
	}

	if len(args) > 4 {
		return out, fmt.Errorf("expected at most 4 arguments, got %d", len(args))
	}

	if len(args) > 0 {
		out.Input.Tickers = universe.ParseTickers(args[0])
	}
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return out, fmt.Errorf("invalid window size %q: %w", args[1], err)
		}
		out.Input.WindowSize = n
	}
	if len(args) > 2 {
		v, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return out, fmt.Errorf("invalid total portfolio value %q: %w", args[2], err)
		}
		out.Input.TotalValue = v
	}
	if len(args) > 3 {
		out.ResultFile = args[3]
	}

	return out, out.Input.Validate()
}
