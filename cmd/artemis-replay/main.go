// Command artemis-replay feeds a YAML scenario of upstream events through an
// in-memory assistant and prints what the user would have seen.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"artemis/internal/engine"
	"artemis/internal/mcp"
	"artemis/internal/scenario"
	"artemis/internal/utils"

	"github.com/spf13/pflag"
)

func main() {
	realtime := pflag.Bool("realtime", false, "wait for each step's delay")
	asJSON := pflag.Bool("json", false, "print the final state as JSON")
	logLevel := pflag.String("log-level", "error", "log level (debug, info, warn, error)")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: artemis-replay [flags] scenario.yaml...\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if pflag.NArg() == 0 {
		pflag.Usage()
		os.Exit(2)
	}

	logger := utils.NewLogger(*logLevel)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	failed := false
	for _, path := range pflag.Args() {
		sc, err := scenario.LoadScenario(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed = true
			continue
		}

		eng := engine.NewEngine(engine.Options{Logger: logger})
		res, err := scenario.Play(ctx, sc, eng, scenario.Options{
			Realtime: *realtime,
			OnStep: func(i int, ev mcp.Event, err error) {
				if *asJSON {
					return
				}
				status := "ok"
				if err != nil {
					status = err.Error()
				}
				fmt.Printf("  [%d] %-16s %-10s %s\n", i, ev.Type, eng.Machine.State(), status)
			},
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			os.Exit(1)
		}

		if *asJSON {
			err = printJSON(os.Stdout, eng, res)
		} else {
			printReport(os.Stdout, eng, res)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed = true
		}
		if !res.Passed() {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func printReport(w io.Writer, eng *engine.Engine, res *scenario.Result) {
	fmt.Fprintf(w, "== %s (%d/%d events)\n", res.Scenario.Name, res.Dispatched, len(res.Scenario.Events))

	fmt.Fprintln(w, "-- conversation")
	for _, m := range eng.Conversation.Messages() {
		line := fmt.Sprintf("  %-10s %s", m.Type, m.Content)
		if m.IsPending() {
			line += "  (pending)"
		} else if m.Approved != nil {
			line += fmt.Sprintf("  (approved=%t)", *m.Approved)
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintln(w, "-- reasoning")
	for _, th := range eng.Reasoning.Thoughts() {
		extra := []string{}
		if th.Step != nil {
			extra = append(extra, fmt.Sprintf("step %d", *th.Step))
		}
		if th.Confidence != nil {
			extra = append(extra, fmt.Sprintf("confidence %s", utils.FormatNumber(*th.Confidence)))
		}
		suffix := ""
		if len(extra) > 0 {
			suffix = " (" + strings.Join(extra, ", ") + ")"
		}
		fmt.Fprintf(w, "  %s%s\n", th.Content, suffix)
	}

	snap := eng.Machine.Snapshot()
	fmt.Fprintf(w, "-- state %s (previous %s, online %t)\n", snap.State, snap.PreviousState, snap.IsOnline)

	for _, rej := range res.Rejected {
		fmt.Fprintf(w, "REJECTED [%d] %s: %v\n", rej.Index, rej.Type, rej.Err)
	}
	for _, f := range res.Failures {
		fmt.Fprintf(w, "FAIL %s\n", f)
	}
	if res.Passed() {
		fmt.Fprintln(w, "PASS")
	}
}

func printJSON(w io.Writer, eng *engine.Engine, res *scenario.Result) error {
	rejected := make([]string, 0, len(res.Rejected))
	for _, r := range res.Rejected {
		rejected = append(rejected, fmt.Sprintf("[%d] %s: %v", r.Index, r.Type, r.Err))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{
		"scenario":     res.Scenario.Name,
		"passed":       res.Passed(),
		"dispatched":   res.Dispatched,
		"rejected":     rejected,
		"failures":     res.Failures,
		"state":        eng.Machine.Snapshot(),
		"conversation": eng.Conversation.Messages(),
		"reasoning":    eng.Reasoning.Thoughts(),
	})
}
