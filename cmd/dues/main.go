// Command dues runs one-shot administrative tasks against the dues store:
// the member dues report, account balances, the audit log and undo.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"dues/internal/backend"
	"dues/internal/cli"
	"dues/internal/services"
)

const usage = `usage: dues <command> [flags]

commands:
  report [-json]     dues summary over every member
  balances           income, expense and balance per account
  logs [-n N]        most recent audit log entries
  undo <log-id>      revert one audit log entry
`

var errUsage = errors.New("invalid usage")

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Stderr, os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	ctx := context.Background()
	res, svc := cli.InitBackend(ctx, logger, cfg)

	err := run(ctx, svc, os.Args[1:], os.Stdout)
	if cerr := res.Cleanup(); cerr != nil {
		logger.Warn("Failed to close backend", "error", cerr)
	}
	if errors.Is(err, errUsage) {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, svc *backend.Services, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "report":
		return runReport(ctx, svc, args[1:], out)
	case "balances":
		return runBalances(ctx, svc, out)
	case "logs":
		return runLogs(ctx, svc, args[1:], out)
	case "undo":
		if len(args) != 2 {
			return errUsage
		}
		if err := svc.Audit.Undo(ctx, args[1]); err != nil {
			return fmt.Errorf("undo %s: %w", args[1], err)
		}
		fmt.Fprintf(out, "undone %s\n", args[1])
		return nil
	default:
		return errUsage
	}
}

func runReport(ctx context.Context, svc *backend.Services, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	asJSON := fs.Bool("json", false, "print the summary as JSON")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	sum, err := svc.Members.DuesSummary(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}

	fmt.Fprintf(out, "Dues report %s: %d members, %s outstanding\n",
		sum.Today, sum.Members, sum.TotalOutstanding)
	statuses := make([]string, 0, len(sum.ByStatus))
	for st := range sum.ByStatus {
		statuses = append(statuses, string(st))
	}
	sort.Strings(statuses)
	for _, st := range statuses {
		fmt.Fprintf(out, "  %-10s %d\n", st, sum.ByStatus[services.DuesStatus(st)])
	}
	if len(sum.Debtors) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nMEMBER\tMONTHS\tDUE")
	for _, d := range sum.Debtors {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", d.Name, d.Months, d.TotalDue)
	}
	return tw.Flush()
}

func runBalances(ctx context.Context, svc *backend.Services, out io.Writer) error {
	balances, err := svc.Ledger.AccountBalances(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ACCOUNT\tINCOME\tEXPENSE\tBALANCE")
	for _, b := range balances {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.AccountID, b.Income, b.Expense, b.Balance)
	}
	return tw.Flush()
}

func runLogs(ctx context.Context, svc *backend.Services, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("logs", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	limit := fs.Int("n", 20, "number of entries, 0 for all")
	if err := fs.Parse(args); err != nil || *limit < 0 {
		return errUsage
	}

	logs, err := svc.Audit.GetLogs(ctx, *limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tENTITY\tACTION\tDESCRIPTION")
	for _, e := range logs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.Timestamp.Format("2006-01-02 15:04:05"), e.EntityType, e.Action.ActionType(), e.Description)
	}
	return tw.Flush()
}
