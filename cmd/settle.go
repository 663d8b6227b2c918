package cmd

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"checkmate/settle"
)

var inputPath string
var outputPath string

func settleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settle",
		Short: "settle a trip ledger from a CSV file",
		Long: `Read trip expenses from a CSV file, compute everyone's net balance and
write the minimized transfer plan to the output file.

The input CSV needs a header row and four columns:
description, amount, payer, participants (comma separated names).`,
		Example: `checkmate settle --input expenses.csv --output plan.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			inputFile, err := os.Open(inputPath)
			if err != nil {
				return err
			}
			defer inputFile.Close()

			rows, err := csv.NewReader(inputFile).ReadAll()
			if err != nil {
				return fmt.Errorf("read CSV: %w", err)
			}

			ledger, names, err := parseCSVLedger(rows)
			if err != nil {
				return err
			}
			if len(ledger.Expenses) == 0 {
				return fmt.Errorf("no expenses found in %s", inputPath)
			}

			balances := settle.ComputeBalances(ledger.Expenses)
			transfers, residual := settle.MinimizeTransfers(balances)
			result := settle.BuildResult(ledger, balances, transfers, residual, names, time.Now().UTC())

			if !residual.IsZero() {
				fmt.Printf("Warning: rounding left %s unsettled\n", residual.StringFixed(2))
			}
			return os.WriteFile(outputPath, []byte(result.Summary), 0o644)
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "csv input file path (required)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file path (required)")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

// parseCSVLedger turns the CSV rows into a ledger the settlement engine can
// consume. Names map onto stable ids so repeated runs over the same file
// produce the same plan.
func parseCSVLedger(rows [][]string) (*settle.TripLedger, map[uuid.UUID]string, error) {
	if len(rows) < 2 {
		return nil, nil, fmt.Errorf("CSV needs a header row and at least one expense")
	}

	names := make(map[uuid.UUID]string)
	idFor := func(name string) uuid.UUID {
		id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(name))
		names[id] = name
		return id
	}

	ledger := &settle.TripLedger{TripID: uuid.New()}
	for i, row := range rows[1:] {
		line := i + 2 // header offset
		if len(row) != 4 {
			return nil, nil, fmt.Errorf("row %d: expected 4 columns, got %d", line, len(row))
		}

		amount, err := decimal.NewFromString(strings.TrimSpace(row[1]))
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: bad amount %q: %w", line, row[1], err)
		}
		if amount.Sign() <= 0 {
			return nil, nil, fmt.Errorf("row %d: amount must be positive", line)
		}

		payer := strings.TrimSpace(row[2])
		if payer == "" {
			return nil, nil, fmt.Errorf("row %d: missing payer", line)
		}

		var participants []uuid.UUID
		for _, name := range strings.Split(row[3], ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			participants = append(participants, idFor(name))
		}
		if len(participants) == 0 {
			return nil, nil, fmt.Errorf("row %d: no participants", line)
		}

		share := amount.DivRound(decimal.NewFromInt(int64(len(participants))), 2)
		shares := make([]settle.Share, 0, len(participants))
		for _, id := range participants {
			shares = append(shares, settle.Share{UserID: id, AmountBase: share})
		}

		ledger.Expenses = append(ledger.Expenses, settle.Expense{
			ID:         uuid.New(),
			PayerID:    idFor(payer),
			AmountBase: amount,
			Shares:     shares,
		})
	}
	return ledger, names, nil
}
