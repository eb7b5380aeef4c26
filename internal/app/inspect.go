package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"fee-tracker/internal/fetcher"
)

// Inspect prints a transaction and its operations. With no hash it uses the
// most recent transaction on the network.
func (a *App) Inspect(ctx context.Context, opts InspectOptions) error {
	horizon := a.newHorizon()

	hash := strings.TrimSpace(opts.TxHash)
	var tx *fetcher.Transaction
	if hash == "" {
		latest, err := horizon.FetchLatestTransaction(ctx)
		if err != nil {
			return err
		}
		tx = &latest
		hash = latest.Hash
	}

	ops, err := horizon.FetchOperations(ctx, hash)
	if err != nil {
		return err
	}
	return writeInspection(os.Stdout, hash, tx, ops)
}

func writeInspection(out io.Writer, hash string, tx *fetcher.Transaction, ops []fetcher.Operation) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintf(writer, "Transaction\t%s\n", hash)
	if tx != nil {
		fmt.Fprintf(writer, "Ledger\t%d\n", tx.Ledger)
		fmt.Fprintf(writer, "Created\t%s\n", tx.CreatedAt)
		fmt.Fprintf(writer, "Fee charged\t%s\n", tx.FeeCharged)
		fmt.Fprintf(writer, "Successful\t%t\n", tx.Successful)
	}
	fmt.Fprintf(writer, "Operations\t%d\n\n", len(ops))

	if len(ops) > 0 {
		fmt.Fprintln(writer, "#\tType\tFrom\tTo\tAsset\tAmount")
		for i, op := range ops {
			fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\t%s\n",
				i+1,
				op.Type,
				orDash(op.From),
				orDash(op.To),
				assetLabel(op),
				orDash(op.Amount),
			)
		}
	}

	return writer.Flush()
}

func assetLabel(op fetcher.Operation) string {
	if op.AssetType == nil {
		return "-"
	}
	if *op.AssetType == "native" {
		return "XLM"
	}
	code := orDash(op.AssetCode)
	if op.AssetIssuer == nil {
		return code
	}
	return code + ":" + *op.AssetIssuer
}

func orDash(v *string) string {
	if v == nil || *v == "" {
		return "-"
	}
	return *v
}
