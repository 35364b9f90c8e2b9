package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/davidvella/xsort"
	"github.com/davidvella/xsort/stock"
)

// errTopReached stops the sort once enough rows are shown.
var errTopReached = errors.New("top rows reached")

type topOptions struct {
	input string
	date  string
	from  string
	to    string
	by    string
	n     int
}

func newTopCommand(a *app) *cobra.Command {
	o := topOptions{by: stock.ByVolume.String(), n: 10}

	cmd := &cobra.Command{
		Use:   "top CSV",
		Short: "Show the top trades of a day or date range",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.input = args[0]
			return runTop(cmd.Context(), a, o, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&o.date, "date", "", "single trading date")
	cmd.Flags().StringVar(&o.from, "from", "", "first date of the range")
	cmd.Flags().StringVar(&o.to, "to", "", "last date of the range")
	cmd.Flags().StringVar(&o.by, "by", o.by, "rank by volume or amount")
	cmd.Flags().IntVarP(&o.n, "number", "n", o.n, "rows to show")
	cmd.MarkFlagsMutuallyExclusive("date", "from")
	cmd.MarkFlagsMutuallyExclusive("date", "to")
	cmd.MarkFlagsRequiredTogether("from", "to")
	return cmd
}

func (o topOptions) filter() (stock.Filter, string, error) {
	switch {
	case o.date != "":
		d, err := stock.ParseDate(o.date)
		if err != nil {
			return nil, "", err
		}
		return stock.Day(d), o.date, nil
	case o.from != "" || o.to != "":
		from, err := stock.ParseDate(o.from)
		if err != nil {
			return nil, "", err
		}
		to, err := stock.ParseDate(o.to)
		if err != nil {
			return nil, "", err
		}
		if to.Before(from) {
			return nil, "", fmt.Errorf("--to %s is before --from %s", o.to, o.from)
		}
		return stock.Range(from, to), o.from + " to " + o.to, nil
	default:
		return stock.All(), "all dates", nil
	}
}

func runTop(ctx context.Context, a *app, o topOptions, stdout io.Writer) (err error) {
	if o.n <= 0 {
		return fmt.Errorf("--number must be greater than 0, got %d", o.n)
	}
	key, err := stock.ParseSortKey(o.by)
	if err != nil {
		return err
	}
	filter, period, err := o.filter()
	if err != nil {
		return err
	}

	f, err := os.Open(o.input)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, f.Close()) }()

	store, closeStore, err := a.cfg.OpenStore()
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeStore()) }()

	opts, err := a.cfg.SorterOptions(store, a.log)
	if err != nil {
		return err
	}
	sorter, err := xsort.New(key.Extract, stock.Codec{}, opts...)
	if err != nil {
		return err
	}

	start := time.Now()
	var (
		readErr error
		matched int
		report  xsort.Report
		rows    = make(chan stock.Trade)
		top     = make([]stock.Trade, 0, o.n)
	)
	counted := func(t stock.Trade) bool {
		if filter(t) {
			matched++
			return true
		}
		return false
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(rows)
		input := stock.Select(stock.Records(bufio.NewReaderSize(f, 1<<20)), counted, &readErr)
		var err error
		report, err = sorter.SortTo(gctx, input, xsort.EmitterFunc[stock.Trade](func(ctx context.Context, t stock.Trade) error {
			select {
			case rows <- t:
				return nil
			case <-ctx.Done():
				return context.Cause(ctx)
			}
		}))
		if err != nil {
			return err
		}
		return readErr
	})
	g.Go(func() error {
		for t := range rows {
			top = append(top, t)
			if len(top) == o.n {
				return errTopReached
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, errTopReached) {
		return err
	}
	if readErr != nil {
		return readErr
	}
	elapsed := time.Since(start)

	a.log.Debug("top finished",
		zap.Stringer("path", report.Path),
		zap.Int("runs", report.Runs),
		zap.Int("matched", matched),
		zap.Duration("elapsed", elapsed))

	_, err = io.WriteString(stdout, renderTop(top, key, period, matched, elapsed))
	return err
}

func renderTop(top []stock.Trade, key stock.SortKey, period string, matched int, elapsed time.Duration) string {
	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("Top %d by %s, %s", len(top), key, period))
	t.AppendHeader(table.Row{"#", "Code", "Name", "Date", "Volume", "Amount"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "#", WidthMax: 6},
		{Name: "Volume", Align: text.AlignRight},
		{Name: "Amount", Align: text.AlignRight},
	})
	for i, tr := range top {
		t.AppendRow(table.Row{i + 1, tr.Code, tr.Name, tr.Date.Format(stock.DateLayout), tr.Volume, tr.Amount})
	}
	t.AppendFooter(table.Row{"", "", "", "matched", matched, elapsed.Round(time.Millisecond).String()})
	return t.Render() + "\n"
}
