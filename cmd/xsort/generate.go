package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/davidvella/xsort/stock"
)

type generateOptions struct {
	out    string
	stocks int
	days   int
	start  string
	seed   int64
}

func newGenerateCommand(a *app) *cobra.Command {
	def := stock.DefaultGenerateOptions()
	o := generateOptions{
		stocks: def.Stocks,
		days:   def.Days,
		start:  def.Start.Format(stock.DateLayout),
		seed:   def.Seed,
	}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic trading CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(a, o, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&o.out, "out", "o", "-", "output file, - for stdout")
	cmd.Flags().IntVar(&o.stocks, "stocks", o.stocks, "number of stocks")
	cmd.Flags().IntVar(&o.days, "days", o.days, "number of trading days per stock")
	cmd.Flags().StringVar(&o.start, "start", o.start, "first trading date")
	cmd.Flags().Int64Var(&o.seed, "seed", o.seed, "random seed")
	return cmd
}

func runGenerate(a *app, o generateOptions, stdout io.Writer) (err error) {
	if o.stocks < 0 || o.days < 0 {
		return fmt.Errorf("--stocks and --days must not be negative, got %d and %d", o.stocks, o.days)
	}
	start, err := stock.ParseDate(o.start)
	if err != nil {
		return err
	}

	w := stdout
	if o.out != "-" {
		f, err := os.Create(o.out)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, f.Close()) }()
		w = f
	}
	bw := bufio.NewWriterSize(w, 1<<20)

	n, err := stock.WriteCSV(bw, stock.Generate(stock.GenerateOptions{
		Stocks: o.stocks,
		Days:   o.days,
		Start:  start,
		Seed:   o.seed,
	}))
	if err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	a.log.Info("generated trades", zap.Int("trades", n), zap.String("out", o.out))
	return nil
}
