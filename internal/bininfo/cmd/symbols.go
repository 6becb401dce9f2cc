package cmd

import (
	"bufio"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"bininfo/internal/loader"
)

func newSymbolsCmd(o *options) *cobra.Command {
	var functions bool

	cmd := &cobra.Command{
		Use:   "symbols [file]",
		Short: "List the merged static and dynamic symbol tables",
		Long: `List every symbol in discovery order: static table entries first, then
dynamic table entries. Duplicates across the two tables are both shown.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bin, err := o.load(args[0])
			if err != nil {
				return err
			}
			defer bin.Unload()
			return writeSymbols(cmd.OutOrStdout(), bin.Symbols, functions)
		},
	}
	cmd.Flags().BoolVarP(&functions, "functions", "f", false, "Only list function symbols")
	return cmd
}

func writeSymbols(w io.Writer, syms []loader.Symbol, functionsOnly bool) error {
	bw := bufio.NewWriter(w)
	for _, sym := range syms {
		if functionsOnly && !sym.Type.Has(loader.SymTypeFunction) {
			continue
		}
		fmt.Fprintf(bw, "0x%016x %-8s %-24s %s\n", sym.Addr, sym.Source, sym.Type, sym.Name)
	}
	return bw.Flush()
}
