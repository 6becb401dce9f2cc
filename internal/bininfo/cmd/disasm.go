package cmd

import (
	"github.com/spf13/cobra"

	"bininfo/internal/disasm"
)

func newDisasmCmd(o *options) *cobra.Command {
	var (
		syntax    string
		symbolize bool
	)

	cmd := &cobra.Command{
		Use:   "disasm [file]",
		Short: "Linear disassembly of the .text section",
		Example: `
# AT&T operands with call targets named
bininfo disasm --syntax gnu --symbolize ./a.out
  `,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bin, err := o.load(args[0])
			if err != nil {
				return err
			}
			defer bin.Unload()

			opts := o.disasmOptions(bin, symbolize)
			if syntax != "" {
				s, err := disasm.ParseSyntax(syntax)
				if err != nil {
					return err
				}
				opts.Syntax = s
			}
			out := cmd.OutOrStdout()
			return writeDisasm(out, cmd.ErrOrStderr(), bin, opts, o.color(out))
		},
	}
	cmd.Flags().StringVar(&syntax, "syntax", "", "Operand syntax: intel or gnu (default from config)")
	cmd.Flags().BoolVar(&symbolize, "symbolize", false, "Name call and branch targets")
	return cmd
}
