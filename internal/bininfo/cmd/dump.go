package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"bininfo/internal/loader"
)

func newDumpCmd(o *options) *cobra.Command {
	var legacy bool

	cmd := &cobra.Command{
		Use:   "dump [file] [section]",
		Short: "Hex dump a loaded section",
		Long: `Hex dump one CODE or DATA section, 16 bytes per row followed by an ASCII
gutter. The section defaults to .text.`,
		Example: `
# Dump the read-only data of an ELF executable
bininfo dump /bin/ls .rodata
  `,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := loader.CodeSectionName
			if len(args) == 2 {
				name = args[1]
			}

			bin, err := o.load(args[0])
			if err != nil {
				return err
			}
			defer bin.Unload()

			s := bin.Section(name)
			if s == nil {
				return fmt.Errorf("no section named %q in %s", name, bin.Filename)
			}

			opts := o.cfg.HexdumpOptions()
			if legacy {
				opts.Legacy = true
			}
			return opts.Write(cmd.OutOrStdout(), s.Bytes())
		},
	}
	cmd.Flags().BoolVar(&legacy, "legacy-ascii", false, "Treat byte 127 as printable")
	return cmd
}
