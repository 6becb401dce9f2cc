package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/zeebo/xxh3"

	"bininfo/internal/loader"
)

// fingerprint is the xxh3 hash of the section contents, or "-" for a
// section with no bytes.
func fingerprint(s *loader.Section) string {
	if len(s.Bytes()) == 0 {
		return "-"
	}
	return fmt.Sprintf("%016x", xxh3.Hash(s.Bytes()))
}

func newSectionsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sections [file]",
		Short: "List the CODE and DATA sections of a binary",
		Example: `
# Section table with sizes and content fingerprints
bininfo sections /bin/ls
  `,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bin, err := o.load(args[0])
			if err != nil {
				return err
			}
			defer bin.Unload()
			return writeSectionTable(cmd.OutOrStdout(), bin)
		},
	}
}

func writeSectionTable(w io.Writer, bin *loader.Binary) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Name", "Kind", "VMA", "Size", "Bytes", "XXH3"})
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, s := range bin.Sections {
		table.Append([]string{
			strconv.Itoa(s.Index()),
			s.Name,
			s.Kind.String(),
			fmt.Sprintf("0x%016x", s.VMA),
			strconv.FormatUint(s.Size, 10),
			humanize.IBytes(s.Size),
			fingerprint(s),
		})
	}
	table.Render()
	return nil
}
