package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/pprof"
	"strings"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"bininfo/internal/bininfo/log"
	"bininfo/internal/config"
	"bininfo/internal/disasm"
	"bininfo/internal/loader"
	"bininfo/internal/ui/colorize"
)

// options is the state shared by every command of one invocation.
type options struct {
	configPath string
	debug      bool
	noColor    bool
	binType    string

	cfg    *config.Config
	family loader.Family
}

// setup loads the configuration and applies flag overrides. It runs before
// every command.
func (o *options) setup() error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.debug {
		cfg.Debug = true
	}
	if o.noColor {
		cfg.NoColor = true
	}
	o.cfg = cfg

	fam, err := parseFamily(o.binType)
	if err != nil {
		return err
	}
	o.family = fam

	log.Setup(cfg.Debug)
	if cfg.Path != "" {
		slog.Debug("Loaded config", "path", cfg.Path)
	}
	return nil
}

// color reports whether output to w should be colored.
func (o *options) color(w io.Writer) bool {
	if o.cfg != nil && o.cfg.NoColor {
		return false
	}
	if !colorize.Enabled() {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(f.Fd())
}

func (o *options) disasmOptions(bin *loader.Binary, symbolize bool) disasm.Options {
	opts := disasm.Options{Syntax: o.cfg.DisasmSyntax()}
	if symbolize || o.cfg.Symbolize {
		opts.Symbols = bin.Symbols
	}
	return opts
}

// load opens path as the requested container family.
func (o *options) load(path string) (*loader.Binary, error) {
	bin := &loader.Binary{}
	if err := bin.Load(path, o.family); err != nil {
		return nil, err
	}
	return bin, nil
}

func parseFamily(s string) (loader.Family, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return loader.Auto, nil
	case "elf":
		return loader.ELF, nil
	case "pe":
		return loader.PE, nil
	}
	return loader.Auto, fmt.Errorf("unknown binary type %q (want auto, elf or pe)", s)
}

func newRootCmd() *cobra.Command {
	o := &options{}

	var (
		noTUI      bool
		jsonOut    bool
		withDisasm bool
		symbolize  bool
		cpuprofile string
		memprofile string
	)

	root := &cobra.Command{
		Use:   "bininfo [file]",
		Short: "Inspect ELF and PE executables",
		Long: `bininfo loads an ELF or PE executable and reports its container type,
architecture, entry point, sections and symbols. It can hex dump any loaded
section and disassemble the x86 code section.`,
		Example: `
# Browse a binary interactively
bininfo /bin/ls

# Print the summary followed by a disassembly of .text
bininfo -n --disasm ./a.out

# Machine readable report
bininfo --json ./program.exe
  `,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if cpuprofile != "" {
				f, err := os.Create(cpuprofile)
				if err != nil {
					return fmt.Errorf("could not create CPU profile: %w", err)
				}
				defer f.Close()
				if err := pprof.StartCPUProfile(f); err != nil {
					return fmt.Errorf("could not start CPU profile: %w", err)
				}
				defer pprof.StopCPUProfile()
			}
			if memprofile != "" {
				defer func() {
					f, err := os.Create(memprofile)
					if err != nil {
						slog.Error("could not create memory profile", "error", err)
						return
					}
					defer f.Close()
					if err := pprof.WriteHeapProfile(f); err != nil {
						slog.Error("could not write memory profile", "error", err)
					}
				}()
			}

			path := args[0]
			out := cmd.OutOrStdout()

			if jsonOut {
				return runJSON(out, o, path)
			}

			// Piped output never gets the TUI.
			if f, ok := out.(*os.File); withDisasm || !ok || !term.IsTerminal(f.Fd()) {
				noTUI = true
			}
			if noTUI {
				return runSummary(out, cmd.ErrOrStderr(), o, path, withDisasm, symbolize)
			}

			program := tea.NewProgram(
				NewModel(path, o),
				tea.WithAltScreen(),
				tea.WithContext(cmd.Context()),
			)
			if _, err := program.Run(); err != nil {
				slog.Error("TUI run error", "error", err)
				return fmt.Errorf("TUI error: %w", err)
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&o.configPath, "config", "", "Config file (default $BININFO_CONFIG or <config dir>/bininfo/config.yaml)")
	pf.BoolVarP(&o.debug, "debug", "d", false, "Debug")
	pf.BoolVar(&o.noColor, "no-color", false, "Disable colored output")
	pf.StringVarP(&o.binType, "type", "t", "auto", "Expected container type: auto, elf or pe")

	f := root.Flags()
	f.BoolVarP(&noTUI, "no-tui", "n", false, "Show summary without TUI")
	f.BoolVarP(&jsonOut, "json", "j", false, "Output a JSON report")
	f.BoolVar(&withDisasm, "disasm", false, "Append a disassembly of .text to the summary (implies --no-tui)")
	f.BoolVar(&symbolize, "symbolize", false, "Name call and branch targets in the disassembly")
	f.StringVar(&cpuprofile, "cpuprofile", "", "Write CPU profile to file")
	f.StringVar(&memprofile, "memprofile", "", "Write memory profile to file")

	root.AddCommand(
		newSectionsCmd(o),
		newSymbolsCmd(o),
		newDumpCmd(o),
		newDisasmCmd(o),
		newSchemaCmd(),
		newConfigCmd(o),
	)
	return root
}

// runSummary prints the load summary and, when requested, the disassembly.
func runSummary(out, errOut io.Writer, o *options, path string, withDisasm, symbolize bool) error {
	bin, err := o.load(path)
	if err != nil {
		return err
	}
	defer bin.Unload()

	if err := writeSummary(out, bin); err != nil {
		return err
	}
	if !withDisasm {
		return nil
	}
	return writeDisasm(out, errOut, bin, o.disasmOptions(bin, symbolize), o.color(out))
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	defer log.Close()

	rootCmd := newRootCmd()

	// fang renders help and errors as markdown; keep plain cobra when the
	// output is piped or the summary was requested.
	plain := !term.IsTerminal(os.Stdout.Fd())
	for _, arg := range os.Args[1:] {
		if arg == "--no-tui" || arg == "-n" || arg == "--json" || arg == "-j" {
			plain = true
			break
		}
	}

	if plain {
		if err := rootCmd.Execute(); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
		return
	}

	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}
