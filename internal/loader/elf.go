package loader

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
)

type elfContainer struct {
	file *elf.File
	f    *os.File
	size int64
}

func openELF(f *os.File, size int64) (Container, error) {
	ef, err := elf.NewFile(f)
	if err != nil {
		return nil, err
	}
	switch ef.Type {
	case elf.ET_EXEC, elf.ET_DYN, elf.ET_REL:
	default:
		return nil, fmt.Errorf("elf type %s is not an object", ef.Type)
	}
	return &elfContainer{file: ef, f: f, size: size}, nil
}

func (c *elfContainer) Family() Family  { return ELF }
func (c *elfContainer) Entry() uint64   { return c.file.Entry }
func (c *elfContainer) FileSize() int64 { return c.size }

// FormatLabel returns the conventional target name, e.g. "elf64-x86-64".
func (c *elfContainer) FormatLabel() string {
	class := "elf32"
	if c.file.Class == elf.ELFCLASS64 {
		class = "elf64"
	}
	switch c.file.Machine {
	case elf.EM_X86_64:
		return class + "-x86-64"
	case elf.EM_386:
		return class + "-i386"
	case elf.EM_AARCH64:
		return class + "-littleaarch64"
	case elf.EM_ARM:
		return class + "-littlearm"
	}
	if c.file.Data == elf.ELFDATA2MSB {
		return class + "-big"
	}
	return class + "-little"
}

func (c *elfContainer) Machine() Machine {
	switch {
	case c.file.Machine == elf.EM_X86_64 && c.file.Class == elf.ELFCLASS64:
		return Machine{Label: "i386:x86-64", Arch: X86, Bits: 64}
	case c.file.Machine == elf.EM_X86_64:
		// x32 ABI: 64-bit instruction set with 32-bit pointers.
		return Machine{Label: "i386:x64-32", Arch: Unsupported}
	case c.file.Machine == elf.EM_386:
		return Machine{Label: "i386", Arch: X86, Bits: 32}
	}
	label := c.file.Machine.String()
	if c.file.Machine == elf.EM_AARCH64 {
		label = "aarch64"
	}
	return Machine{Label: label, Arch: Unsupported}
}

func (c *elfContainer) Sections() []RawSection {
	out := make([]RawSection, 0, len(c.file.Sections))
	for _, s := range c.file.Sections {
		if s.Type == elf.SHT_NULL {
			continue
		}
		sec := s
		out = append(out, RawSection{
			Name:  s.Name,
			Flags: elfSectionFlags(s.SectionHeader),
			VMA:   s.Addr,
			Size:  s.Size,
			open:  func() io.Reader { return sec.Open() },
		})
	}
	return out
}

func elfSectionFlags(h elf.SectionHeader) SectionFlags {
	var fl SectionFlags
	if h.Type != elf.SHT_NOBITS {
		fl |= SecContents
	}
	if h.Flags&elf.SHF_ALLOC != 0 {
		fl |= SecAlloc
		if h.Type != elf.SHT_NOBITS {
			fl |= SecLoad
		}
	}
	if h.Flags&elf.SHF_WRITE == 0 {
		fl |= SecReadonly
	}
	if h.Flags&elf.SHF_EXECINSTR != 0 {
		fl |= SecCode
	} else if fl&SecLoad != 0 {
		fl |= SecData
	}
	return fl
}

func (c *elfContainer) StaticSymbols() ([]RawSymbol, error) {
	syms, err := c.file.Symbols()
	if errors.Is(err, elf.ErrNoSymbols) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c.rawSymbols(syms), nil
}

func (c *elfContainer) DynamicSymbols() ([]RawSymbol, error) {
	syms, err := c.file.DynamicSymbols()
	if errors.Is(err, elf.ErrNoSymbols) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c.rawSymbols(syms), nil
}

// rawSymbols converts syms, naming unnamed section symbols after the
// section they stand for.
func (c *elfContainer) rawSymbols(syms []elf.Symbol) []RawSymbol {
	out := make([]RawSymbol, 0, len(syms))
	for _, s := range syms {
		name := s.Name
		if name == "" && elf.ST_TYPE(s.Info) == elf.STT_SECTION && int(s.Section) < len(c.file.Sections) {
			name = c.file.Sections[s.Section].Name
		}
		out = append(out, RawSymbol{
			Name:  name,
			Value: s.Value,
			Flags: elfSymbolFlags(s),
		})
	}
	return out
}

func elfSymbolFlags(s elf.Symbol) RawSymbolFlags {
	var fl RawSymbolFlags
	switch elf.ST_BIND(s.Info) {
	case elf.STB_LOCAL:
		fl |= SymLocal
	case elf.STB_GLOBAL:
		if s.Section != elf.SHN_UNDEF && s.Section != elf.SHN_COMMON {
			fl |= SymGlobal
		}
	case elf.STB_WEAK:
		fl |= SymWeak
	}
	switch elf.ST_TYPE(s.Info) {
	case elf.STT_FUNC, elf.STT_GNU_IFUNC:
		fl |= SymFunction
	case elf.STT_FILE:
		fl |= SymFile | SymDebugging
	case elf.STT_SECTION:
		fl |= SymSection | SymDebugging
	}
	return fl
}

func (c *elfContainer) Close() error {
	var result *multierror.Error
	if c.file != nil {
		if err := c.file.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		c.file = nil
	}
	if c.f != nil {
		if err := c.f.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		c.f = nil
	}
	return result.ErrorOrNil()
}
