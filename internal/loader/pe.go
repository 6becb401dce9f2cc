package loader

import (
	"debug/pe"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
)

// Section characteristics and symbol constants not exported by debug/pe.
const (
	scnCntCode              = 0x00000020
	scnCntInitializedData   = 0x00000040
	scnCntUninitializedData = 0x00000080
	scnMemExecute           = 0x20000000
	scnMemWrite             = 0x80000000

	symClassExternal = 2
	symClassStatic   = 3
	symClassFile     = 103
	symDebug         = -2
	symDtypeFunction = 2
)

type peContainer struct {
	file      *pe.File
	f         *os.File
	size      int64
	imageBase uint64
	entry     uint64
}

func openPE(f *os.File, size int64) (Container, error) {
	var magic [2]byte
	if _, err := f.ReadAt(magic[:], 0); err != nil {
		return nil, err
	}
	// Without the DOS stub debug/pe would try to read the file as a bare
	// COFF object, which accepts almost anything.
	if magic != [2]byte{'M', 'Z'} {
		return nil, fmt.Errorf("pe: missing MZ signature")
	}
	pf, err := pe.NewFile(f)
	if err != nil {
		return nil, err
	}
	c := &peContainer{file: pf, f: f, size: size}
	switch oh := pf.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		c.imageBase = uint64(oh.ImageBase)
		c.entry = c.imageBase + uint64(oh.AddressOfEntryPoint)
	case *pe.OptionalHeader64:
		c.imageBase = oh.ImageBase
		c.entry = c.imageBase + uint64(oh.AddressOfEntryPoint)
	default:
		// Plain COFF objects have no optional header and nothing to load.
		return nil, fmt.Errorf("pe: missing optional header")
	}
	return c, nil
}

func (c *peContainer) Family() Family  { return PE }
func (c *peContainer) Entry() uint64   { return c.entry }
func (c *peContainer) FileSize() int64 { return c.size }

func (c *peContainer) FormatLabel() string {
	switch c.file.Machine {
	case pe.IMAGE_FILE_MACHINE_AMD64:
		return "pei-x86-64"
	case pe.IMAGE_FILE_MACHINE_I386:
		return "pei-i386"
	case pe.IMAGE_FILE_MACHINE_ARM64:
		return "pei-aarch64-little"
	}
	return fmt.Sprintf("pei-machine-%#x", c.file.Machine)
}

func (c *peContainer) Machine() Machine {
	switch c.file.Machine {
	case pe.IMAGE_FILE_MACHINE_AMD64:
		return Machine{Label: "i386:x86-64", Arch: X86, Bits: 64}
	case pe.IMAGE_FILE_MACHINE_I386:
		return Machine{Label: "i386", Arch: X86, Bits: 32}
	case pe.IMAGE_FILE_MACHINE_ARM64:
		return Machine{Label: "aarch64", Arch: Unsupported}
	}
	return Machine{Label: fmt.Sprintf("machine %#x", c.file.Machine), Arch: Unsupported}
}

func (c *peContainer) Sections() []RawSection {
	out := make([]RawSection, 0, len(c.file.Sections))
	for _, s := range c.file.Sections {
		sec := s
		size := uint64(s.Size)
		if s.VirtualSize != 0 && uint64(s.VirtualSize) < size {
			size = uint64(s.VirtualSize)
		}
		out = append(out, RawSection{
			Name:  s.Name,
			Flags: peSectionFlags(s.Characteristics),
			VMA:   c.imageBase + uint64(s.VirtualAddress),
			Size:  size,
			open:  func() io.Reader { return sec.Open() },
		})
	}
	return out
}

func peSectionFlags(ch uint32) SectionFlags {
	fl := SecAlloc
	if ch&scnCntUninitializedData == 0 {
		fl |= SecContents | SecLoad
	}
	if ch&scnMemWrite == 0 {
		fl |= SecReadonly
	}
	if ch&(scnCntCode|scnMemExecute) != 0 {
		fl |= SecCode
	} else if ch&scnCntInitializedData != 0 {
		fl |= SecData
	}
	return fl
}

// StaticSymbols returns the COFF symbol table. Auxiliary records are
// skipped by debug/pe.
func (c *peContainer) StaticSymbols() ([]RawSymbol, error) {
	if len(c.file.Symbols) == 0 {
		return nil, nil
	}
	out := make([]RawSymbol, 0, len(c.file.Symbols))
	for _, s := range c.file.Symbols {
		out = append(out, RawSymbol{
			Name:  s.Name,
			Value: c.symbolValue(s),
			Flags: peSymbolFlags(s),
		})
	}
	return out, nil
}

// DynamicSymbols always reports an absent table: PE images resolve imports
// through the import directory, which is outside the symbol model.
func (c *peContainer) DynamicSymbols() ([]RawSymbol, error) {
	return nil, nil
}

func (c *peContainer) symbolValue(s *pe.Symbol) uint64 {
	if s.SectionNumber <= 0 || int(s.SectionNumber) > len(c.file.Sections) {
		return uint64(s.Value)
	}
	sec := c.file.Sections[s.SectionNumber-1]
	return c.imageBase + uint64(sec.VirtualAddress) + uint64(s.Value)
}

func peSymbolFlags(s *pe.Symbol) RawSymbolFlags {
	var fl RawSymbolFlags
	if (s.Type>>4)&0x3 == symDtypeFunction {
		fl |= SymFunction
	}
	switch s.StorageClass {
	case symClassStatic:
		fl |= SymLocal
	case symClassExternal:
		if s.SectionNumber > 0 {
			fl |= SymGlobal
		}
	case symClassFile:
		fl |= SymFile | SymDebugging
	}
	if s.SectionNumber == symDebug {
		fl |= SymDebugging
	}
	return fl
}

func (c *peContainer) Close() error {
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
