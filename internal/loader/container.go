package loader

import (
	"errors"
	"io"
	"os"
	"sync"
)

// Family is the container format family of a binary.
type Family int

const (
	Auto Family = iota // unknown, or "detect" when requesting a load
	ELF
	PE
)

func (f Family) String() string {
	switch f {
	case ELF:
		return "ELF"
	case PE:
		return "PE"
	default:
		return "UNKNOWN"
	}
}

// Machine is the architecture descriptor reported by a container reader.
type Machine struct {
	Label string // printable name, e.g. "i386:x86-64"
	Arch  Arch
	Bits  int
}

// SectionFlags are the normalized attribute bits of a raw section header.
type SectionFlags uint32

const (
	SecAlloc    SectionFlags = 1 << iota // occupies memory at run time
	SecLoad                              // contents are loaded from the file
	SecReadonly                          // not writable
	SecCode                              // contains executable code
	SecData                              // contains initialized data
	SecContents                          // has bytes in the file
)

// RawSection is one section header as seen by a container reader.
type RawSection struct {
	Name  string
	Flags SectionFlags
	VMA   uint64
	Size  uint64

	open func() io.Reader
}

// RawSymbolFlags are the format-neutral attributes of a raw symbol entry.
type RawSymbolFlags uint32

const (
	SymFunction RawSymbolFlags = 1 << iota
	SymLocal
	SymGlobal
	SymWeak
	SymDebugging
	SymFile
	SymSection
)

// RawSymbol is one symbol table entry as seen by a container reader.
type RawSymbol struct {
	Name  string
	Value uint64
	Flags RawSymbolFlags
}

// Container is an opened and validated executable file.
//
// Absent symbol tables are reported as (nil, nil); only a table that exists
// but cannot be enumerated yields an error.
type Container interface {
	Family() Family
	FormatLabel() string
	Machine() Machine
	Entry() uint64
	Sections() []RawSection
	StaticSymbols() ([]RawSymbol, error)
	DynamicSymbols() ([]RawSymbol, error)
	// FileSize bounds how many bytes any file-backed section may claim.
	FileSize() int64
	Close() error
}

type opener func(f *os.File, size int64) (Container, error)

var (
	initOnce sync.Once
	openers  []opener
)

// initReaders registers the container readers. It runs once per process.
func initReaders() {
	initOnce.Do(func() {
		openers = []opener{openELF, openPE}
	})
}

var errNotContainer = errors.New("not an executable container")

// OpenContainer opens path and returns the first reader that accepts it.
// The returned error wraps ErrOpen or ErrFormat.
func OpenContainer(path string) (Container, error) {
	initReaders()

	f, err := os.Open(path)
	if err != nil {
		return nil, loadErr(ErrOpen, path, "", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, loadErr(ErrOpen, path, "stat", err)
	}
	if fi.IsDir() {
		f.Close()
		return nil, loadErr(ErrOpen, path, "", errors.New("is a directory"))
	}

	for _, try := range openers {
		if c, err := try(f, fi.Size()); err == nil {
			return c, nil
		}
	}
	f.Close()
	return nil, loadErr(ErrFormat, path, "file does not appear to be an executable", errNotContainer)
}

// readSection fills dst with the contents of s. A section that yields fewer
// bytes than its declared size is an error.
func readSection(s RawSection, dst []byte) error {
	if len(dst) == 0 {
		return nil
	}
	if s.open == nil {
		return io.ErrUnexpectedEOF
	}
	_, err := io.ReadFull(s.open(), dst)
	return err
}
