// Package loader opens ELF and PE executables and normalizes them into a
// single model: container family, architecture, entry point, the CODE and
// DATA sections with their contents, and the merged symbol tables.
package loader

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
)

// Arch is the recognized instruction set family.
type Arch int

const (
	Unsupported Arch = iota
	X86
)

func (a Arch) String() string {
	if a == X86 {
		return "x86"
	}
	return "unsupported"
}

// CodeSectionName is the canonical name of the executable section in both
// ELF and PE images.
const CodeSectionName = ".text"

// State is the lifecycle stage of a Binary.
type State int

const (
	StateEmpty State = iota
	StateLoading
	StateLoaded
	StateUnloaded
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateUnloaded:
		return "unloaded"
	default:
		return "empty"
	}
}

var liveBuffers atomic.Int64

// LiveBuffers reports how many section buffers are currently allocated
// across all binaries.
func LiveBuffers() int64 { return liveBuffers.Load() }

// Section is one CODE or DATA region of a loaded binary.
type Section struct {
	Name string
	Kind SectionKind
	VMA  uint64
	Size uint64

	binary *Binary
	index  int
	bytes  []byte
}

// Contains reports whether addr lies in [VMA, VMA+Size).
func (s *Section) Contains(addr uint64) bool {
	return addr >= s.VMA && addr-s.VMA < s.Size
}

// Bytes returns the section contents. It returns nil once the owning
// binary has been unloaded.
func (s *Section) Bytes() []byte { return s.bytes }

// Binary returns the binary the section was loaded from.
func (s *Section) Binary() *Binary { return s.binary }

// Index is the position of the section in Binary.Sections.
func (s *Section) Index() int { return s.index }

func (s *Section) release() {
	if s.bytes == nil {
		return
	}
	s.bytes = nil
	liveBuffers.Add(-1)
}

// Binary is the normalized model of one executable file.
type Binary struct {
	Filename  string
	Type      Family
	TypeLabel string
	Arch      Arch
	ArchLabel string
	Bits      int
	Entry     uint64
	Sections  []*Section
	Symbols   []Symbol

	state State
}

// State returns where the binary is in its lifecycle.
func (b *Binary) State() State { return b.state }

// Load opens path with automatic format detection.
func Load(path string) (*Binary, error) {
	b := &Binary{}
	if err := b.Load(path, Auto); err != nil {
		return nil, err
	}
	return b, nil
}

// Load populates an empty binary from path. When requested is not Auto the
// file must be of that family. On failure the binary is left empty and no
// section buffers remain allocated.
func (b *Binary) Load(path string, requested Family) (err error) {
	if b.state != StateEmpty {
		return loadErr(ErrAlreadyLoaded, path, "state "+b.state.String(), nil)
	}
	b.state = StateLoading
	defer func() {
		if err != nil {
			b.reset()
		}
	}()

	c, err := OpenContainer(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil {
			slog.Debug("closing container", "file", path, "error", cerr)
			if err != nil {
				err = multierror.Append(err, cerr)
			}
		}
	}()

	b.Filename = path
	b.Entry = c.Entry()
	b.TypeLabel = c.FormatLabel()
	b.Type = c.Family()
	if b.Type == Auto {
		return loadErr(ErrFormat, path, "unsupported binary type "+b.TypeLabel, nil)
	}
	if requested != Auto && requested != b.Type {
		return loadErr(ErrFormat, path, fmt.Sprintf("expected %s, found %s", requested, b.Type), nil)
	}

	m := c.Machine()
	b.ArchLabel = m.Label
	if m.Arch != X86 {
		return loadErr(ErrArchitecture, path, "unsupported architecture "+m.Label, nil)
	}
	b.Arch = m.Arch
	b.Bits = m.Bits

	static, err := c.StaticSymbols()
	if err != nil {
		return loadErr(ErrSymbolTable, path, "read symtab", err)
	}
	dynamic, err := c.DynamicSymbols()
	if err != nil {
		return loadErr(ErrSymbolTable, path, "read dynamic symtab", err)
	}
	b.Symbols = CollectSymbols(static, dynamic)

	if err := b.loadSections(c); err != nil {
		return err
	}

	b.state = StateLoaded
	slog.Debug("loaded binary",
		"file", path,
		"type", b.TypeLabel,
		"arch", b.ArchLabel,
		"sections", len(b.Sections),
		"symbols", len(b.Symbols))
	return nil
}

func (b *Binary) loadSections(c Container) error {
	for _, raw := range c.Sections() {
		kind := Classify(raw)
		if kind == KindNone {
			continue
		}
		name := sectionName(raw)
		// Zero-filled sections are held to the same bound as file-backed
		// ones so a forged header cannot force an arbitrary allocation.
		if raw.Size > uint64(c.FileSize()) {
			return loadErr(ErrSectionRead, b.Filename, "read section "+name,
				fmt.Errorf("size %d exceeds file size %d", raw.Size, c.FileSize()))
		}

		sec := &Section{
			Name:   name,
			Kind:   kind,
			VMA:    raw.VMA,
			Size:   raw.Size,
			binary: b,
			index:  len(b.Sections),
			bytes:  make([]byte, raw.Size),
		}
		liveBuffers.Add(1)
		b.Sections = append(b.Sections, sec)

		if err := readSection(raw, sec.bytes); err != nil {
			return loadErr(ErrSectionRead, b.Filename, "read section "+name, err)
		}
		slog.Debug("loaded section", "name", name, "kind", kind, "vma", fmt.Sprintf("%#x", raw.VMA), "size", raw.Size)
	}
	return nil
}

// reset drops everything a failed load may have acquired.
func (b *Binary) reset() {
	for _, s := range b.Sections {
		s.release()
	}
	*b = Binary{}
}

// Unload releases every section buffer. It is a no-op on an empty or
// already unloaded binary.
func (b *Binary) Unload() {
	if b.state != StateLoaded {
		return
	}
	for _, s := range b.Sections {
		s.release()
	}
	b.Sections = nil
	b.Symbols = nil
	b.state = StateUnloaded
}

// CodeSection returns the first section named CodeSectionName, or nil.
func (b *Binary) CodeSection() *Section {
	return b.Section(CodeSectionName)
}

// Section returns the first section with the given name, or nil.
func (b *Binary) Section(name string) *Section {
	for _, s := range b.Sections {
		if s.Name == name {
			return s
		}
	}
	return nil
}
