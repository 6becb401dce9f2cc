// Package loadertest builds small synthetic ELF and PE images for tests.
package loadertest

import (
	"bytes"
	"debug/elf"
	"debug/pe"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

var le = binary.LittleEndian

// Section describes one ELF section to emit.
type Section struct {
	Name   string
	Addr   uint64
	Data   []byte
	Size   uint64 // declared size; defaults to len(Data)
	Alloc  bool
	Exec   bool
	Write  bool
	NoBits bool
}

// Symbol describes one ELF symbol table entry. Section names the defining
// section; empty means undefined, "ABS" and "COMMON" select the reserved
// indices.
type Symbol struct {
	Name    string
	Value   uint64
	Bind    elf.SymBind
	Type    elf.SymType
	Section string
}

// ELF describes a little-endian ELF image.
type ELF struct {
	Class      elf.Class // defaults to ELFCLASS64
	Machine    elf.Machine
	Type       elf.Type // defaults to ET_EXEC
	Entry      uint64
	Sections   []Section
	Symbols    []Symbol // .symtab, omitted when empty
	DynSymbols []Symbol // .dynsym, omitted when empty

	// Truncate names a symbol table (".symtab" or ".dynsym") whose size is
	// written one byte short, so it is no longer a whole number of entries.
	Truncate string
}

// Text returns an executable .text section.
func Text(addr uint64, code ...byte) Section {
	return Section{Name: ".text", Addr: addr, Data: code, Alloc: true, Exec: true}
}

// Data returns a writable .data section.
func Data(addr uint64, data ...byte) Section {
	return Section{Name: ".data", Addr: addr, Data: data, Alloc: true, Write: true}
}

type shdr struct {
	name      uint32
	typ       elf.SectionType
	flags     elf.SectionFlag
	addr      uint64
	offset    uint64
	size      uint64
	link      uint32
	entsize   uint64
	addralign uint64
}

type strtab struct {
	buf bytes.Buffer
}

func newStrtab() *strtab {
	s := &strtab{}
	s.buf.WriteByte(0)
	return s
}

func (s *strtab) add(name string) uint32 {
	if name == "" {
		return 0
	}
	off := uint32(s.buf.Len())
	s.buf.WriteString(name)
	s.buf.WriteByte(0)
	return off
}

// Bytes encodes the image.
func (e ELF) Bytes() []byte {
	is64 := e.Class != elf.ELFCLASS32
	ehsize, shentsize, symsize := 52, 40, 16
	if is64 {
		ehsize, shentsize, symsize = 64, 64, 24
	}
	typ := e.Type
	if typ == elf.ET_NONE {
		typ = elf.ET_EXEC
	}

	var body bytes.Buffer
	body.Write(make([]byte, ehsize))
	place := func(data []byte) uint64 {
		for body.Len()%16 != 0 {
			body.WriteByte(0)
		}
		off := uint64(body.Len())
		body.Write(data)
		return off
	}

	shstr := newStrtab()
	headers := []shdr{{}}
	index := map[string]uint16{}

	for _, s := range e.Sections {
		h := shdr{
			name:      shstr.add(s.Name),
			typ:       elf.SHT_PROGBITS,
			addr:      s.Addr,
			size:      uint64(len(s.Data)),
			addralign: 16,
		}
		if s.Size != 0 {
			h.size = s.Size
		}
		if s.Alloc {
			h.flags |= elf.SHF_ALLOC
		}
		if s.Exec {
			h.flags |= elf.SHF_EXECINSTR
		}
		if s.Write {
			h.flags |= elf.SHF_WRITE
		}
		if s.NoBits {
			h.typ = elf.SHT_NOBITS
			h.offset = uint64(body.Len())
		} else {
			h.offset = place(s.Data)
		}
		index[s.Name] = uint16(len(headers))
		headers = append(headers, h)
	}

	symtab := func(syms []Symbol, name, strName string, typ elf.SectionType) {
		str := newStrtab()
		var buf bytes.Buffer
		buf.Write(make([]byte, symsize))
		for _, s := range syms {
			nameOff := str.add(s.Name)
			info := byte(s.Bind)<<4 | byte(s.Type)&0xf
			shndx := uint16(elf.SHN_UNDEF)
			if s.Section == "ABS" {
				shndx = uint16(elf.SHN_ABS)
			} else if s.Section == "COMMON" {
				shndx = uint16(elf.SHN_COMMON)
			} else if i, ok := index[s.Section]; ok {
				shndx = i
			}
			if is64 {
				binary.Write(&buf, le, uint32(nameOff))
				buf.WriteByte(info)
				buf.WriteByte(0)
				binary.Write(&buf, le, shndx)
				binary.Write(&buf, le, s.Value)
				binary.Write(&buf, le, uint64(0))
			} else {
				binary.Write(&buf, le, uint32(nameOff))
				binary.Write(&buf, le, uint32(s.Value))
				binary.Write(&buf, le, uint32(0))
				buf.WriteByte(info)
				buf.WriteByte(0)
				binary.Write(&buf, le, shndx)
			}
		}
		symIdx := len(headers)
		size := uint64(buf.Len())
		if e.Truncate == name {
			size--
		}
		headers = append(headers, shdr{
			name:      shstr.add(name),
			typ:       typ,
			offset:    place(buf.Bytes()),
			size:      size,
			link:      uint32(symIdx + 1),
			entsize:   uint64(symsize),
			addralign: 8,
		})
		headers = append(headers, shdr{
			name:      shstr.add(strName),
			typ:       elf.SHT_STRTAB,
			offset:    place(str.buf.Bytes()),
			size:      uint64(str.buf.Len()),
			addralign: 1,
		})
	}
	if len(e.Symbols) > 0 {
		symtab(e.Symbols, ".symtab", ".strtab", elf.SHT_SYMTAB)
	}
	if len(e.DynSymbols) > 0 {
		symtab(e.DynSymbols, ".dynsym", ".dynstr", elf.SHT_DYNSYM)
	}

	shstrndx := len(headers)
	shstrName := shstr.add(".shstrtab")
	headers = append(headers, shdr{
		name:      shstrName,
		typ:       elf.SHT_STRTAB,
		offset:    place(shstr.buf.Bytes()),
		size:      uint64(shstr.buf.Len()),
		addralign: 1,
	})

	for body.Len()%8 != 0 {
		body.WriteByte(0)
	}
	shoff := uint64(body.Len())
	for _, h := range headers {
		if is64 {
			binary.Write(&body, le, h.name)
			binary.Write(&body, le, uint32(h.typ))
			binary.Write(&body, le, uint64(h.flags))
			binary.Write(&body, le, h.addr)
			binary.Write(&body, le, h.offset)
			binary.Write(&body, le, h.size)
			binary.Write(&body, le, h.link)
			binary.Write(&body, le, uint32(0))
			binary.Write(&body, le, h.addralign)
			binary.Write(&body, le, h.entsize)
		} else {
			binary.Write(&body, le, h.name)
			binary.Write(&body, le, uint32(h.typ))
			binary.Write(&body, le, uint32(h.flags))
			binary.Write(&body, le, uint32(h.addr))
			binary.Write(&body, le, uint32(h.offset))
			binary.Write(&body, le, uint32(h.size))
			binary.Write(&body, le, h.link)
			binary.Write(&body, le, uint32(0))
			binary.Write(&body, le, uint32(h.addralign))
			binary.Write(&body, le, uint32(h.entsize))
		}
	}

	out := body.Bytes()
	var hdr bytes.Buffer
	class := elf.ELFCLASS64
	if !is64 {
		class = elf.ELFCLASS32
	}
	hdr.Write([]byte{0x7f, 'E', 'L', 'F', byte(class), byte(elf.ELFDATA2LSB), byte(elf.EV_CURRENT)})
	hdr.Write(make([]byte, 9))
	binary.Write(&hdr, le, uint16(typ))
	binary.Write(&hdr, le, uint16(e.Machine))
	binary.Write(&hdr, le, uint32(elf.EV_CURRENT))
	if is64 {
		binary.Write(&hdr, le, e.Entry)
		binary.Write(&hdr, le, uint64(0))
		binary.Write(&hdr, le, shoff)
	} else {
		binary.Write(&hdr, le, uint32(e.Entry))
		binary.Write(&hdr, le, uint32(0))
		binary.Write(&hdr, le, uint32(shoff))
	}
	binary.Write(&hdr, le, uint32(0))
	binary.Write(&hdr, le, uint16(ehsize))
	phentsize := uint16(32)
	if is64 {
		phentsize = 56
	}
	binary.Write(&hdr, le, phentsize)
	binary.Write(&hdr, le, uint16(0))
	binary.Write(&hdr, le, uint16(shentsize))
	binary.Write(&hdr, le, uint16(len(headers)))
	binary.Write(&hdr, le, uint16(shstrndx))
	copy(out, hdr.Bytes())
	return out
}

// PESection describes one PE section.
type PESection struct {
	Name            string
	RVA             uint32
	Data            []byte
	VirtualSize     uint32 // defaults to len(Data)
	Characteristics uint32
}

// PESymbol describes one COFF symbol record.
type PESymbol struct {
	Name          string // at most 8 bytes
	Value         uint32
	SectionNumber int16
	Type          uint16
	StorageClass  uint8
}

// PE section characteristics used by tests.
const (
	SCNCode     = pe.IMAGE_SCN_CNT_CODE | pe.IMAGE_SCN_MEM_EXECUTE | pe.IMAGE_SCN_MEM_READ
	SCNData     = pe.IMAGE_SCN_CNT_INITIALIZED_DATA | pe.IMAGE_SCN_MEM_READ | pe.IMAGE_SCN_MEM_WRITE
	SCNBss      = pe.IMAGE_SCN_CNT_UNINITIALIZED_DATA | pe.IMAGE_SCN_MEM_READ | pe.IMAGE_SCN_MEM_WRITE
	SCNReadOnly = pe.IMAGE_SCN_CNT_INITIALIZED_DATA | pe.IMAGE_SCN_MEM_READ
)

// PE describes a PE32 (i386) or PE32+ (amd64) image.
type PE struct {
	Machine   uint16 // defaults to IMAGE_FILE_MACHINE_AMD64
	ImageBase uint64
	Entry     uint32 // RVA
	Sections  []PESection
	Symbols   []PESymbol
}

// Bytes encodes the image.
func (p PE) Bytes() []byte {
	machine := p.Machine
	if machine == 0 {
		machine = pe.IMAGE_FILE_MACHINE_AMD64
	}
	is64 := machine != pe.IMAGE_FILE_MACHINE_I386
	optSize := 224
	if is64 {
		optSize = 240
	}

	const lfanew = 0x40
	headersEnd := lfanew + 4 + 20 + optSize + 40*len(p.Sections)
	fileAlign := 0x200
	align := func(n int) int { return (n + fileAlign - 1) / fileAlign * fileAlign }

	var raw bytes.Buffer
	raw.Write(make([]byte, align(headersEnd)))
	rawPtr := make([]uint32, len(p.Sections))
	for i, s := range p.Sections {
		if len(s.Data) == 0 {
			continue
		}
		rawPtr[i] = uint32(raw.Len())
		raw.Write(s.Data)
		raw.Write(make([]byte, align(len(s.Data))-len(s.Data)))
	}
	var symPtr uint32
	if len(p.Symbols) > 0 {
		symPtr = uint32(raw.Len())
		for _, s := range p.Symbols {
			var name [8]byte
			copy(name[:], s.Name)
			raw.Write(name[:])
			binary.Write(&raw, le, s.Value)
			binary.Write(&raw, le, s.SectionNumber)
			binary.Write(&raw, le, s.Type)
			raw.WriteByte(s.StorageClass)
			raw.WriteByte(0)
		}
		binary.Write(&raw, le, uint32(4)) // empty string table
	}

	out := raw.Bytes()
	var h bytes.Buffer
	h.Write([]byte{'M', 'Z'})
	h.Write(make([]byte, 0x3a))
	binary.Write(&h, le, uint32(lfanew))
	h.Write([]byte{'P', 'E', 0, 0})

	binary.Write(&h, le, machine)
	binary.Write(&h, le, uint16(len(p.Sections)))
	binary.Write(&h, le, uint32(0))
	binary.Write(&h, le, symPtr)
	binary.Write(&h, le, uint32(len(p.Symbols)))
	binary.Write(&h, le, uint16(optSize))
	binary.Write(&h, le, uint16(pe.IMAGE_FILE_EXECUTABLE_IMAGE))

	sizeOfImage := uint32(0x1000)
	for _, s := range p.Sections {
		end := s.RVA + uint32(len(s.Data)) + s.VirtualSize
		if end > sizeOfImage {
			sizeOfImage = (end + 0xfff) &^ 0xfff
		}
	}
	if is64 {
		binary.Write(&h, le, uint16(0x20b))
	} else {
		binary.Write(&h, le, uint16(0x10b))
	}
	// linker version, SizeOfCode, SizeOfInitializedData,
	// SizeOfUninitializedData
	h.Write([]byte{14, 0})
	binary.Write(&h, le, [3]uint32{})
	binary.Write(&h, le, p.Entry)
	binary.Write(&h, le, uint32(0)) // BaseOfCode
	if is64 {
		binary.Write(&h, le, p.ImageBase)
	} else {
		binary.Write(&h, le, uint32(0)) // BaseOfData
		binary.Write(&h, le, uint32(p.ImageBase))
	}
	binary.Write(&h, le, uint32(0x1000))
	binary.Write(&h, le, uint32(fileAlign))
	binary.Write(&h, le, [6]uint16{6, 0, 0, 0, 6, 0})
	binary.Write(&h, le, uint32(0))
	binary.Write(&h, le, sizeOfImage)
	binary.Write(&h, le, uint32(align(headersEnd)))
	binary.Write(&h, le, uint32(0))
	binary.Write(&h, le, uint16(pe.IMAGE_SUBSYSTEM_WINDOWS_CUI))
	binary.Write(&h, le, uint16(0))
	if is64 {
		binary.Write(&h, le, [4]uint64{0x100000, 0x1000, 0x100000, 0x1000})
	} else {
		binary.Write(&h, le, [4]uint32{0x100000, 0x1000, 0x100000, 0x1000})
	}
	binary.Write(&h, le, uint32(0))
	binary.Write(&h, le, uint32(16)) // NumberOfRvaAndSizes
	h.Write(make([]byte, 16*8))

	for i, s := range p.Sections {
		var name [8]byte
		copy(name[:], s.Name)
		h.Write(name[:])
		vsize := s.VirtualSize
		if vsize == 0 {
			vsize = uint32(len(s.Data))
		}
		binary.Write(&h, le, vsize)
		binary.Write(&h, le, s.RVA)
		rawSize := uint32(0)
		if len(s.Data) > 0 {
			rawSize = uint32(align(len(s.Data)))
		}
		binary.Write(&h, le, rawSize)
		binary.Write(&h, le, rawPtr[i])
		binary.Write(&h, le, [2]uint32{})
		binary.Write(&h, le, [2]uint16{})
		binary.Write(&h, le, s.Characteristics)
	}
	copy(out, h.Bytes())
	return out
}

// Write stores data in a fresh file under t.TempDir and returns its path.
func Write(t testing.TB, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// WriteELF encodes e and writes it to a temporary file.
func WriteELF(t testing.TB, e ELF) string {
	t.Helper()
	return Write(t, "image.elf", e.Bytes())
}

// WritePE encodes p and writes it to a temporary file.
func WritePE(t testing.TB, p PE) string {
	t.Helper()
	return Write(t, "image.exe", p.Bytes())
}

// MinimalX86_64 is a 64-bit x86 executable with a single-byte ret at
// 0x1000 and one data section.
func MinimalX86_64() ELF {
	return ELF{
		Machine: elf.EM_X86_64,
		Entry:   0x1000,
		Sections: []Section{
			Text(0x1000, 0xc3),
			Data(0x2000, 'h', 'i', 0),
		},
	}
}
