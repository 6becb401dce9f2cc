package loader

import (
	"debug/elf"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bininfo/internal/loader/loadertest"
)

func TestLoadMinimalELF64(t *testing.T) {
	path := loadertest.WriteELF(t, loadertest.MinimalX86_64())

	bin, err := Load(path)
	require.NoError(t, err)
	defer bin.Unload()

	assert.Equal(t, StateLoaded, bin.State())
	assert.Equal(t, path, bin.Filename)
	assert.Equal(t, ELF, bin.Type)
	assert.Equal(t, "elf64-x86-64", bin.TypeLabel)
	assert.Equal(t, X86, bin.Arch)
	assert.Equal(t, "i386:x86-64", bin.ArchLabel)
	assert.Equal(t, 64, bin.Bits)
	assert.Equal(t, uint64(0x1000), bin.Entry)

	require.Len(t, bin.Sections, 2)
	text := bin.CodeSection()
	require.NotNil(t, text)
	assert.Equal(t, KindCode, text.Kind)
	assert.Equal(t, uint64(0x1000), text.VMA)
	assert.Equal(t, []byte{0xc3}, text.Bytes())
	assert.Same(t, bin, text.Binary())
	assert.Equal(t, 0, text.Index())

	data := bin.Section(".data")
	require.NotNil(t, data)
	assert.Equal(t, KindData, data.Kind)
	assert.Equal(t, []byte("hi\x00"), data.Bytes())
	assert.Equal(t, 1, data.Index())
}

func TestLoadELF32(t *testing.T) {
	path := loadertest.WriteELF(t, loadertest.ELF{
		Class:    elf.ELFCLASS32,
		Machine:  elf.EM_386,
		Entry:    0x8048000,
		Sections: []loadertest.Section{loadertest.Text(0x8048000, 0x90, 0xc3)},
		Symbols: []loadertest.Symbol{
			{Name: "_start", Value: 0x8048000, Bind: elf.STB_GLOBAL, Type: elf.STT_FUNC, Section: ".text"},
		},
	})

	bin, err := Load(path)
	require.NoError(t, err)
	defer bin.Unload()

	assert.Equal(t, "elf32-i386", bin.TypeLabel)
	assert.Equal(t, "i386", bin.ArchLabel)
	assert.Equal(t, 32, bin.Bits)
	require.Len(t, bin.Symbols, 1)
	assert.Equal(t, SymTypeFunction|SymTypeGlobal, bin.Symbols[0].Type)
}

func TestSectionFiltering(t *testing.T) {
	path := loadertest.WriteELF(t, loadertest.ELF{
		Machine: elf.EM_X86_64,
		Sections: []loadertest.Section{
			{Name: ".interp", Addr: 0x400238, Data: []byte("/lib/ld\x00"), Alloc: true},
			loadertest.Text(0x401000, 0xc3),
			{Name: ".bss", Addr: 0x404000, Size: 0x100, Alloc: true, Write: true, NoBits: true},
			{Name: ".comment", Data: []byte("GCC\x00")},
			{Name: ".init", Addr: 0x400f00, Data: []byte{0xc3}, Exec: true},
			{Name: ".empty", Addr: 0x405000, Alloc: true, Write: true},
		},
	})

	bin, err := Load(path)
	require.NoError(t, err)
	defer bin.Unload()

	type row struct {
		Name string
		Kind SectionKind
		Size uint64
	}
	var got []row
	for _, s := range bin.Sections {
		got = append(got, row{s.Name, s.Kind, s.Size})
	}
	want := []row{
		{".interp", KindData, 8},
		{".text", KindCode, 1},
		{".init", KindCode, 1},
		{".empty", KindData, 0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("sections mismatch (-want +got):\n%s", diff)
	}

	empty := bin.Section(".empty")
	require.NotNil(t, empty)
	assert.NotNil(t, empty.Bytes())
	assert.Len(t, empty.Bytes(), 0)
}

func TestUnnamedSection(t *testing.T) {
	path := loadertest.WriteELF(t, loadertest.ELF{
		Machine:  elf.EM_X86_64,
		Sections: []loadertest.Section{{Addr: 0x1000, Data: []byte{1}, Alloc: true}},
	})

	bin, err := Load(path)
	require.NoError(t, err)
	defer bin.Unload()

	require.Len(t, bin.Sections, 1)
	assert.Equal(t, UnnamedSection, bin.Sections[0].Name)
}

func TestSectionContains(t *testing.T) {
	tests := []struct {
		name string
		vma  uint64
		size uint64
	}{
		{"low", 0x1000, 0x10},
		{"single byte", 0x2000, 1},
		{"ends at address space limit", math.MaxUint64 - 0x10, 0x10},
		{"touches limit", math.MaxUint64 - 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Section{VMA: tt.vma, Size: tt.size}
			assert.True(t, s.Contains(tt.vma))
			assert.True(t, s.Contains(tt.vma+tt.size-1))
			assert.False(t, s.Contains(tt.vma+tt.size))
			assert.False(t, s.Contains(tt.vma-1))
		})
	}

	t.Run("empty", func(t *testing.T) {
		s := &Section{VMA: 0x1000}
		assert.False(t, s.Contains(0x1000))
	})
}

func TestLoadNotExecutable(t *testing.T) {
	baseline := LiveBuffers()
	path := loadertest.Write(t, "notes.txt", []byte("just some text, definitely not an executable"))

	bin := &Binary{}
	err := bin.Load(path, Auto)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFormat)

	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, path, le.Path)

	assert.Equal(t, StateEmpty, bin.State())
	assert.Empty(t, bin.Sections)
	assert.Equal(t, baseline, LiveBuffers())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrOpen)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadDirectory(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.ErrorIs(t, err, ErrOpen)
}

func TestLoadUnsupportedArchitecture(t *testing.T) {
	baseline := LiveBuffers()
	path := loadertest.WriteELF(t, loadertest.ELF{
		Machine:  elf.EM_AARCH64,
		Sections: []loadertest.Section{loadertest.Text(0x1000, 0xc0, 0x03, 0x5f, 0xd6)},
	})

	bin := &Binary{}
	err := bin.Load(path, Auto)
	assert.ErrorIs(t, err, ErrArchitecture)
	assert.Contains(t, err.Error(), "aarch64")
	assert.Equal(t, StateEmpty, bin.State())
	assert.Equal(t, baseline, LiveBuffers())
}

func TestLoadX32IsUnsupported(t *testing.T) {
	path := loadertest.WriteELF(t, loadertest.ELF{
		Class:    elf.ELFCLASS32,
		Machine:  elf.EM_X86_64,
		Sections: []loadertest.Section{loadertest.Text(0x1000, 0xc3)},
	})
	_, err := Load(path)
	assert.ErrorIs(t, err, ErrArchitecture)
}

func TestLoadRequestedFamily(t *testing.T) {
	path := loadertest.WriteELF(t, loadertest.MinimalX86_64())

	bin := &Binary{}
	err := bin.Load(path, PE)
	assert.ErrorIs(t, err, ErrFormat)
	assert.Equal(t, StateEmpty, bin.State())

	require.NoError(t, bin.Load(path, ELF))
	bin.Unload()
}

func TestLoadOversizedSection(t *testing.T) {
	baseline := LiveBuffers()
	path := loadertest.WriteELF(t, loadertest.ELF{
		Machine: elf.EM_X86_64,
		Sections: []loadertest.Section{
			loadertest.Text(0x1000, 0xc3),
			{Name: ".data", Addr: 0x2000, Data: []byte{1, 2, 3}, Size: 1 << 20, Alloc: true, Write: true},
		},
	})

	bin := &Binary{}
	err := bin.Load(path, Auto)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSectionRead)
	assert.Contains(t, err.Error(), ".data")
	assert.Equal(t, StateEmpty, bin.State())
	assert.Nil(t, bin.Sections)
	assert.Equal(t, baseline, LiveBuffers())
}

func TestLoadOversizedZeroFilledSection(t *testing.T) {
	tests := []struct {
		name string
		size uint64
	}{
		{"beyond slice range", 1 << 62},
		{"terabyte", 1 << 40},
		{"just past file", 1 << 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			baseline := LiveBuffers()
			path := loadertest.WriteELF(t, loadertest.ELF{
				Machine: elf.EM_X86_64,
				Sections: []loadertest.Section{
					loadertest.Text(0x1000, 0xc3),
					{Name: ".tbss", Addr: 0x3000, Size: tt.size, Alloc: true, Exec: true, NoBits: true},
				},
			})

			bin := &Binary{}
			var err error
			require.NotPanics(t, func() { err = bin.Load(path, Auto) })
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSectionRead)
			assert.Contains(t, err.Error(), ".tbss")
			assert.Equal(t, StateEmpty, bin.State())
			assert.Nil(t, bin.Sections)
			assert.Equal(t, baseline, LiveBuffers())
		})
	}
}

func TestLoadSmallZeroFilledCodeSection(t *testing.T) {
	path := loadertest.WriteELF(t, loadertest.ELF{
		Machine: elf.EM_X86_64,
		Sections: []loadertest.Section{
			loadertest.Text(0x1000, 0xc3),
			{Name: ".tbss", Addr: 0x3000, Size: 8, Alloc: true, Exec: true, NoBits: true},
		},
	})

	bin, err := Load(path)
	require.NoError(t, err)
	defer bin.Unload()

	s := bin.Section(".tbss")
	require.NotNil(t, s)
	assert.Equal(t, KindCode, s.Kind)
	assert.Equal(t, make([]byte, 8), s.Bytes())
}

func TestLoadTwice(t *testing.T) {
	path := loadertest.WriteELF(t, loadertest.MinimalX86_64())

	bin := &Binary{}
	require.NoError(t, bin.Load(path, Auto))
	defer bin.Unload()

	err := bin.Load(path, Auto)
	assert.ErrorIs(t, err, ErrAlreadyLoaded)
	assert.Equal(t, StateLoaded, bin.State())
	assert.Len(t, bin.Sections, 2)
}

func TestUnload(t *testing.T) {
	baseline := LiveBuffers()
	path := loadertest.WriteELF(t, loadertest.MinimalX86_64())

	bin, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, baseline+2, LiveBuffers())

	text := bin.CodeSection()
	bin.Unload()
	assert.Equal(t, StateUnloaded, bin.State())
	assert.Equal(t, baseline, LiveBuffers())
	assert.Nil(t, text.Bytes())
	assert.Nil(t, bin.CodeSection())

	bin.Unload()
	assert.Equal(t, baseline, LiveBuffers())

	err = bin.Load(path, Auto)
	assert.ErrorIs(t, err, ErrAlreadyLoaded)
}

func TestUnloadEmpty(t *testing.T) {
	bin := &Binary{}
	bin.Unload()
	assert.Equal(t, StateEmpty, bin.State())
}

func TestCodeSectionMissing(t *testing.T) {
	path := loadertest.WriteELF(t, loadertest.ELF{
		Machine: elf.EM_X86_64,
		Sections: []loadertest.Section{
			{Name: ".init", Addr: 0x1000, Data: []byte{0xc3}, Alloc: true, Exec: true},
		},
	})

	bin, err := Load(path)
	require.NoError(t, err)
	defer bin.Unload()
	assert.Nil(t, bin.CodeSection())
}

func TestCodeSectionFirstMatch(t *testing.T) {
	path := loadertest.WriteELF(t, loadertest.ELF{
		Machine: elf.EM_X86_64,
		Sections: []loadertest.Section{
			loadertest.Text(0x1000, 0x90),
			loadertest.Text(0x2000, 0xc3),
		},
	})

	bin, err := Load(path)
	require.NoError(t, err)
	defer bin.Unload()
	require.Len(t, bin.Sections, 2)
	assert.Equal(t, uint64(0x1000), bin.CodeSection().VMA)
}

func TestLoadPE(t *testing.T) {
	path := loadertest.WritePE(t, loadertest.PE{
		ImageBase: 0x140000000,
		Entry:     0x1000,
		Sections: []loadertest.PESection{
			{Name: ".text", RVA: 0x1000, Data: []byte{0x48, 0x31, 0xc0, 0xc3}, Characteristics: loadertest.SCNCode},
			{Name: ".rdata", RVA: 0x2000, Data: []byte("hello\x00"), Characteristics: loadertest.SCNReadOnly},
			{Name: ".bss", RVA: 0x3000, VirtualSize: 0x200, Characteristics: loadertest.SCNBss},
		},
		Symbols: []loadertest.PESymbol{
			{Name: "main", Value: 0, SectionNumber: 1, Type: 0x20, StorageClass: 2},
			{Name: "helper", Value: 3, SectionNumber: 1, Type: 0x20, StorageClass: 3},
			{Name: "a.c", SectionNumber: -2, StorageClass: 103},
		},
	})

	bin, err := Load(path)
	require.NoError(t, err)
	defer bin.Unload()

	assert.Equal(t, PE, bin.Type)
	assert.Equal(t, "pei-x86-64", bin.TypeLabel)
	assert.Equal(t, "i386:x86-64", bin.ArchLabel)
	assert.Equal(t, 64, bin.Bits)
	assert.Equal(t, uint64(0x140001000), bin.Entry)

	require.Len(t, bin.Sections, 2)
	text := bin.CodeSection()
	require.NotNil(t, text)
	assert.Equal(t, uint64(0x140001000), text.VMA)
	assert.Equal(t, uint64(4), text.Size)
	assert.Equal(t, []byte{0x48, 0x31, 0xc0, 0xc3}, text.Bytes())
	assert.Equal(t, KindData, bin.Sections[1].Kind)

	want := []Symbol{
		{Name: "main", Addr: 0x140001000, Type: SymTypeFunction | SymTypeGlobal, Source: SourceStatic},
		{Name: "helper", Addr: 0x140001003, Type: SymTypeFunction | SymTypeLocal, Source: SourceStatic},
		{Name: "a.c", Addr: 0, Type: SymTypeDebug, Source: SourceStatic},
	}
	if diff := cmp.Diff(want, bin.Symbols); diff != "" {
		t.Errorf("symbols mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadPE32(t *testing.T) {
	path := loadertest.WritePE(t, loadertest.PE{
		Machine:   0x14c,
		ImageBase: 0x400000,
		Entry:     0x1000,
		Sections: []loadertest.PESection{
			{Name: ".text", RVA: 0x1000, Data: []byte{0xc3}, Characteristics: loadertest.SCNCode},
		},
	})

	bin, err := Load(path)
	require.NoError(t, err)
	defer bin.Unload()

	assert.Equal(t, "pei-i386", bin.TypeLabel)
	assert.Equal(t, 32, bin.Bits)
	assert.Equal(t, uint64(0x401000), bin.Entry)
	assert.Empty(t, bin.Symbols)
}
