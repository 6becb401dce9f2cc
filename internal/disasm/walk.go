package disasm

import (
	"fmt"
	"iter"
	"log/slog"

	"bininfo/internal/loader"
)

// Walker decodes a byte range in address order. Each call to All starts
// over from the beginning of the range.
type Walker struct {
	dec  Decoder
	code []byte
	base uint64
	stop *DecodeError
}

func NewWalker(dec Decoder, code []byte, base uint64) *Walker {
	return &Walker{dec: dec, code: code, base: base}
}

// All yields instructions until the range is exhausted or the decoder
// rejects the bytes at the current offset. Err reports the latter.
func (w *Walker) All() iter.Seq[Inst] {
	return func(yield func(Inst) bool) {
		w.stop = nil
		for off := 0; off < len(w.code); {
			pc := w.base + uint64(off)
			inst, err := w.dec.Decode(w.code[off:], pc)
			if err != nil {
				w.stop = &DecodeError{Addr: pc, Msg: err.Error()}
				return
			}
			if inst.Len <= 0 || inst.Len > len(w.code)-off {
				w.stop = &DecodeError{Addr: pc, Msg: fmt.Sprintf("bad instruction length %d", inst.Len)}
				return
			}
			off += inst.Len
			if !yield(inst) {
				return
			}
		}
	}
}

// Err returns the decode failure that ended the last walk, if any.
func (w *Walker) Err() error {
	if w.stop == nil {
		return nil
	}
	return w.stop
}

// Disassemble decodes the canonical code section of bin. A binary without
// one yields an empty stream and no error.
func Disassemble(bin *loader.Binary, opts Options) (Stream, error) {
	text := bin.CodeSection()
	if text == nil {
		slog.Debug("no code section", "file", bin.Filename, "name", loader.CodeSectionName)
		return nil, nil
	}
	return DisassembleSection(text, opts)
}

// DisassembleSection decodes s linearly from its first byte. Decoding stops
// at the first undecodable byte; producing no instructions at all is an
// error.
func DisassembleSection(s *loader.Section, opts Options) (Stream, error) {
	bin := s.Binary()
	if bin == nil {
		return nil, fmt.Errorf("%w: section %s has no binary", ErrDecoderInit, s.Name)
	}
	dec, err := NewDecoder(bin.Arch, bin.Bits, opts)
	if err != nil {
		return nil, err
	}

	w := NewWalker(dec, s.Bytes(), s.VMA)
	var out Stream
	for inst := range w.All() {
		out = append(out, inst)
	}

	if de := w.stop; de != nil {
		de.Section = s.Name
		if len(out) == 0 {
			return nil, de
		}
		slog.Debug("disassembly stopped early",
			"section", s.Name,
			"decoded", len(out),
			"addr", fmt.Sprintf("%#x", de.Addr),
			"error", de.Msg)
		return out, nil
	}
	if len(out) == 0 {
		return nil, &DecodeError{Section: s.Name, Addr: s.VMA, Msg: "no instructions decoded"}
	}
	return out, nil
}
