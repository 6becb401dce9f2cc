package cmd

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"bininfo/internal/loader"
)

// Report is the --json output.
type Report struct {
	File     string          `json:"file"`
	Digest   string          `json:"digest"`
	Size     int64           `json:"size"`
	Type     string          `json:"type"`
	Arch     string          `json:"arch"`
	Bits     int             `json:"bits"`
	Entry    string          `json:"entry"`
	Sections []ReportSection `json:"sections"`
	Symbols  []ReportSymbol  `json:"symbols"`
}

// ReportSection describes one loaded section.
type ReportSection struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	VMA  string `json:"vma"`
	Size uint64 `json:"size"`
	XXH3 string `json:"xxh3"`
}

// ReportSymbol describes one merged symbol table entry.
type ReportSymbol struct {
	Name   string   `json:"name"`
	Addr   string   `json:"addr"`
	Flags  []string `json:"flags"`
	Source string   `json:"source"`
}

// sanitizeForJSON cleans a string to be valid UTF-8 and safe for JSON encoding
func sanitizeForJSON(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "�")
}

func fileDigest(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("failed to calculate digest: %w", err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), n, nil
}

func symbolFlags(t loader.SymbolType) []string {
	if t == loader.SymTypeUnknown {
		return []string{}
	}
	return strings.Split(t.String(), "|")
}

func newReport(bin *loader.Binary) Report {
	r := Report{
		File:     sanitizeForJSON(bin.Filename),
		Type:     bin.TypeLabel,
		Arch:     bin.ArchLabel,
		Bits:     bin.Bits,
		Entry:    fmt.Sprintf("0x%016x", bin.Entry),
		Sections: make([]ReportSection, 0, len(bin.Sections)),
		Symbols:  make([]ReportSymbol, 0, len(bin.Symbols)),
	}
	for _, s := range bin.Sections {
		r.Sections = append(r.Sections, ReportSection{
			Name: sanitizeForJSON(s.Name),
			Kind: s.Kind.String(),
			VMA:  fmt.Sprintf("0x%016x", s.VMA),
			Size: s.Size,
			XXH3: fingerprint(s),
		})
	}
	for _, sym := range bin.Symbols {
		r.Symbols = append(r.Symbols, ReportSymbol{
			Name:   sanitizeForJSON(sym.Name),
			Addr:   fmt.Sprintf("0x%016x", sym.Addr),
			Flags:  symbolFlags(sym.Type),
			Source: sym.Source.String(),
		})
	}
	return r
}

func runJSON(w io.Writer, o *options, path string) error {
	bin, err := o.load(path)
	if err != nil {
		return err
	}
	defer bin.Unload()

	r := newReport(bin)
	r.Digest, r.Size, err = fileDigest(path)
	if err != nil {
		return err
	}

	jsonData, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(jsonData))
	return err
}
