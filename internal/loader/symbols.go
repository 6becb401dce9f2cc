package loader

import "strings"

// MaxSymbolNameLen is the longest symbol name stored without truncation.
// Longer names keep their first MaxSymbolNameLen-2 bytes followed by "...".
const MaxSymbolNameLen = 38

// SymbolType is a bitset describing a symbol. Zero means unknown.
type SymbolType uint8

const (
	SymTypeFunction SymbolType = 1 << iota
	SymTypeLocal
	SymTypeGlobal
	SymTypeDebug
)

// SymTypeUnknown is the value of a symbol with no recognized attributes.
const SymTypeUnknown SymbolType = 0

func (t SymbolType) Has(f SymbolType) bool { return t&f != 0 }

func (t SymbolType) String() string {
	if t == SymTypeUnknown {
		return "UNKNOWN"
	}
	var parts []string
	if t.Has(SymTypeFunction) {
		parts = append(parts, "FUNCTION")
	}
	if t.Has(SymTypeLocal) {
		parts = append(parts, "LOCAL")
	}
	if t.Has(SymTypeGlobal) {
		parts = append(parts, "GLOBAL")
	}
	if t.Has(SymTypeDebug) {
		parts = append(parts, "DEBUG")
	}
	return strings.Join(parts, "|")
}

// SymbolSource records which table a symbol was read from.
type SymbolSource int

const (
	SourceStatic SymbolSource = iota
	SourceDynamic
)

func (s SymbolSource) String() string {
	if s == SourceDynamic {
		return "dynamic"
	}
	return "static"
}

// Symbol is one entry of the merged symbol list.
type Symbol struct {
	Name   string
	Addr   uint64
	Type   SymbolType
	Source SymbolSource
}

// TruncateSymbolName applies the display budget to a symbol name.
func TruncateSymbolName(name string) string {
	if len(name) <= MaxSymbolNameLen {
		return name
	}
	return name[:MaxSymbolNameLen-2] + "..."
}

// staticSymbolType accumulates every matching attribute.
func staticSymbolType(fl RawSymbolFlags) SymbolType {
	t := SymTypeUnknown
	if fl&SymFunction != 0 {
		t |= SymTypeFunction
	}
	if fl&SymLocal != 0 {
		t |= SymTypeLocal
	}
	if fl&SymGlobal != 0 {
		t |= SymTypeGlobal
	}
	if fl&SymDebugging != 0 {
		t |= SymTypeDebug
	}
	return t
}

// dynamicSymbolType keeps only the last matching attribute in the order
// function, local, global, debug. Dynamic entries never carry more than
// one bit; listings built on this output depend on that.
func dynamicSymbolType(fl RawSymbolFlags) SymbolType {
	t := SymTypeUnknown
	if fl&SymFunction != 0 {
		t = SymTypeFunction
	}
	if fl&SymLocal != 0 {
		t = SymTypeLocal
	}
	if fl&SymGlobal != 0 {
		t = SymTypeGlobal
	}
	if fl&SymDebugging != 0 {
		t = SymTypeDebug
	}
	return t
}

// CollectSymbols merges the static and dynamic tables into one list,
// static entries first, each table in its native order. Entries present in
// both tables are kept twice.
func CollectSymbols(static, dynamic []RawSymbol) []Symbol {
	out := make([]Symbol, 0, len(static)+len(dynamic))
	for _, s := range static {
		out = append(out, Symbol{
			Name:   TruncateSymbolName(s.Name),
			Addr:   s.Value,
			Type:   staticSymbolType(s.Flags),
			Source: SourceStatic,
		})
	}
	for _, s := range dynamic {
		out = append(out, Symbol{
			Name:   TruncateSymbolName(s.Name),
			Addr:   s.Value,
			Type:   dynamicSymbolType(s.Flags),
			Source: SourceDynamic,
		})
	}
	return out
}
