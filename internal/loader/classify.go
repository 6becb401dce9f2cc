package loader

// SectionKind is the role a loaded section plays in the binary.
type SectionKind int

const (
	KindNone SectionKind = iota
	KindCode
	KindData
)

func (k SectionKind) String() string {
	switch k {
	case KindCode:
		return "CODE"
	case KindData:
		return "DATA"
	default:
		return "NONE"
	}
}

// UnnamedSection replaces empty section names.
const UnnamedSection = "<unnamed>"

// Classify maps raw section flags onto CODE, DATA or NONE. Code wins over
// data when both bits are present.
func Classify(s RawSection) SectionKind {
	switch {
	case s.Flags&SecCode != 0:
		return KindCode
	case s.Flags&SecData != 0:
		return KindData
	default:
		return KindNone
	}
}

func sectionName(s RawSection) string {
	if s.Name == "" {
		return UnnamedSection
	}
	return s.Name
}
