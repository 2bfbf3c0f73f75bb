package extraction

import "strings"

// FieldKind is the fill-relevant category of a form field
type FieldKind string

const (
	FieldKindText     FieldKind = "text"
	FieldKindCheckbox FieldKind = "checkbox"
	FieldKindChoice   FieldKind = "choice"
	FieldKindUnknown  FieldKind = "unknown"
)

// FormField describes one terminal field of a document's interactive form.
type FormField struct {
	// Name is the fully qualified name, partial names joined with ".".
	Name string `json:"name"`
	// PartialName is the field's own /T entry.
	PartialName string `json:"partial_name"`
	// AltName is the /TU tooltip, often the human label on generated forms.
	AltName string    `json:"alt_name,omitempty"`
	Kind    FieldKind `json:"kind"`
	// Choices holds display values, Exports the parallel values written to /V.
	Choices []string `json:"choices,omitempty"`
	Exports []string `json:"exports,omitempty"`
	Radio   bool     `json:"radio,omitempty"`

	PDFType      string `json:"pdf_type,omitempty"`
	Value        string `json:"value,omitempty"`
	DefaultValue string `json:"default_value,omitempty"`
	Required     bool   `json:"required"`
	ReadOnly     bool   `json:"read_only"`
	MaxLength    int    `json:"max_length,omitempty"`
}

// Fillable reports whether the filler may write to the field
func (f FormField) Fillable() bool {
	return f.Kind != FieldKindUnknown && !f.ReadOnly
}

// ExportFor returns the export value for a choice, matching display or export
// values case-insensitively.
func (f FormField) ExportFor(value string) (string, bool) {
	value = strings.TrimSpace(value)
	for i, c := range f.Choices {
		export := c
		if i < len(f.Exports) {
			export = f.Exports[i]
		}
		if strings.EqualFold(c, value) || strings.EqualFold(export, value) {
			return export, true
		}
	}
	return "", false
}

// Field flag bits (PDF 32000-1, 12.7.3.1 and 12.7.4)
const (
	flagReadOnly   = 1 << 0
	flagRequired   = 1 << 1
	flagRadio      = 1 << 15
	flagPushbutton = 1 << 16
)

// kindFor maps a field type name and flag word to a FieldKind
func kindFor(ft string, flags int) (kind FieldKind, radio bool) {
	switch ft {
	case "Tx":
		return FieldKindText, false
	case "Btn":
		switch {
		case flags&flagPushbutton != 0:
			return FieldKindUnknown, false
		case flags&flagRadio != 0:
			return FieldKindChoice, true
		default:
			return FieldKindCheckbox, false
		}
	case "Ch":
		return FieldKindChoice, false
	default:
		// Sig and custom types are listed but never written
		return FieldKindUnknown, false
	}
}
