// Package fill writes matched values into a document's interactive form.
package fill

import (
	"bytes"
	"encoding/hex"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	ferrors "github.com/a3tai/pdf-form-filler/internal/errors"
	"github.com/a3tai/pdf-form-filler/internal/logging"
	"github.com/a3tai/pdf-form-filler/internal/match"
	"github.com/a3tai/pdf-form-filler/internal/pdf/extraction"
	"github.com/a3tai/pdf-form-filler/internal/pdf/security"
)

const defaultOnState = "Yes"

// Filler applies bindings to a copy of a document
type Filler struct {
	extractor *extraction.PDFCPUFormExtractor
	logger    *logging.Logger
}

// NewFiller creates a new form filler
func NewFiller(logger *logging.Logger) *Filler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Filler{
		extractor: extraction.NewPDFCPUFormExtractor(logger),
		logger:    logger,
	}
}

// Fill returns a new document with every binding that carries a value written
// into its field. The input slice is never modified. Bindings without a value
// and bindings naming fields the document does not have are skipped.
func (f *Filler) Fill(pdfBytes []byte, bindings []match.Binding) ([]byte, error) {
	ctx, err := extraction.OpenContext(bytes.NewReader(pdfBytes))
	if err != nil {
		return nil, err
	}

	if err := checkPermissions(ctx); err != nil {
		return nil, err
	}

	nodes, err := f.extractor.Nodes(ctx)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]extraction.FieldNode, len(nodes))
	for _, n := range nodes {
		if _, dup := byName[n.Field.Name]; !dup {
			byName[n.Field.Name] = n
		}
	}

	written := 0
	for _, b := range bindings {
		if !b.HasValue() {
			continue
		}

		node, ok := byName[b.Field.Name]
		if !ok {
			f.logger.Debugf("field %q not present in document, skipping", b.Field.Name)
			continue
		}

		switch node.Field.Kind {
		case extraction.FieldKindText:
			if setText(node, b.Value) {
				f.logger.Warnf("value for field %q truncated to %d characters", node.Field.Name, node.Field.MaxLength)
			}
		case extraction.FieldKindCheckbox:
			setCheckbox(ctx, node, b.Checked)
		case extraction.FieldKindChoice:
			if node.Field.Radio {
				setRadio(ctx, node, b.Value)
			} else {
				setChoice(node, b.Value)
			}
		default:
			f.logger.Debugf("field %q has kind %s, skipping", b.Field.Name, node.Field.Kind)
			continue
		}

		f.logger.Debugf("wrote %s field %q from %q (%s)", node.Field.Kind, node.Field.Name, b.MatchedKey, b.Confidence)
		written++
	}

	if written > 0 {
		acroForm, err := extraction.AcroForm(ctx)
		if err != nil {
			return nil, ferrors.Wrap(ferrors.KindFillError, err, "failed to update form dictionary")
		}
		// viewers regenerate the appearance streams dropped above
		acroForm.Update("NeedAppearances", types.Boolean(true))
	}

	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, ferrors.Wrap(ferrors.KindFillError, err, "failed to write PDF")
	}

	f.logger.Debugf("filled %d of %d fields", written, len(nodes))
	return buf.Bytes(), nil
}

// checkPermissions rejects encrypted documents whose user permissions forbid
// filling in form fields.
func checkPermissions(ctx *model.Context) error {
	if ctx.E == nil {
		return nil
	}
	perms := security.NewPermissions(int32(ctx.E.P))
	if !perms.CanFillForms() {
		return ferrors.New(ferrors.KindInvalidInput, "document permissions do not allow filling forms").
			WithContext(perms.String())
	}
	return nil
}

// setText writes a text value, cut to /MaxLen. It reports whether it cut.
func setText(node extraction.FieldNode, value string) (truncated bool) {
	if limit := node.Field.MaxLength; limit > 0 && utf8.RuneCountInString(value) > limit {
		value = string([]rune(value)[:limit])
		truncated = true
	}
	node.Dict.Update("V", encodeText(value))
	for _, w := range node.Widgets {
		w.Delete("AP")
	}
	return truncated
}

func setChoice(node extraction.FieldNode, value string) {
	node.Dict.Update("V", encodeText(value))
	node.Dict.Delete("I")
}

func setCheckbox(ctx *model.Context, node extraction.FieldNode, checked bool) {
	state := "Off"
	if checked {
		state = defaultOnState
		if states := extraction.OnStates(ctx, node.Widgets); len(states) > 0 {
			state = states[0]
		}
	}

	node.Dict.Update("V", types.Name(state))
	for _, w := range node.Widgets {
		w.Update("AS", types.Name(state))
	}
}

func setRadio(ctx *model.Context, node extraction.FieldNode, value string) {
	node.Dict.Update("V", types.Name(value))
	for _, w := range node.Widgets {
		state := "Off"
		for _, s := range extraction.WidgetOnStates(ctx, w) {
			if s == value {
				state = s
				break
			}
		}
		w.Update("AS", types.Name(state))
	}
}

// encodeText returns a PDF text string: an escaped literal for ASCII, UTF-16BE
// with a byte order mark otherwise.
func encodeText(s string) types.Object {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			ascii = false
			break
		}
	}

	if ascii {
		r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`, "\r", `\r`, "\n", `\n`)
		return types.StringLiteral(r.Replace(s))
	}

	units := utf16.Encode([]rune(s))
	b := make([]byte, 2, 2+2*len(units))
	b[0], b[1] = 0xFE, 0xFF
	for _, u := range units {
		b = append(b, byte(u>>8), byte(u))
	}
	return types.HexLiteral(hex.EncodeToString(b))
}
