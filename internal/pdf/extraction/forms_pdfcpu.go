package extraction

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	ferrors "github.com/a3tai/pdf-form-filler/internal/errors"
	"github.com/a3tai/pdf-form-filler/internal/logging"
)

// maxFieldDepth bounds the field tree walk; real forms rarely nest past 6.
const maxFieldDepth = 32

// FieldNode ties a catalog entry to the pdfcpu dictionaries backing it, so a
// writer can update the same objects the catalog read.
type FieldNode struct {
	Field   FormField
	Dict    types.Dict
	Widgets []types.Dict
}

// PDFCPUFormExtractor implements form field discovery using the pdfcpu library
type PDFCPUFormExtractor struct {
	logger *logging.Logger
}

// NewPDFCPUFormExtractor creates a new form extractor using pdfcpu
func NewPDFCPUFormExtractor(logger *logging.Logger) *PDFCPUFormExtractor {
	if logger == nil {
		logger = logging.Nop()
	}
	return &PDFCPUFormExtractor{logger: logger}
}

// ExtractFormsFromFile extracts all form fields from a PDF file
func (fe *PDFCPUFormExtractor) ExtractFormsFromFile(filePath string) ([]FormField, error) {
	fe.logger.Debugf("extracting forms from %s", filePath)

	file, err := os.Open(filePath)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindInvalidInput, err, "failed to open PDF file")
	}
	defer file.Close()

	return fe.ExtractFormsFromReader(file)
}

// ExtractFormsFromBytes extracts form fields from an in-memory document.
// The slice is only read.
func (fe *PDFCPUFormExtractor) ExtractFormsFromBytes(data []byte) ([]FormField, error) {
	return fe.ExtractFormsFromReader(bytes.NewReader(data))
}

// ExtractFormsFromReader extracts forms from an io.ReadSeeker
func (fe *PDFCPUFormExtractor) ExtractFormsFromReader(reader io.ReadSeeker) ([]FormField, error) {
	ctx, err := OpenContext(reader)
	if err != nil {
		return nil, err
	}

	nodes, err := fe.Nodes(ctx)
	if err != nil {
		return nil, err
	}

	fields := make([]FormField, len(nodes))
	for i, n := range nodes {
		fields[i] = n.Field
	}
	return fields, nil
}

// OpenContext reads a document into a pdfcpu context in relaxed validation mode.
func OpenContext(reader io.ReadSeeker) (*model.Context, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(reader, conf)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindMalformedDocument, err, "failed to read PDF")
	}

	if err := ctx.EnsurePageCount(); err != nil {
		return nil, ferrors.Wrap(ferrors.KindMalformedDocument, err, "failed to read page tree")
	}

	return ctx, nil
}

// Nodes walks the AcroForm field tree depth-first in document order and
// returns one node per terminal field.
func (fe *PDFCPUFormExtractor) Nodes(ctx *model.Context) ([]FieldNode, error) {
	acroForm, err := AcroForm(ctx)
	if err != nil {
		return nil, err
	}

	fieldsObj, found := acroForm.Find("Fields")
	if !found {
		return nil, ferrors.New(ferrors.KindMalformedDocument, "document has no interactive form").
			WithContext("AcroForm has no Fields array")
	}

	fieldsArray, err := ctx.DereferenceArray(fieldsObj)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindMalformedDocument, err, "failed to dereference Fields array")
	}

	w := &walker{ctx: ctx, logger: fe.logger, seen: make(map[int]bool)}
	for i, fieldRef := range fieldsArray {
		w.walk(fieldRef, "", inherited{}, i, 0)
	}

	if len(w.nodes) == 0 {
		return nil, ferrors.New(ferrors.KindInvalidInput, "document has no form fields")
	}

	fe.logger.Debugf("catalog found %d fields", len(w.nodes))
	return w.nodes, nil
}

// AcroForm returns the document's interactive form dictionary.
func AcroForm(ctx *model.Context) (types.Dict, error) {
	rootDict, err := ctx.Catalog()
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindMalformedDocument, err, "failed to get catalog")
	}

	acroFormObj, found := rootDict.Find("AcroForm")
	if !found {
		return nil, ferrors.New(ferrors.KindMalformedDocument, "document has no interactive form")
	}

	acroFormDict, err := ctx.DereferenceDict(acroFormObj)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindMalformedDocument, err, "failed to dereference AcroForm")
	}
	if acroFormDict == nil {
		return nil, ferrors.New(ferrors.KindMalformedDocument, "document has no interactive form")
	}

	return acroFormDict, nil
}

// inherited carries the inheritable field attributes down the tree
type inherited struct {
	ft    string
	flags int
}

type walker struct {
	ctx    *model.Context
	logger *logging.Logger
	seen   map[int]bool
	nodes  []FieldNode
}

func (w *walker) walk(obj types.Object, parentName string, inh inherited, index, depth int) {
	if depth > maxFieldDepth {
		w.logger.Warnf("field tree deeper than %d levels under %q, skipping", maxFieldDepth, parentName)
		return
	}

	if ref, ok := obj.(types.IndirectRef); ok {
		nr := ref.ObjectNumber.Value()
		if w.seen[nr] {
			w.logger.Debugf("field object %d already visited, skipping", nr)
			return
		}
		w.seen[nr] = true
	}

	dict, err := w.ctx.DereferenceDict(obj)
	if err != nil || dict == nil {
		w.logger.Debugf("error processing field %d: %v", index, err)
		return
	}

	partial := w.stringEntry(dict, "T")
	name := partial
	if parentName != "" && partial != "" {
		name = parentName + "." + partial
	} else if partial == "" {
		name = parentName
	}
	if name == "" {
		name = fmt.Sprintf("field_%d", index)
	}

	if ft := w.nameEntry(dict, "FT"); ft != "" {
		inh.ft = ft
	}
	if flags, ok := w.intEntry(dict, "Ff"); ok {
		inh.flags = flags
	}

	fieldKids, widgetKids := w.splitKids(dict)
	if len(fieldKids) > 0 {
		for i, kid := range fieldKids {
			w.walk(kid, name, inh, i, depth+1)
		}
		return
	}

	widgets := widgetKids
	if len(widgets) == 0 {
		// field and widget merged into one dictionary
		widgets = []types.Dict{dict}
	}

	w.nodes = append(w.nodes, FieldNode{
		Field:   w.buildField(dict, widgets, name, partial, inh),
		Dict:    dict,
		Widgets: widgets,
	})
}

// splitKids separates child fields (which carry /T) from widget annotations.
func (w *walker) splitKids(dict types.Dict) (fields []types.Object, widgets []types.Dict) {
	kidsObj, found := dict.Find("Kids")
	if !found {
		return nil, nil
	}
	kids, err := w.ctx.DereferenceArray(kidsObj)
	if err != nil {
		return nil, nil
	}

	for _, kid := range kids {
		kidDict, err := w.ctx.DereferenceDict(kid)
		if err != nil || kidDict == nil {
			continue
		}
		if _, hasName := kidDict.Find("T"); hasName {
			fields = append(fields, kid)
		} else {
			widgets = append(widgets, kidDict)
		}
	}
	return fields, widgets
}

func (w *walker) buildField(dict types.Dict, widgets []types.Dict, name, partial string, inh inherited) FormField {
	kind, radio := kindFor(inh.ft, inh.flags)

	field := FormField{
		Name:        name,
		PartialName: partial,
		AltName:     w.stringEntry(dict, "TU"),
		Kind:        kind,
		Radio:       radio,
		PDFType:     inh.ft,
		ReadOnly:    inh.flags&flagReadOnly != 0,
		Required:    inh.flags&flagRequired != 0,
	}

	if v, found := dict.Find("V"); found {
		field.Value = w.valueString(v)
	}
	if dv, found := dict.Find("DV"); found {
		field.DefaultValue = w.valueString(dv)
	}
	if maxLen, ok := w.intEntry(dict, "MaxLen"); ok {
		field.MaxLength = maxLen
	}

	switch {
	case radio:
		field.Choices = OnStates(w.ctx, widgets)
		field.Exports = append([]string(nil), field.Choices...)
	case kind == FieldKindChoice:
		field.Choices, field.Exports = w.options(dict)
	}

	w.logger.Debugf("extracted field: %s (kind: %s)", field.Name, field.Kind)
	return field
}

// options extracts /Opt entries; each is either a string or an
// [export display] pair.
func (w *walker) options(dict types.Dict) (display, exports []string) {
	optObj, found := dict.Find("Opt")
	if !found {
		return nil, nil
	}
	optArray, err := w.ctx.DereferenceArray(optObj)
	if err != nil {
		return nil, nil
	}

	for _, opt := range optArray {
		if s, err := w.ctx.DereferenceStringOrHexLiteral(opt, model.V10, nil); err == nil {
			display = append(display, s)
			exports = append(exports, s)
			continue
		}
		pair, err := w.ctx.DereferenceArray(opt)
		if err != nil || len(pair) < 2 {
			continue
		}
		export, err1 := w.ctx.DereferenceStringOrHexLiteral(pair[0], model.V10, nil)
		shown, err2 := w.ctx.DereferenceStringOrHexLiteral(pair[1], model.V10, nil)
		if err1 == nil && err2 == nil {
			display = append(display, shown)
			exports = append(exports, export)
		}
	}
	return display, exports
}

// valueString renders a /V or /DV entry as text: strings as-is, names
// without the slash, arrays comma-joined.
func (w *walker) valueString(obj types.Object) string {
	if s, err := w.ctx.DereferenceStringOrHexLiteral(obj, model.V10, nil); err == nil {
		return s
	}
	if n, err := w.ctx.DereferenceName(obj, model.V10, nil); err == nil {
		return string(n)
	}
	if arr, err := w.ctx.DereferenceArray(obj); err == nil {
		var parts []string
		for _, item := range arr {
			if s, err := w.ctx.DereferenceStringOrHexLiteral(item, model.V10, nil); err == nil {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

func (w *walker) stringEntry(dict types.Dict, key string) string {
	obj, found := dict.Find(key)
	if !found {
		return ""
	}
	s, err := w.ctx.DereferenceStringOrHexLiteral(obj, model.V10, nil)
	if err != nil {
		return ""
	}
	return s
}

func (w *walker) nameEntry(dict types.Dict, key string) string {
	obj, found := dict.Find(key)
	if !found {
		return ""
	}
	n, err := w.ctx.DereferenceName(obj, model.V10, nil)
	if err != nil {
		return ""
	}
	return string(n)
}

func (w *walker) intEntry(dict types.Dict, key string) (int, bool) {
	obj, found := dict.Find(key)
	if !found {
		return 0, false
	}
	i, err := w.ctx.DereferenceInteger(obj)
	if err != nil || i == nil {
		return 0, false
	}
	return i.Value(), true
}

// OnStates lists the non-Off appearance state names across widgets, in
// widget order, without duplicates.
func OnStates(ctx *model.Context, widgets []types.Dict) []string {
	var states []string
	seen := make(map[string]bool)
	for _, widget := range widgets {
		for _, s := range WidgetOnStates(ctx, widget) {
			if !seen[s] {
				seen[s] = true
				states = append(states, s)
			}
		}
	}
	return states
}

// WidgetOnStates returns the sorted non-Off state names of a widget's normal
// appearance dictionary.
func WidgetOnStates(ctx *model.Context, widget types.Dict) []string {
	apObj, found := widget.Find("AP")
	if !found {
		return nil
	}
	ap, err := ctx.DereferenceDict(apObj)
	if err != nil || ap == nil {
		return nil
	}
	nObj, found := ap.Find("N")
	if !found {
		return nil
	}
	n, err := ctx.DereferenceDict(nObj)
	if err != nil || n == nil {
		return nil
	}

	var states []string
	for k := range n {
		if k != "Off" {
			states = append(states, k)
		}
	}
	sort.Strings(states)
	return states
}
