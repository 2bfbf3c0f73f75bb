// Package testutil builds small AcroForm documents in memory for tests.
package testutil

import (
	"bytes"
	"fmt"
	"strings"
)

// PageText is drawn on the single page of every generated document.
const PageText = "Employment Application"

// Field describes one form field of a generated document.
type Field struct {
	Name string

	// Type is the PDF field type: Tx, Btn, Ch or Sig.
	Type   string
	Flags  int
	MaxLen int

	// TU is the alternate (tooltip) name.
	TU string

	// Opt lists plain choice options; OptPairs lists [export, display] pairs.
	Opt      []string
	OptPairs [][2]string
	Value    string
	// OnState names the checkbox on-state; defaults to Yes.
	OnState string
	// RadioStates creates one widget kid per state.
	RadioStates []string
	// Kids turns the field into a non-terminal group.
	Kids []Field
}

// Text returns a text field.
func Text(name string) Field { return Field{Name: name, Type: "Tx"} }

// Checkbox returns a checkbox with the default Yes on-state.
func Checkbox(name string) Field { return Field{Name: name, Type: "Btn"} }

// Choice returns a combo box with plain options.
func Choice(name string, options ...string) Field {
	return Field{Name: name, Type: "Ch", Flags: 1 << 17, Opt: options}
}

// Radio returns a radio group with one widget per state.
func Radio(name string, states ...string) Field {
	return Field{Name: name, Type: "Btn", Flags: 1<<15 | 1<<14, RadioStates: states}
}

// Group returns a non-terminal field holding kids.
func Group(name string, kids ...Field) Field { return Field{Name: name, Kids: kids} }

// Form renders a one page document whose AcroForm holds fields.
func Form(fields ...Field) []byte {
	b := newBuilder()
	b.form(fields)
	return b.bytes()
}

// PlainPDF renders a one page document without an interactive form.
func PlainPDF() []byte {
	b := newBuilder()
	b.plain()
	return b.bytes()
}

// EmptyForm renders a document whose AcroForm has an empty Fields array.
func EmptyForm() []byte { return Form() }

// SampleForm is an employment application with mixed field kinds.
func SampleForm() []byte {
	return Form(
		Text("FirstName"),
		Text("LastName"),
		Text("Email"),
		Field{Name: "Text1", Type: "Tx", TU: "Home Phone"},
		Text("Date"),
		Checkbox("US_Citizen"),
		Choice("State", "CA", "NY", "TX"),
		Radio("Shift", "Day", "Night"),
	)
}

// Object numbers of the fixed objects every document carries.
const (
	objCatalog = 1 + iota
	objPages
	objAcroForm
	objPage
	objFont
	objContents
	objAppearance
	firstFieldObj
)

type builder struct {
	objects map[int]string
	next    int
	fields  []int
	widgets []int
}

func newBuilder() *builder {
	return &builder{objects: make(map[int]string), next: firstFieldObj}
}

func (b *builder) alloc() int {
	n := b.next
	b.next++
	return n
}

func (b *builder) fixed(withForm bool) {
	catalog := fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R", objPages)
	if withForm {
		catalog += fmt.Sprintf(" /AcroForm %d 0 R", objAcroForm)
	}
	b.objects[objCatalog] = catalog + " >>"
	b.objects[objPages] = fmt.Sprintf("<< /Type /Pages /Kids [%d 0 R] /Count 1 >>", objPage)
	b.objects[objFont] = "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>"

	content := fmt.Sprintf("BT /F1 18 Tf 72 720 Td (%s) Tj ET", PageText)
	b.objects[objContents] = stream("<<", content)
	b.objects[objAppearance] = stream("<< /Type /XObject /Subtype /Form /BBox [0 0 12 12]", "")
}

func (b *builder) page() {
	annots := ""
	if len(b.widgets) > 0 {
		annots = " /Annots " + refs(b.widgets)
	}
	b.objects[objPage] = fmt.Sprintf(
		"<< /Type /Page /Parent %d 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R%s >>",
		objPages, objFont, objContents, annots)
}

func (b *builder) plain() {
	b.fixed(false)
	b.page()
}

func (b *builder) form(fields []Field) {
	b.fixed(true)
	y := 700
	for _, f := range fields {
		b.fields = append(b.fields, b.field(f, 0, &y))
	}
	b.objects[objAcroForm] = fmt.Sprintf(
		"<< /Fields %s /DA (/Helv 0 Tf 0 g) /DR << /Font << /Helv %d 0 R >> >> >>",
		refs(b.fields), objFont)
	b.page()
}

// field writes f (and any kids) and returns its object number.
func (b *builder) field(f Field, parent int, y *int) int {
	nr := b.alloc()

	var d strings.Builder
	d.WriteString("<<")
	if f.Name != "" {
		fmt.Fprintf(&d, " /T %s", literal(f.Name))
	}
	if parent != 0 {
		fmt.Fprintf(&d, " /Parent %d 0 R", parent)
	}
	if f.TU != "" {
		fmt.Fprintf(&d, " /TU %s", literal(f.TU))
	}
	if f.Type != "" {
		fmt.Fprintf(&d, " /FT /%s", f.Type)
	}
	if f.Flags != 0 {
		fmt.Fprintf(&d, " /Ff %d", f.Flags)
	}
	if f.MaxLen > 0 {
		fmt.Fprintf(&d, " /MaxLen %d", f.MaxLen)
	}

	switch {
	case len(f.Kids) > 0:
		var kids []int
		for _, k := range f.Kids {
			kids = append(kids, b.field(k, nr, y))
		}
		fmt.Fprintf(&d, " /Kids %s", refs(kids))

	case len(f.RadioStates) > 0:
		var kids []int
		for _, state := range f.RadioStates {
			w := b.alloc()
			b.objects[w] = fmt.Sprintf(
				"<< /Type /Annot /Subtype /Widget /Parent %d 0 R /P %d 0 R /Rect %s /AP << /N << /%s %d 0 R /Off %d 0 R >> >> /AS /Off >>",
				nr, objPage, rect(y, 12), state, objAppearance, objAppearance)
			kids = append(kids, w)
			b.widgets = append(b.widgets, w)
		}
		fmt.Fprintf(&d, " /Kids %s /V /Off", refs(kids))

	default:
		fmt.Fprintf(&d, " /Type /Annot /Subtype /Widget /P %d 0 R", objPage)
		switch f.Type {
		case "Btn":
			on := f.OnState
			if on == "" {
				on = "Yes"
			}
			fmt.Fprintf(&d, " /Rect %s /AP << /N << /%s %d 0 R /Off %d 0 R >> >> /AS /Off /V /Off",
				rect(y, 12), on, objAppearance, objAppearance)
		default:
			fmt.Fprintf(&d, " /Rect %s", rect(y, 200))
		}
		if len(f.Opt) > 0 || len(f.OptPairs) > 0 {
			var opts []string
			for _, o := range f.Opt {
				opts = append(opts, literal(o))
			}
			for _, p := range f.OptPairs {
				opts = append(opts, "["+literal(p[0])+" "+literal(p[1])+"]")
			}
			fmt.Fprintf(&d, " /Opt [%s]", strings.Join(opts, " "))
		}
		if f.Value != "" && f.Type != "Btn" {
			fmt.Fprintf(&d, " /V %s", literal(f.Value))
		}
		b.widgets = append(b.widgets, nr)
	}

	d.WriteString(" >>")
	b.objects[nr] = d.String()
	return nr
}

func (b *builder) bytes() []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")

	size := b.next
	offsets := make([]int, size)
	for nr := 1; nr < size; nr++ {
		body, ok := b.objects[nr]
		if !ok {
			continue
		}
		offsets[nr] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", nr, body)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", size)
	buf.WriteString("0000000000 65535 f \n")
	for nr := 1; nr < size; nr++ {
		if _, ok := b.objects[nr]; ok {
			fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[nr])
		} else {
			buf.WriteString("0000000000 65535 f \n")
		}
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", size, objCatalog, xref)
	return buf.Bytes()
}

func stream(dictPrefix, content string) string {
	return fmt.Sprintf("%s /Length %d >>\nstream\n%s\nendstream", dictPrefix, len(content), content)
}

func refs(nrs []int) string {
	parts := make([]string, len(nrs))
	for i, n := range nrs {
		parts[i] = fmt.Sprintf("%d 0 R", n)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func rect(y *int, width int) string {
	r := fmt.Sprintf("[72 %d %d %d]", *y, 72+width, *y+14)
	*y -= 24
	return r
}

func literal(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return "(" + r.Replace(s) + ")"
}
