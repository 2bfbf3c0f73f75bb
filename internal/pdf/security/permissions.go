package security

import "strings"

// Permissions holds the user access bits of an encrypted document's /P entry
type Permissions struct {
	Print     bool // bit 3
	Modify    bool // bit 4
	Copy      bool // bit 5
	Annotate  bool // bit 6, also allows filling form fields
	FillForms bool // bit 9
	Extract   bool // bit 10
	Assemble  bool // bit 11
}

// NewPermissions decodes a /P value
func NewPermissions(p int32) Permissions {
	return Permissions{
		Print:     p&(1<<2) != 0,
		Modify:    p&(1<<3) != 0,
		Copy:      p&(1<<4) != 0,
		Annotate:  p&(1<<5) != 0,
		FillForms: p&(1<<8) != 0,
		Extract:   p&(1<<9) != 0,
		Assemble:  p&(1<<10) != 0,
	}
}

// NewFullPermissions is the permission set of an unencrypted document
func NewFullPermissions() Permissions {
	return Permissions{
		Print: true, Modify: true, Copy: true, Annotate: true,
		FillForms: true, Extract: true, Assemble: true,
	}
}

// CanFillForms reports whether interactive form fields may be filled in
func (p Permissions) CanFillForms() bool {
	return p.FillForms || p.Annotate
}

// Denied lists the operations the document forbids
func (p Permissions) Denied() []string {
	var denied []string
	for _, op := range []struct {
		name    string
		allowed bool
	}{
		{"print", p.Print},
		{"modify", p.Modify},
		{"copy", p.Copy},
		{"annotate", p.Annotate},
		{"fill_forms", p.FillForms},
		{"extract", p.Extract},
		{"assemble", p.Assemble},
	} {
		if !op.allowed {
			denied = append(denied, op.name)
		}
	}
	return denied
}

// String returns a human-readable representation of the permissions
func (p Permissions) String() string {
	denied := p.Denied()
	if len(denied) == 0 {
		return "all operations allowed"
	}
	return "denied: " + strings.Join(denied, ", ")
}
