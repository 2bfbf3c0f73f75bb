package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPermissions(t *testing.T) {
	tests := []struct {
		name     string
		p        int32
		canFill  bool
		denied   []string
		readable string
	}{
		{
			name:     "everything allowed",
			p:        -1,
			canFill:  true,
			readable: "all operations allowed",
		},
		{
			name:     "print only",
			p:        int32(-4096) | 0x04,
			canFill:  false,
			denied:   []string{"modify", "copy", "annotate", "fill_forms", "extract", "assemble"},
			readable: "denied: modify, copy, annotate, fill_forms, extract, assemble",
		},
		{
			name:    "fill forms without annotate",
			p:       int32(-4096) | 0x04 | 0x100,
			canFill: true,
			denied:  []string{"modify", "copy", "annotate", "extract", "assemble"},
		},
		{
			name:    "extract does not grant fill",
			p:       int32(-4096) | 0x04 | 0x200,
			canFill: false,
			denied:  []string{"modify", "copy", "annotate", "fill_forms", "assemble"},
		},
		{
			name:    "annotate implies fill",
			p:       int32(-4096) | 0x20,
			canFill: true,
			denied:  []string{"print", "modify", "copy", "fill_forms", "extract", "assemble"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perms := NewPermissions(tt.p)
			assert.Equal(t, tt.canFill, perms.CanFillForms())
			assert.Equal(t, tt.denied, perms.Denied())
			if tt.readable != "" {
				assert.Equal(t, tt.readable, perms.String())
			}
		})
	}
}

func TestNewFullPermissions(t *testing.T) {
	perms := NewFullPermissions()
	assert.True(t, perms.CanFillForms())
	assert.Empty(t, perms.Denied())
	assert.Equal(t, NewPermissions(-1), perms)
}
