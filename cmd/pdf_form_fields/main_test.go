package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/pdf-form-filler/internal/pdf/extraction"
	"github.com/a3tai/pdf-form-filler/internal/testutil"
)

const applicantData = `First Name: Jane
Last Name: Doe
Email Address: jane.doe@example.com
Phone: 555-0100
US Citizen: Yes
State: TX
Shift: Day
`

// workspace writes the sample form and data file to a temp dir
func workspace(t *testing.T) (dir, form, data string) {
	t.Helper()
	dir = t.TempDir()
	form = filepath.Join(dir, "application.pdf")
	data = filepath.Join(dir, "me.txt")
	require.NoError(t, os.WriteFile(form, testutil.SampleForm(), 0o644))
	require.NoError(t, os.WriteFile(data, []byte(applicantData), 0o644))
	return dir, form, data
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	err := root.Execute()
	return out.String(), err
}

func valuesOf(t *testing.T, path string) map[string]string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	fields, err := extraction.NewPDFCPUFormExtractor(nil).ExtractFormsFromBytes(data)
	require.NoError(t, err)
	values := map[string]string{}
	for _, f := range fields {
		values[f.Name] = f.Value
	}
	return values
}

func TestRootCommand(t *testing.T) {
	out, err := execute(t, "", "--version")
	require.NoError(t, err)
	assert.Contains(t, out, version)

	_, err = execute(t, "", "nonexistent-command")
	assert.Error(t, err)
}

func TestFieldsCommand(t *testing.T) {
	_, form, _ := workspace(t)

	out, err := execute(t, "", "fields", form)
	require.NoError(t, err)
	assert.Contains(t, out, "application.pdf")
	assert.Contains(t, out, "FirstName")
	assert.Contains(t, out, `"Home Phone"`)
	assert.Contains(t, out, "options: CA, NY, TX")
	assert.Contains(t, out, "8 field(s)")

	out, err = execute(t, "", "fields", "--format", "json", form)
	require.NoError(t, err)
	var fields []extraction.FormField
	require.NoError(t, json.Unmarshal([]byte(out), &fields))
	assert.Len(t, fields, 8)
}

func TestFieldsCommandErrors(t *testing.T) {
	dir, form, _ := workspace(t)

	_, err := execute(t, "", "fields")
	assert.Error(t, err, "missing argument")

	_, err = execute(t, "", "fields", filepath.Join(dir, "missing.pdf"))
	assert.Error(t, err)

	_, err = execute(t, "", "fields", "--format", "xml", form)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")

	plain := filepath.Join(dir, "plain.pdf")
	require.NoError(t, os.WriteFile(plain, testutil.PlainPDF(), 0o644))
	out, err := execute(t, "", "fields", plain)
	if err == nil {
		assert.Contains(t, out, "no interactive fields")
	}
}

func TestMatchCommand(t *testing.T) {
	_, form, data := workspace(t)

	out, err := execute(t, "", "match", form, "--data", data)
	require.NoError(t, err)
	assert.Contains(t, out, "FirstName = Jane")
	assert.Contains(t, out, "US_Citizen = checked")
	assert.Contains(t, out, "7 of 8 fields")

	out, err = execute(t, applicantData, "match", form, "--data", "-", "--format", "json")
	require.NoError(t, err)
	var preview struct {
		Summary struct {
			Total  int `json:"total"`
			Filled int `json:"filled"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &preview))
	assert.Equal(t, 8, preview.Summary.Total)
	assert.Equal(t, 7, preview.Summary.Filled)

	_, err = execute(t, "", "match", form)
	assert.Error(t, err, "--data is required")

	_, err = execute(t, "", "match", form, "--data", "-")
	assert.Error(t, err, "empty data")
}

func TestFillCommand(t *testing.T) {
	dir, form, data := workspace(t)
	source, err := os.ReadFile(form)
	require.NoError(t, err)

	out, err := execute(t, "", "fill", form, "--data", data)
	require.NoError(t, err)
	target := filepath.Join(dir, "application_filled.pdf")
	assert.Contains(t, out, target)

	values := valuesOf(t, target)
	assert.Equal(t, "Jane", values["FirstName"])
	assert.Equal(t, "555-0100", values["Text1"])
	assert.Equal(t, "TX", values["State"])

	after, err := os.ReadFile(form)
	require.NoError(t, err)
	assert.Equal(t, source, after, "source document must stay untouched")

	_, err = execute(t, "", "fill", form, "--data", data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(t, "", "fill", form, "--data", data, "--overwrite")
	assert.NoError(t, err)
}

func TestFillCommandOutput(t *testing.T) {
	dir, form, data := workspace(t)

	custom := filepath.Join(dir, "jane.pdf")
	out, err := execute(t, "", "fill", form, "--data", data, "--out", custom, "--auto-date", "--format", "json")
	require.NoError(t, err)

	var result struct {
		Output  string `json:"output"`
		Summary struct {
			Filled int `json:"filled"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, custom, result.Output)
	assert.Equal(t, 8, result.Summary.Filled)
	assert.NotEmpty(t, valuesOf(t, custom)["Date"])

	_, err = execute(t, "", "fill", form, "--data", data, "--out", form, "--overwrite")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source document")
}

func TestWriteOutput(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out.pdf")

	require.NoError(t, writeOutput(filepath.Join(dir, "in.pdf"), target, []byte("one"), false))
	assert.Error(t, writeOutput(filepath.Join(dir, "in.pdf"), target, []byte("two"), false))
	require.NoError(t, writeOutput(filepath.Join(dir, "in.pdf"), target, []byte("two"), true))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}
