package pdf

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	ferrors "github.com/a3tai/pdf-form-filler/internal/errors"
)

// headerWindow is how far into the file the %PDF- marker may appear
const headerWindow = 1024

var pdfHeader = []byte("%PDF-")

// Validator gates uploaded documents before any form processing
type Validator struct {
	maxFileSize int64
}

// NewValidator creates a new PDF validator with the specified size limit
func NewValidator(maxFileSize int64) *Validator {
	return &Validator{
		maxFileSize: maxFileSize,
	}
}

// MaxFileSize returns the configured size limit in bytes
func (v *Validator) MaxFileSize() int64 {
	return v.maxFileSize
}

// ValidateBytes checks size, header and parseability and returns the page count
func (v *Validator) ValidateBytes(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, ferrors.New(ferrors.KindInvalidInput, "PDF file is empty")
	}

	if v.maxFileSize > 0 && int64(len(data)) > v.maxFileSize {
		return 0, ferrors.Newf(ferrors.KindInvalidInput, "file too large: %d bytes (max: %d bytes)",
			len(data), v.maxFileSize)
	}

	window := data
	if len(window) > headerWindow {
		window = window[:headerWindow]
	}
	if !bytes.Contains(window, pdfHeader) {
		return 0, ferrors.New(ferrors.KindInvalidInput, "file is not a PDF")
	}

	return pageCount(data)
}

// pageCount opens the document with ledongthuc/pdf, which panics on some
// malformed inputs.
func pageCount(data []byte) (pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = 0
			err = ferrors.New(ferrors.KindMalformedDocument, "invalid PDF file").
				WithContext(fmt.Sprint(r))
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, ferrors.Wrap(ferrors.KindMalformedDocument, err, "invalid PDF file")
	}

	pages = r.NumPage()
	if pages == 0 {
		return 0, ferrors.New(ferrors.KindMalformedDocument, "PDF has no pages")
	}
	return pages, nil
}

// ReadFile validates a file path and returns the file's contents
func (v *Validator) ReadFile(filePath string) ([]byte, error) {
	if err := v.ValidateFileInfo(filePath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindInvalidInput, err, "cannot read file")
	}

	if _, err := v.ValidateBytes(data); err != nil {
		return nil, err
	}
	return data, nil
}

// ValidateFileInfo performs basic validation on a path without opening the PDF
func (v *Validator) ValidateFileInfo(filePath string) error {
	if filePath == "" {
		return ferrors.New(ferrors.KindInvalidInput, "path cannot be empty")
	}

	fileInfo, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return ferrors.Newf(ferrors.KindInvalidInput, "file does not exist: %s", filepath.Base(filePath))
	}
	if err != nil {
		return ferrors.Wrap(ferrors.KindInvalidInput, err, "cannot access file")
	}

	if fileInfo.IsDir() {
		return ferrors.Newf(ferrors.KindInvalidInput, "path is a directory, not a file: %s", filepath.Base(filePath))
	}

	if !strings.EqualFold(filepath.Ext(filePath), ".pdf") {
		return ferrors.Newf(ferrors.KindInvalidInput, "file is not a PDF: %s", filepath.Base(filePath))
	}

	if v.maxFileSize > 0 && fileInfo.Size() > v.maxFileSize {
		return ferrors.Newf(ferrors.KindInvalidInput, "file too large: %d bytes (max: %d bytes)",
			fileInfo.Size(), v.maxFileSize)
	}

	return nil
}
