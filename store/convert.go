package store

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
)

// IsConvertible reports whether Convert renders the file at p.
func IsConvertible(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".json", ".xml":
		return true
	}
	return false
}

// Convert renders every JSON and XML file directly under dir as a PDF next
// to it (report.json becomes report.pdf) and returns the PDFs written.
// A file that fails to convert does not stop the others.
func (s *Store) Convert(dir string) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", dir, err)
	}

	var written []string
	var errs error
	for _, entry := range entries {
		if entry.IsDir() || !IsConvertible(entry.Name()) {
			continue
		}
		result, err := s.ConvertFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		written = append(written, result.Path)
	}
	return written, errs
}

// ConvertFile pretty-prints one JSON or XML file into a monospace PDF with
// the same base name.
func (s *Store) ConvertFile(src string) (WriteResult, error) {
	data, err := afero.ReadFile(s.fs, src)
	if err != nil {
		return WriteResult{}, fmt.Errorf("read %s: %w", src, err)
	}

	var text string
	switch strings.ToLower(filepath.Ext(src)) {
	case ".json":
		text, err = prettyJSON(data)
	case ".xml":
		text, err = prettyXML(data)
	default:
		err = errors.New("not a JSON or XML file")
	}
	if err != nil {
		return WriteResult{}, fmt.Errorf("convert %s: %w", src, err)
	}

	var buf bytes.Buffer
	if err := RenderPDF(&buf, filepath.Base(src), text); err != nil {
		return WriteResult{}, fmt.Errorf("render %s: %w", src, err)
	}
	return s.Write(strings.TrimSuffix(src, filepath.Ext(src))+".pdf", &buf)
}

// RenderPDF writes an A4 document with title as its heading and text in
// Courier, one paragraph per line, long lines wrapped.
func RenderPDF(w io.Writer, title, text string) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 14)
	pdf.MultiCell(0, 8, tr(title), "", "L", false)
	pdf.Ln(2)

	pdf.SetFont("Courier", "", 10)
	for _, line := range strings.Split(text, "\n") {
		line = strings.ReplaceAll(line, "\t", "    ")
		pdf.MultiCell(0, 5, tr(line), "", "L", false)
	}
	return pdf.Output(w)
}

func prettyJSON(data []byte) (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(data), "", "  "); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// prettyXML re-indents data. Prefixed names are kept as written.
func prettyXML(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	for {
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.CharData:
			trimmed := bytes.TrimSpace(t)
			if len(trimmed) == 0 {
				continue
			}
			tok = xml.CharData(trimmed)
		case xml.StartElement:
			attrs := make([]xml.Attr, len(t.Attr))
			for i, a := range t.Attr {
				attrs[i] = xml.Attr{Name: flatName(a.Name), Value: a.Value}
			}
			tok = xml.StartElement{Name: flatName(t.Name), Attr: attrs}
		case xml.EndElement:
			tok = xml.EndElement{Name: flatName(t.Name)}
		}

		if err := enc.EncodeToken(xml.CopyToken(tok)); err != nil {
			return "", err
		}
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func flatName(n xml.Name) xml.Name {
	if n.Space == "" {
		return n
	}
	return xml.Name{Local: n.Space + ":" + n.Local}
}
