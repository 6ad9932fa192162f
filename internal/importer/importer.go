// Package importer validates and decodes files a user imports into a session.
package importer

import (
	"bytes"
	"errors"
	"io"
	"slices"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"pkt.systems/codebench/schema"
)

// Candidate is a file selected for import.
type Candidate struct {
	FileName   string
	Extension  string
	RawContent []byte
}

// Text decodes the candidate's content as UTF-8.
func (c Candidate) Text() (string, error) {
	return Decode(c.FileName, c.RawContent)
}

var extensionLanguages = map[string]schema.Language{
	"js":   schema.LanguageJavaScript,
	"ts":   schema.LanguageTypeScript,
	"py":   schema.LanguagePython,
	"java": schema.LanguageJava,
	"cs":   schema.LanguageCSharp,
	"php":  schema.LanguagePHP,
}

// Extension returns the substring after the final '.' in fileName.
// Names without a dot or ending in one ("Makefile", "notes.") fail with
// schema.ErrNoExtension; ".py" has extension "py".
func Extension(fileName string) (string, error) {
	base := baseName(fileName)
	idx := strings.LastIndex(base, ".")
	if idx < 0 || idx == len(base)-1 {
		return "", &schema.ValidationError{FileName: fileName, Err: schema.ErrNoExtension}
	}
	return base[idx+1:], nil
}

// Validate extracts the extension and checks it against the allow-list.
// Comparison is case-sensitive.
func Validate(fileName string, allowed []string) (string, error) {
	ext, err := Extension(fileName)
	if err != nil {
		return "", err
	}
	if !slices.Contains(allowed, ext) {
		return ext, &schema.ValidationError{FileName: fileName, Extension: ext, Err: schema.ErrUnsupportedFileType}
	}
	return ext, nil
}

// Read reads at most limit bytes from r. Content larger than limit fails with
// schema.ErrImportTooLarge.
func Read(fileName string, r io.Reader, limit int64) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, &schema.ValidationError{FileName: fileName, Err: schema.ErrImportTooLarge}
	}
	return data, nil
}

// Decode returns raw as text. Invalid UTF-8 fails with schema.ErrImportDecode;
// a leading byte order mark is dropped.
func Decode(fileName string, raw []byte) (string, error) {
	if _, _, err := transform.Bytes(encoding.UTF8Validator, raw); err != nil {
		if errors.Is(err, encoding.ErrInvalidUTF8) {
			return "", &schema.ValidationError{FileName: fileName, Err: schema.ErrImportDecode}
		}
		return "", err
	}
	if !bytes.HasPrefix(raw, utf8BOM) {
		return string(raw), nil
	}
	text, err := unicode.UTF8BOM.NewDecoder().Bytes(raw)
	if err != nil {
		return "", &schema.ValidationError{FileName: fileName, Err: schema.ErrImportDecode}
	}
	return string(text), nil
}

// LanguageForExtension maps an allow-listed extension to its language.
func LanguageForExtension(ext string) (schema.Language, bool) {
	lang, ok := extensionLanguages[ext]
	return lang, ok
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func baseName(name string) string {
	if idx := strings.LastIndexAny(name, `/\`); idx >= 0 {
		return name[idx+1:]
	}
	return name
}
