package importer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkt.systems/codebench/schema"
)

func TestExtension(t *testing.T) {
	cases := []struct {
		name string
		want string
		err  error
	}{
		{"a.py", "py", nil},
		{"archive.tar.js", "js", nil},
		{"dir.v2/main.java", "java", nil},
		{`C:\src\Program.cs`, "cs", nil},
		{"Makefile", "", schema.ErrNoExtension},
		{"notes.", "", schema.ErrNoExtension},
		{".bashrc", "bashrc", nil},
		{".py", "py", nil},
		{"", "", schema.ErrNoExtension},
	}
	for _, tc := range cases {
		got, err := Extension(tc.name)
		if tc.err != nil {
			assert.ErrorIs(t, err, tc.err, tc.name)
			assert.True(t, schema.IsValidation(err), tc.name)
			continue
		}
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.want, got, tc.name)
	}
}

func TestValidateAllowList(t *testing.T) {
	allowed := schema.DefaultAllowedExtensions()
	for _, name := range []string{"a.js", "a.ts", "a.py", "a.java", "a.cs", "a.php"} {
		_, err := Validate(name, allowed)
		assert.NoError(t, err, name)
	}

	ext, err := Validate("a.exe", allowed)
	assert.ErrorIs(t, err, schema.ErrUnsupportedFileType)
	assert.Equal(t, "exe", ext)

	_, err = Validate("A.PY", allowed)
	assert.ErrorIs(t, err, schema.ErrUnsupportedFileType, "comparison is case-sensitive")

	_, err = Validate("README", allowed)
	assert.ErrorIs(t, err, schema.ErrNoExtension)
}

func TestDecode(t *testing.T) {
	text, err := Decode("a.py", []byte("print(1)"))
	require.NoError(t, err)
	assert.Equal(t, "print(1)", text)

	text, err = Decode("a.py", []byte("\xEF\xBB\xBFprint('é')"))
	require.NoError(t, err)
	assert.Equal(t, "print('é')", text)

	_, err = Decode("a.py", []byte{'o', 'k', 0xff, 0xfe})
	assert.ErrorIs(t, err, schema.ErrImportDecode)
}

func TestCandidateText(t *testing.T) {
	text, err := Candidate{FileName: "a.js", Extension: "js", RawContent: []byte("\xEF\xBB\xBFconsole.log(1)")}.Text()
	require.NoError(t, err)
	assert.Equal(t, "console.log(1)", text)

	_, err = Candidate{FileName: "a.js", Extension: "js", RawContent: []byte{0xff}}.Text()
	assert.ErrorIs(t, err, schema.ErrImportDecode)
}

func TestReadLimit(t *testing.T) {
	data, err := Read("a.py", strings.NewReader("12345"), 5)
	require.NoError(t, err)
	assert.Equal(t, "12345", string(data))

	_, err = Read("a.py", strings.NewReader("123456"), 5)
	assert.ErrorIs(t, err, schema.ErrImportTooLarge)
}

func TestLanguageForExtension(t *testing.T) {
	lang, ok := LanguageForExtension("cs")
	require.True(t, ok)
	assert.Equal(t, schema.LanguageCSharp, lang)
	_, ok = LanguageForExtension("exe")
	assert.False(t, ok)
}
