package codebase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanFilename(t *testing.T) {
	cases := map[string]string{
		"src/main.go":         "src/main.go",
		`src\win\file.py`:     "src/win/file.py",
		`we<ird>:na"me|?*.js`: "we_ird__na_me___.js",
		"/abs//path.rb":       "abs/path.rb",
		"  ":                  "",
	}
	for in, want := range cases {
		assert.Equal(t, want, cleanFilename(in), in)
	}
}

func TestPrepareFiles(t *testing.T) {
	settings := testSettings()
	settings.Upload.MaxFileBytes = 64
	svc := newTestService(t, settings, nil, nil, nil)

	accepted, skipped, err := svc.prepareFiles([]FileInput{
		{Path: "a.py", Content: []byte("x = 1   \r\n")},
		{Path: "logo.png", Content: []byte("png")},
		{Path: "bin.go", Content: []byte{'p', 0, 'k'}},
		{Path: "big.js", Content: make([]byte, 65)},
		{Path: `dir\b.go`, Content: []byte("package b\n")},
		{Path: "a.py", Content: []byte("x = 2\n")},
		{Path: "bom.ts", Content: append([]byte{0xEF, 0xBB, 0xBF}, []byte("let a = '\xff';\n")...)},
	})
	require.NoError(t, err)

	require.Len(t, accepted, 3)
	require.Equal(t, "a.py", accepted[0].Path)
	require.Equal(t, "x = 2\n", accepted[0].Content, "last write wins")
	require.Equal(t, "python", accepted[0].Metadata.Language)
	require.Equal(t, "dir/b.go", accepted[1].Path)
	require.Equal(t, "bom.ts", accepted[2].Path)
	require.NotContains(t, accepted[2].Content, "\ufeff")

	reasons := map[string]string{}
	for _, s := range skipped {
		reasons[s.Path] = s.Reason
	}
	require.Equal(t, "unsupported file extension", reasons["logo.png"])
	require.Equal(t, "binary content", reasons["bin.go"])
	require.Contains(t, reasons["big.js"], "exceeds")
}

func TestPrepareFilesTooMany(t *testing.T) {
	settings := testSettings()
	settings.Upload.MaxFiles = 1
	svc := newTestService(t, settings, nil, nil, nil)

	_, _, err := svc.prepareFiles(files("a.py", "1", "b.py", "2"))
	require.True(t, IsCode(err, ErrCodePayloadTooLarge))
}
