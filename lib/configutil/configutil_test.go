package configutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	IndexURL  string   `json:"index_url"`
	LineWidth int      `json:"line_width"`
	Cadences  []string `json:"cadences"`
}

func write(t *testing.T, path, contents string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
}

func TestLocalName(t *testing.T) {
	require.Equal(t, "ticguide.local.json5", LocalName("ticguide.json5"))
	require.Equal(t, filepath.Join("a", "b.local.json"), LocalName(filepath.Join("a", "b.json")))
}

func TestReadConfig(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "ticguide.json5")

	_, err := ReadConfig[testConfig](name)
	require.True(t, errors.Is(err, os.ErrNotExist))

	write(t, name, `{
		// comments and trailing commas are fine
		index_url: "https://archive.test/index.html",
		line_width: 60,
		cadences: ["short"],
	}`)
	config, err := ReadConfig[testConfig](name)
	require.NoError(t, err)
	require.Equal(t, testConfig{
		IndexURL:  "https://archive.test/index.html",
		LineWidth: 60,
		Cadences:  []string{"short"},
	}, config)

	write(t, LocalName(name), `{ line_width: 72 }`)
	config, err = ReadConfig[testConfig](name)
	require.NoError(t, err)
	require.Equal(t, "https://archive.test/index.html", config.IndexURL)
	require.Equal(t, 72, config.LineWidth)

	write(t, name, `{ line_width: `)
	_, err = ReadConfig[testConfig](name)
	require.Error(t, err)
	require.False(t, errors.Is(err, os.ErrNotExist))
}

func TestReadFrom(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0755))

	_, err := ReadFrom[testConfig](nested, "ticguide.json5")
	require.True(t, errors.Is(err, os.ErrNotExist))

	write(t, filepath.Join(root, "a", "ticguide.json5"), `{ line_width: 40 }`)
	config, err := ReadFrom[testConfig](nested, "ticguide.json5")
	require.NoError(t, err)
	require.Equal(t, 40, config.LineWidth)
}
