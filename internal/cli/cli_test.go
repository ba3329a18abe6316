package cli

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happyhackingspace/nerd"
)

func TestPackExtractRoundTrip(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "en"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "train.conll"), []byte("John B-PER\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "en", "val.conll"), []byte("Paris B-LOC\n"), 0644))

	var buf bytes.Buffer
	n, err := packArchive(&buf, src)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	dst := filepath.Join(t.TempDir(), "corpus")
	n, err = extractArchive(&buf, dst)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	b, err := os.ReadFile(filepath.Join(dst, "en", "val.conll"))
	require.NoError(t, err)
	assert.Equal(t, "Paris B-LOC\n", string(b))
}

func TestExtractRejectsEscapingEntries(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	body := []byte("x")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "../evil.txt", Mode: 0644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
	_, err := tw.Write(body)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())

	_, err = extractArchive(&buf, filepath.Join(t.TempDir(), "data"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes")
}

func TestPrintConfusionMatrix(t *testing.T) {
	confusion := map[string]map[string]int{
		"O":   {"O": 8, "PER": 1},
		"PER": {"PER": 2},
	}
	var buf bytes.Buffer
	printConfusionMatrix(&buf, confusion, []string{"PER", "O"})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(lines[2]), "O"), "busiest class first")
	assert.Contains(t, lines[2], "88.9")
	assert.Contains(t, lines[3], "100.0")

	buf.Reset()
	printConfusionMatrix(&buf, nil, nil)
	assert.Empty(t, buf.String())
}

func TestResolveConfigFlagsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("data_path: corpus\nepochs: 3\ncell: GRU\n"), 0644))

	cfg := nerd.DefaultConfig()
	fs := pflag.NewFlagSet("train", pflag.ContinueOnError)
	bindTrainFlags(fs, &cfg)
	require.NoError(t, fs.Parse([]string{"--epochs", "7", "--dropout", "0.1"}))

	got, err := resolveConfig(path, cfg, fs)
	require.NoError(t, err)
	assert.Equal(t, "corpus", got.DataPath)
	assert.Equal(t, "GRU", got.Cell)
	assert.Equal(t, 7, got.Epochs)
	assert.Equal(t, 0.1, got.Dropout)
	assert.Equal(t, nerd.DefaultConfig().BatchSize, got.BatchSize)
}

func TestResolveConfigWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg := nerd.DefaultConfig()
	cfg.DataPath = "data"
	fs := pflag.NewFlagSet("train", pflag.ContinueOnError)
	bindTrainFlags(fs, &cfg)
	require.NoError(t, fs.Parse([]string{"--cell", "GRU"}))

	got, err := resolveConfig("", cfg, fs)
	require.NoError(t, err)
	assert.Equal(t, "GRU", got.Cell)
	assert.Equal(t, "data", got.DataPath)
}

func TestReadInput(t *testing.T) {
	got, err := readInput(strings.NewReader("from stdin"), "")
	require.NoError(t, err)
	assert.Equal(t, "from stdin", got)

	path := filepath.Join(t.TempDir(), "in.txt")
	require.NoError(t, os.WriteFile(path, []byte("from file"), 0644))
	got, err = readInput(nil, path)
	require.NoError(t, err)
	assert.Equal(t, "from file", got)

	page := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(page, []byte("<p>John</p><script>x()</script><p>Paris</p>"), 0644))
	got, err = readInput(nil, page)
	require.NoError(t, err)
	assert.Equal(t, "John\nParis", got)

	got, err = readInput(nil, "John lives in Paris")
	require.NoError(t, err)
	assert.Equal(t, "John lives in Paris", got)
}

func TestReadInputURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><head><title>News</title></head><body><p>Mary visited London</p></body></html>"))
	}))
	defer srv.Close()

	got, err := readInput(nil, srv.URL+"/page")
	require.NoError(t, err)
	assert.Equal(t, "News\nMary visited London", got)

	_, err = readInput(nil, srv.URL+"/missing")
	require.Error(t, err)
}

func TestCommandsRegistered(t *testing.T) {
	c := New("test")
	var names []string
	for _, cmd := range c.rootCmd.Commands() {
		names = append(names, cmd.Name())
	}
	for _, want := range []string{"train", "predict", "evaluate", "up", "data"} {
		assert.Contains(t, names, want)
	}
}

func TestLogFormat(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	c := New("test")
	c.logFormat = "json"
	var buf bytes.Buffer
	require.NoError(t, c.initApp(&buf))
	slog.Info("hello", "k", 1)
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	c = New("test")
	c.logFormat = "xml"
	require.Error(t, c.initApp(&buf))
}

func TestComparableVersion(t *testing.T) {
	tests := map[string]string{
		"dev":    "0.0.0",
		"":       "0.0.0",
		"v1.2.3": "1.2.3",
		"0.4.0":  "0.4.0",
	}
	for in, want := range tests {
		assert.Equal(t, want, comparableVersion(in), in)
	}
}
