package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/happyhackingspace/nerd"
	"github.com/happyhackingspace/nerd/internal/htmlutil"
)

// prediction is one line of predict output.
type prediction struct {
	Text     string        `json:"text"`
	Tokens   []nerd.Token  `json:"tokens"`
	Entities []nerd.Entity `json:"entities"`
}

func (c *CLI) newPredictCommand() *cobra.Command {
	var artifacts string
	var pretty bool

	cmd := &cobra.Command{
		Use:   "predict [text|file|url]",
		Short: "Tag entities in text",
		Long:  "Tags every non-blank input line and prints one JSON object per line. HTML files and pages are reduced to their visible text first. With no argument the text is read from stdin.",
		Example: `  nerd predict "John lives in Paris"
  nerd predict notes.txt
  echo "Mary visited London" | nerd predict --pretty`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ""
			if len(args) == 1 {
				target = args[0]
			}
			text, err := readInput(cmd.InOrStdin(), target)
			if err != nil {
				return err
			}
			tagger, err := loadTagger(artifacts)
			if err != nil {
				return err
			}
			start := time.Now()
			results, err := predictLines(tagger, text)
			if err != nil {
				return err
			}
			slog.Debug("Tagged", "lines", len(results), "duration", time.Since(start))
			return writePredictions(cmd.OutOrStdout(), results, pretty)
		},
	}

	cmd.Flags().StringVar(&artifacts, "artifacts", "", "Folder holding the trained model (default: search for ./artifacts)")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Indent the JSON output")
	return cmd
}

func loadTagger(dir string) (*nerd.Tagger, error) {
	if dir == "" {
		return nerd.New()
	}
	return nerd.Load(dir)
}

// readInput resolves the predict argument: an http(s) URL, an existing file,
// literal text, or stdin when empty. HTML pages are reduced to their text.
func readInput(stdin io.Reader, target string) (string, error) {
	switch {
	case target == "":
		b, err := io.ReadAll(stdin)
		return string(b), err
	case strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://"):
		return fetchText(target)
	}
	if _, err := os.Stat(target); err == nil {
		f, err := os.Open(target)
		if err != nil {
			return "", err
		}
		defer func() { _ = f.Close() }()
		return readBody(f, target)
	}
	return target, nil
}

func fetchText(url string) (string, error) {
	slog.Debug("Fetching", "url", url)
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: HTTP %d", url, resp.StatusCode)
	}
	return readBody(resp.Body, resp.Header.Get("Content-Type"))
}

// readBody reads r, reducing HTML to its visible text lines.
func readBody(r io.Reader, kind string) (string, error) {
	if htmlutil.IsHTML(kind) {
		return htmlutil.Text(r)
	}
	b, err := io.ReadAll(r)
	return string(b), err
}

func predictLines(tagger *nerd.Tagger, text string) ([]prediction, error) {
	var out []prediction
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		tokens, err := tagger.TagText(line)
		if err != nil {
			return nil, err
		}
		entities := nerd.Entities(tokens)
		if entities == nil {
			entities = []nerd.Entity{}
		}
		out = append(out, prediction{Text: line, Tokens: tokens, Entities: entities})
	}
	return out, sc.Err()
}

func writePredictions(w io.Writer, results []prediction, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
