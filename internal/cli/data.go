package cli

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

func (c *CLI) newDataCommand() *cobra.Command {
	dataCmd := &cobra.Command{
		Use:   "data",
		Short: "Fetch and package corpus archives",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	var url, downloadFolder string
	downloadCmd := &cobra.Command{
		Use:   "download",
		Short: "Download and unpack a data.tar.gz corpus archive",
		Example: `  nerd data download --url https://example.org/ner/data.tar.gz
  nerd data download --url https://example.org/ner/data.tar.gz --data-folder corpus`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return dataDownload(url, downloadFolder)
		},
	}
	downloadCmd.Flags().StringVar(&url, "url", "", "Archive URL")
	downloadCmd.Flags().StringVar(&downloadFolder, "data-folder", "data", "Destination folder for the corpus")
	_ = downloadCmd.MarkFlagRequired("url")

	var packFolder, out string
	packCmd := &cobra.Command{
		Use:     "pack",
		Short:   "Package a corpus folder as data.tar.gz",
		Example: `  nerd data pack --data-folder data --out data.tar.gz`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			n, err := packArchive(f, packFolder)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			slog.Info("Archive created", "path", out, "files", n)
			return nil
		},
	}
	packCmd.Flags().StringVar(&packFolder, "data-folder", "data", "Corpus folder to package")
	packCmd.Flags().StringVar(&out, "out", "data.tar.gz", "Archive path")

	dataCmd.AddCommand(downloadCmd, packCmd)
	return dataCmd
}

func dataDownload(url, dataFolder string) error {
	slog.Info("Downloading corpus", "url", url)
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("download data: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download data: HTTP %d", resp.StatusCode)
	}

	if err := os.RemoveAll(dataFolder); err != nil {
		return fmt.Errorf("remove existing %s: %w", dataFolder, err)
	}
	count, err := extractArchive(resp.Body, dataFolder)
	if err != nil {
		return err
	}
	slog.Info("Corpus extracted", "files", count, "folder", dataFolder)
	return nil
}

// extractArchive unpacks a gzipped tarball into dataFolder. A leading "data/"
// in entry names is replaced by dataFolder; entries escaping it are rejected.
func extractArchive(r io.Reader, dataFolder string) (int, error) {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("gzip reader: %w", err)
	}
	defer func() { _ = gr.Close() }()

	root := filepath.Clean(dataFolder)
	tr := tar.NewReader(gr)
	count := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, fmt.Errorf("read tar: %w", err)
		}

		name := strings.TrimPrefix(filepath.ToSlash(hdr.Name), "./")
		if name == "data" || name == "data/" {
			name = ""
		}
		name = strings.TrimPrefix(name, "data/")
		target := filepath.Join(root, filepath.FromSlash(name))
		if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
			return count, fmt.Errorf("archive entry %q escapes %s", hdr.Name, dataFolder)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return count, fmt.Errorf("create dir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return count, fmt.Errorf("create parent dir: %w", err)
			}
			f, err := os.Create(target)
			if err != nil {
				return count, fmt.Errorf("create file %s: %w", target, err)
			}
			if _, err := io.Copy(f, tr); err != nil {
				_ = f.Close()
				return count, fmt.Errorf("write file %s: %w", target, err)
			}
			_ = f.Close()
			count++
		}
	}
	return count, nil
}

// packArchive writes dataFolder as a gzipped tarball whose entries live under
// "data/", the layout extractArchive expects.
func packArchive(w io.Writer, dataFolder string) (int, error) {
	gw := gzip.NewWriter(w)
	tw := tar.NewWriter(gw)
	count := 0

	err := filepath.Walk(dataFolder, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dataFolder, path)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(filepath.Join("data", rel))
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		_, err = io.Copy(tw, f)
		count++
		return err
	})
	if err != nil {
		_ = tw.Close()
		_ = gw.Close()
		return count, fmt.Errorf("create archive: %w", err)
	}
	if err := tw.Close(); err != nil {
		_ = gw.Close()
		return count, fmt.Errorf("close tar: %w", err)
	}
	if err := gw.Close(); err != nil {
		return count, fmt.Errorf("close gzip: %w", err)
	}
	return count, nil
}
