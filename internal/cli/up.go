package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
)

const (
	repoSlug     = "happyhackingspace/nerd"
	checksumFile = "checksums.txt"
)

func (c *CLI) newUpCommand() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Self-update to the latest release",
		Long: "Replaces the running binary with the latest release after verifying it against the release checksums. " +
			"Saved artifacts are plain JSON and keep working across versions that do not change model.json.",
		Example: `  nerd up
  nerd up --check`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.selfUpdate(cmd.Context(), cmd.OutOrStdout(), check)
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Only report whether a newer release exists")
	return cmd
}

// comparableVersion turns a build version into something semver can order.
// Development builds compare as the oldest release.
func comparableVersion(v string) string {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if v == "" || v == "dev" {
		return "0.0.0"
	}
	return v
}

func (c *CLI) selfUpdate(ctx context.Context, out io.Writer, check bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	updater, err := selfupdate.NewUpdater(selfupdate.Config{
		Validator: &selfupdate.ChecksumValidator{UniqueFilename: checksumFile},
	})
	if err != nil {
		return err
	}

	latest, found, err := updater.DetectLatest(ctx, selfupdate.ParseSlug(repoSlug))
	if err != nil {
		return fmt.Errorf("detect latest version: %w", err)
	}
	if !found {
		return fmt.Errorf("no release of %s for this platform", repoSlug)
	}
	if latest.LessOrEqual(comparableVersion(c.version)) {
		_, _ = fmt.Fprintf(out, "Already up to date (%s)\n", c.version)
		return nil
	}
	if check {
		_, _ = fmt.Fprintf(out, "nerd %s is available (running %s); run `nerd up` to install\n", latest.Version(), c.version)
		if notes := strings.TrimSpace(latest.ReleaseNotes); notes != "" {
			_, _ = fmt.Fprintf(out, "\n%s\n", notes)
		}
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return err
	}
	slog.Info("Updating", "from", c.version, "to", latest.Version(), "binary", exe)
	if err := updater.UpdateTo(ctx, latest, exe); err != nil {
		return fmt.Errorf("update: %w", err)
	}
	_, _ = fmt.Fprintf(out, "Updated to %s\n", latest.Version())
	return nil
}
