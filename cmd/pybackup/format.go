package main

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/m3tro1d/pybackup/internal/models"
)

// planView is the printable form of a resolved plan.
type planView struct {
	Config      string       `yaml:"config"`
	Compression string       `yaml:"compression"`
	Pairing     string       `yaml:"pairing"`
	Archives    []targetView `yaml:"archives"`
	Warnings    []string     `yaml:"warnings,omitempty"`
}

type targetView struct {
	Name        string    `yaml:"name"`
	Directories []dirView `yaml:"directories"`
}

type dirView struct {
	Path   string `yaml:"path"`
	Exists bool   `yaml:"exists"`
}

func newPlanView(fs afero.Fs, path string, plan *models.BackupPlan) planView {
	view := planView{
		Config:      path,
		Compression: plan.Compression.String(),
		Pairing:     string(plan.Pairing),
		Archives:    make([]targetView, 0, len(plan.Targets)),
		Warnings:    plan.Warnings,
	}
	for _, target := range plan.Targets {
		tv := targetView{Name: target.Name}
		for _, dir := range target.SourceDirs {
			info, err := fs.Stat(dir)
			tv.Directories = append(tv.Directories, dirView{Path: dir, Exists: err == nil && info.IsDir()})
		}
		view.Archives = append(view.Archives, tv)
	}
	return view
}

func printPlan(w io.Writer, view planView, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(view); err != nil {
			return errors.Wrap(err, "encoding plan")
		}
		return enc.Close()
	case "", "text":
		printPlanText(w, view)
		return nil
	default:
		return errors.Newf("unknown format %q (want text or yaml)", format)
	}
}

func printPlanText(w io.Writer, view planView) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	green.Fprintln(w, "Configuration is valid!")
	fmt.Fprintln(w)
	bold.Fprintln(w, "Summary:")
	fmt.Fprintf(w, "  Config: %s\n", view.Config)
	fmt.Fprintf(w, "  Compression: %s\n", view.Compression)
	fmt.Fprintf(w, "  Pairing: %s\n", view.Pairing)
	fmt.Fprintf(w, "  Archives: %d\n", len(view.Archives))

	for _, archive := range view.Archives {
		fmt.Fprintln(w)
		bold.Fprintf(w, "%s\n", archive.Name)
		if len(archive.Directories) == 0 {
			yellow.Fprintln(w, "  (no directories)")
		}
		for _, dir := range archive.Directories {
			if dir.Exists {
				fmt.Fprintf(w, "  %s\n", dir.Path)
			} else {
				red.Fprintf(w, "  %s (missing)\n", dir.Path)
			}
		}
	}

	if len(view.Warnings) > 0 {
		fmt.Fprintln(w)
		yellow.Fprintln(w, "Warnings:")
		for _, warning := range view.Warnings {
			yellow.Fprintf(w, "  %s\n", warning)
		}
	}
}

func logSummary(report *models.RunReport) {
	var size int64
	for _, result := range report.Results {
		size += result.SizeBytes
	}

	log.Info().
		Int("archives", len(report.Results)).
		Int("failed", report.Failed).
		Str("total_size", formatBytes(size)).
		Dur("duration", report.Duration).
		Msg("backup summary")
}

// formatBytes formats bytes into human-readable format.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
