package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/texview/docview/internal/watcher"
)

var (
	sourceDir    string
	outputDir    string
	manifestPath string
	command      string
	extraArgs    []string
)

var rootCmd = &cobra.Command{
	Use:   "docwatch",
	Short: "Convert Markdown documents to HTML and maintain the manifest",
	Long: `docwatch watches a directory of Markdown files, invokes an external
document-conversion tool to produce HTML, and keeps the manifest the
document viewer reads up to date.`,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the source directory and convert on change",
	RunE:  runWatch,
}

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert every Markdown file in the source directory once",
	RunE:  runConvert,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&sourceDir, "source", "s", ".", "Directory of Markdown sources")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "./assets/docs", "Directory for HTML output")
	rootCmd.PersistentFlags().StringVarP(&manifestPath, "manifest", "m", "./assets/docs/manifest.json", "Manifest file path")
	rootCmd.PersistentFlags().StringVarP(&command, "command", "c", "pandoc", "Document conversion command")
	rootCmd.PersistentFlags().StringArrayVar(&extraArgs, "arg", nil, "Converter argv template ({input}, {output}, {bib})")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(convertCmd)
}

func newWatcher(log *slog.Logger) *watcher.Watcher {
	conv := watcher.NewConverter(command, extraArgs, outputDir, log)
	return watcher.New(sourceDir, manifestPath, conv, log)
}

func runWatch(cmd *cobra.Command, args []string) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	w := newWatcher(log)
	// Bring the output and manifest current before waiting for changes.
	if err := w.ConvertAll(ctx); err != nil {
		log.Warn("initial conversion pass had failures", "error", err)
	}
	if err := w.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func runConvert(cmd *cobra.Command, args []string) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return newWatcher(log).ConvertAll(cmd.Context())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
