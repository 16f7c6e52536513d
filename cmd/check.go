package cmd

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tobyward/quill/internal/errors"
	"github.com/tobyward/quill/internal/scanner"
)

// checkCmd parses templates and reports every error found.
var checkCmd = &cobra.Command{
	Use:   "check <path>...",
	Short: "Parse templates and report errors",
	Long: `Parse one or more templates without rendering them and report every
structural error: unbalanced block markers, duplicate block names,
unterminated tags, USE markers pointing at undefined templates.

A directory argument is walked recursively and every file with the
configured template extension is checked.

Examples:
  quill check page.tpl
  quill check ./templates`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheckCommand,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheckCommand(cmd *cobra.Command, args []string) error {
	_, cfg, err := buildEngine()
	if err != nil {
		return err
	}

	files, err := collectTemplates(args, cfg.Templates.Extension)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no template files found")
	}

	collector := errors.NewCollector()
	for _, file := range files {
		checkFile(file, collector)
	}

	for _, e := range collector.Errors() {
		fmt.Fprintln(cmd.ErrOrStderr(), e.Error())
	}
	if collector.HasErrors() {
		return fmt.Errorf("%d error(s) in %d file(s)", len(collector.Errors()), len(files))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d file(s) OK\n", len(files))
	return nil
}

func checkFile(path string, collector *errors.Collector) {
	raw, err := os.ReadFile(path)
	if err != nil {
		collector.Add(errors.NewIOError("read_failed", err.Error()).WithLocation(path, 0, 0))
		return
	}
	if _, err := scanner.Parse(path, string(raw)); err != nil {
		if te, ok := err.(*errors.TemplateError); ok {
			collector.Add(te)
			return
		}
		collector.Add(errors.NewParseError("parse_failed", err.Error()).WithLocation(path, 0, 0))
	}
}

// collectTemplates expands the arguments into a file list, walking
// directories for files with the template extension.
func collectTemplates(args []string, extension string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(path, extension) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}
