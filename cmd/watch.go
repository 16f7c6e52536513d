package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var (
	watchDataFile string
	watchParams   paramFlag
)

// watchCmd re-renders a template whenever it or its data file changes.
var watchCmd = &cobra.Command{
	Use:   "watch <template>",
	Short: "Re-render a template on file changes",
	Long: `Render a template, then watch its directory and re-render whenever
the template or the data file changes. Stops on Ctrl-C.

Examples:
  quill watch page.tpl
  quill watch page.tpl --data data.yml`,
	Args: cobra.ExactArgs(1),
	RunE: runWatchCommand,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVarP(&watchDataFile, "data", "d", "", "YAML file with template data")
	watchCmd.Flags().VarP(&watchParams, "param", "p", "Set a template parameter (repeatable, key=value)")
}

func runWatchCommand(cmd *cobra.Command, args []string) error {
	tpl, _, err := buildEngine()
	if err != nil {
		return err
	}
	defer tpl.Cache().Close()

	render := func() {
		src, err := tpl.LoadTemplate(args[0])
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
			return
		}
		if watchDataFile != "" {
			data, err := loadData(watchDataFile)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
				return
			}
			if err := bindData(src, data); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
				return
			}
		}
		watchParams.apply(src.Set)
		out, err := src.Output()
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
			return
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
	}

	render()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch directories rather than files so editors that replace the
	// file on save keep being observed.
	dirs := map[string]struct{}{}
	if src, err := tpl.LoadTemplate(args[0]); err == nil {
		dirs[filepath.Dir(src.Path())] = struct{}{}
	}
	if watchDataFile != "" {
		dirs[filepath.Dir(watchDataFile)] = struct{}{}
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return err
		}
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	fmt.Fprintln(cmd.ErrOrStderr(), "Watching for changes. Press Ctrl-C to stop.")
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				render()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "watch error:", err)
		case <-stop:
			return nil
		}
	}
}
