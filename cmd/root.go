// Package cmd provides the command-line interface for Quill with
// configuration management supporting multiple configuration sources.
//
// Configuration System:
//
//	The CLI supports flexible configuration through multiple sources with clear precedence:
//	1. Command-line flags (--config, --log-level, etc.) - highest priority
//	2. QUILL_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (QUILL_TEMPLATES_ROOTS, etc.)
//	4. Configuration files (.quill.yml) - lowest priority
//
// Environment Variables:
//
//	QUILL_CONFIG_FILE: Path to custom configuration file
//	QUILL_TEMPLATES_ROOTS: Override template search roots
//	QUILL_RENDER_MAX_DEPTH: Override the render depth bound
//	And more following the QUILL_<SECTION>_<OPTION> pattern
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quill",
	Short: "A block-based template engine for the command line",
	Long: `Quill renders block-based templates: plain text files whose structure
is described by HTML comment markers and whose dynamic content comes
from variable and function tags.

Key Features:
  • Standard, wrapper and named template blocks
  • Variable tags with modifier pipelines and quoted defaults
  • Conditional rendering with @if expressions
  • Template includes and bounded recursion
  • Compiled-block caching with file watching

Quick Start:
  quill render page.tpl --data data.yml   Render a template with YAML data
  quill check ./templates                 Parse templates and report errors
  quill list page.tpl                     Show the block tree of a template
  quill watch page.tpl --data data.yml    Re-render on file changes

Documentation: https://github.com/tobyward/quill`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .quill.yml, can also use QUILL_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig initializes the configuration system.
//
// Configuration Loading Priority (highest to lowest):
//  1. --config flag: Explicitly specified config file path
//  2. QUILL_CONFIG_FILE environment variable: Custom config file path
//  3. Default: .quill.yml in current directory
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("QUILL_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".quill")
	}

	viper.SetEnvPrefix("QUILL")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
