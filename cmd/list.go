package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tobyward/quill/internal/block"
)

// listCmd prints the block tree of a template.
var listCmd = &cobra.Command{
	Use:   "list <template>",
	Short: "Show the block tree of a template",
	Long: `Parse a template and print its block structure: every block with its
kind (standard, wrapper, template), nesting, and the prompt comments
attached to it.

Examples:
  quill list page.tpl
  quill list page.tpl --prompts`,
	Args: cobra.ExactArgs(1),
	RunE: runListCommand,
}

var listPrompts bool

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().BoolVar(&listPrompts, "prompts", false, "Include {#! #} prompt comments")
}

func runListCommand(cmd *cobra.Command, args []string) error {
	tpl, _, err := buildEngine()
	if err != nil {
		return err
	}
	defer tpl.Cache().Close()

	src, err := tpl.LoadTemplate(args[0])
	if err != nil {
		return err
	}

	printBlock(cmd, src.Root().Block(), 0)
	return nil
}

func printBlock(cmd *cobra.Command, b *block.Block, depth int) {
	indent := strings.Repeat("  ", depth)
	name := b.Name
	if name == "" {
		name = "(root)"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s%s  [%s]\n", indent, name, kindLabel(b.Kind))

	if listPrompts {
		for _, prompt := range b.PromptComments {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  #! %s\n", indent, prompt)
		}
	}

	names := make([]string, 0, len(b.Children))
	for childName, child := range b.Children {
		// Children also holds USE aliases and recursion targets that
		// point outside this subtree.
		if child.Parent == b {
			names = append(names, childName)
		}
	}
	sort.Strings(names)
	for _, childName := range names {
		printBlock(cmd, b.Children[childName], depth+1)
	}
}

func kindLabel(kind block.Kind) string {
	switch kind {
	case block.KindRoot:
		return "root"
	case block.KindWrapper:
		return "wrapper"
	case block.KindTemplate:
		return "template"
	default:
		return "standard"
	}
}
