package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tobyward/quill/internal/engine"
)

var (
	renderDataFile string
	renderOutput   string
	renderParams   paramFlag
)

// renderCmd renders a template with data from a YAML file.
var renderCmd = &cobra.Command{
	Use:   "render <template>",
	Short: "Render a template",
	Long: `Render a template to stdout or a file.

Data comes from a YAML file. Scalar values become source parameters,
and a list under a key that names a block in the template creates one
entity per element:

  title: Monthly report
  row:
    - name: Sam
      age: 7
    - name: Alex
      age: 32

Examples:
  quill render page.tpl
  quill render page.tpl --data data.yml
  quill render page.tpl --data data.yml --out page.html`,
	Args: cobra.ExactArgs(1),
	RunE: runRenderCommand,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().StringVarP(&renderDataFile, "data", "d", "", "YAML file with template data")
	renderCmd.Flags().StringVarP(&renderOutput, "out", "o", "", "Output file (default stdout)")
	renderCmd.Flags().VarP(&renderParams, "param", "p", "Set a template parameter (repeatable, key=value)")
}

func runRenderCommand(cmd *cobra.Command, args []string) error {
	tpl, _, err := buildEngine()
	if err != nil {
		return err
	}
	defer tpl.Cache().Close()

	src, err := tpl.LoadTemplate(args[0])
	if err != nil {
		return err
	}

	if renderDataFile != "" {
		data, err := loadData(renderDataFile)
		if err != nil {
			return err
		}
		if err := bindData(src, data); err != nil {
			return err
		}
	}
	renderParams.apply(src.Set)

	out, err := src.Output()
	if err != nil {
		return err
	}

	if renderOutput == "" {
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	}
	return os.WriteFile(renderOutput, []byte(out), 0o644)
}

// loadData reads a YAML document into a string-keyed map.
func loadData(path string) (map[string]interface{}, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var data map[string]interface{}
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return data, nil
}

// bindData maps a YAML document onto a source: a list under a key that
// names a block becomes an entity per element, everything else becomes
// a source parameter.
func bindData(src *engine.Source, data map[string]interface{}) error {
	for key, value := range data {
		list, isList := value.([]interface{})
		if isList && src.HasBlock(key) {
			for _, elem := range list {
				entity, err := src.NewBlock(key)
				if err != nil {
					return err
				}
				if err := bindEntity(entity, elem); err != nil {
					return err
				}
			}
			continue
		}
		src.Set(key, value)
	}
	return nil
}

// bindEntity assigns one YAML list element to an entity, recursing
// into nested lists that name child blocks.
func bindEntity(entity *engine.Entity, elem interface{}) error {
	fields, ok := elem.(map[string]interface{})
	if !ok {
		entity.Set("value", elem)
		return nil
	}
	for key, value := range fields {
		list, isList := value.([]interface{})
		if isList && entity.HasBlock(key) {
			for _, nested := range list {
				child, err := entity.NewBlock(key)
				if err != nil {
					return err
				}
				if err := bindEntity(child, nested); err != nil {
					return err
				}
			}
			continue
		}
		entity.Set(key, value)
	}
	return nil
}
