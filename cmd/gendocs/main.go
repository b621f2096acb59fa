// Command gendocs generates documentation for the stylesync CLI.
//
// Usage: gendocs <markdown|man|completions|config> [dir]
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/bolasblack/stylesync/internal/cli"
	"github.com/bolasblack/stylesync/internal/config"
	"github.com/bolasblack/stylesync/internal/util"
)

type generator struct {
	dir string
	run func(cmd *cobra.Command, dir string) error
}

var generators = map[string]generator{
	"markdown":    {dir: "docs/commands", run: generateMarkdown},
	"man":         {dir: "out/man", run: generateMan},
	"completions": {dir: "out/completions", run: generateCompletions},
	"config":      {dir: "docs", run: generateConfigReference},
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: gendocs <markdown|man|completions|config> [dir]")
		os.Exit(1)
	}

	gen, ok := generators[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown format: %s\n", os.Args[1])
		os.Exit(1)
	}
	dir := gen.dir
	if len(os.Args) > 2 {
		dir = os.Args[2]
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create directory: %v\n", err)
		os.Exit(1)
	}
	if err := gen.run(cli.GetRootCmd(), dir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
	fmt.Printf("Generated %s in %s/\n", os.Args[1], dir)
}

func generateMarkdown(cmd *cobra.Command, dir string) error {
	// Front matter for static site generators
	now := time.Now().Format("2006-01-02")
	filePrepender := func(filename string) string {
		base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
		return fmt.Sprintf("---\ntitle: %q\ndate: %s\n---\n\n", strings.ReplaceAll(base, "_", " "), now)
	}
	linkHandler := func(name string) string {
		return "./" + strings.TrimSuffix(name, filepath.Ext(name)) + ".md"
	}
	return doc.GenMarkdownTreeCustom(cmd, dir, filePrepender, linkHandler)
}

func generateMan(cmd *cobra.Command, dir string) error {
	header := &doc.GenManHeader{
		Title:   strings.ToUpper(util.AppName),
		Section: "1",
		Source:  util.AppName,
		Manual:  util.AppName + " Manual",
	}
	return doc.GenManTree(cmd, header, dir)
}

func generateCompletions(cmd *cobra.Command, dir string) error {
	shells := []struct {
		ext string
		gen func(f *os.File) error
	}{
		{"bash", func(f *os.File) error { return cmd.GenBashCompletionV2(f, true) }},
		{"zsh", func(f *os.File) error { return cmd.GenZshCompletion(f) }},
		{"fish", func(f *os.File) error { return cmd.GenFishCompletion(f, true) }},
	}
	for _, shell := range shells {
		if err := writeFile(filepath.Join(dir, util.AppName+"."+shell.ext), shell.gen); err != nil {
			return err
		}
	}
	return nil
}

// generateConfigReference writes a markdown table of every .stylesync.toml
// key, taken from the same schema cmd/genschema publishes.
func generateConfigReference(_ *cobra.Command, dir string) error {
	r := jsonschema.Reflector{FieldNameTag: "toml", ExpandedStruct: true, DoNotReference: true}
	schema := r.Reflect(&config.SchemaConfig{})

	var b strings.Builder
	fmt.Fprintf(&b, "# %s reference\n\n", util.ConfigFilename)
	b.WriteString("| Key | Type | Description |\n|---|---|---|\n")
	writeProperties(&b, "", schema)

	return writeFile(filepath.Join(dir, "configuration.md"), func(f *os.File) error {
		_, err := f.WriteString(b.String())
		return err
	})
}

func writeProperties(b *strings.Builder, prefix string, schema *jsonschema.Schema) {
	if schema == nil || schema.Properties == nil {
		return
	}
	var keys []string
	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		prop, _ := schema.Properties.Get(key)
		name := prefix + key
		if prop.Type == "object" && prop.Properties != nil && prop.Properties.Len() > 0 {
			writeProperties(b, name+".", prop)
			continue
		}
		fmt.Fprintf(b, "| `%s` | %s | %s |\n", name, typeName(prop), prop.Description)
	}
}

func typeName(s *jsonschema.Schema) string {
	if s.Type == "array" && s.Items != nil {
		return s.Items.Type + "[]"
	}
	if s.Type == "object" && s.AdditionalProperties != nil {
		return "map of " + s.AdditionalProperties.Type
	}
	return s.Type
}

func writeFile(path string, gen func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gen(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}
