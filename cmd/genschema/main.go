// Command genschema prints or writes the JSON schema of .stylesync.toml.
//
// Usage: genschema [FILE] | genschema -check FILE
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/bolasblack/stylesync/internal/config"
)

func main() {
	data, err := generate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch {
	case len(os.Args) > 2 && os.Args[1] == "-check":
		// Fails when the committed schema is out of date.
		existing, err := os.ReadFile(os.Args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
			os.Exit(1)
		}
		if !bytes.Equal(bytes.TrimSpace(existing), bytes.TrimSpace(data)) {
			fmt.Fprintf(os.Stderr, "%s is out of date, run genschema %s\n", os.Args[2], os.Args[2])
			os.Exit(1)
		}
	case len(os.Args) > 1:
		if err := os.WriteFile(os.Args[1], data, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Println(string(data))
	}
}

func generate() ([]byte, error) {
	r := jsonschema.Reflector{
		// Property names follow the toml tags of .stylesync.toml
		FieldNameTag:               "toml",
		RequiredFromJSONSchemaTags: true,
	}

	schema := r.Reflect(&config.SchemaConfig{})
	schema.Title = "stylesync Configuration"
	schema.Description = "Configuration schema for .stylesync.toml"
	schema.ID = ""

	return json.MarshalIndent(schema, "", "  ")
}
