package config

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// ValidateSchema は設定ファイルの内容を CUE スキーマで検証する。
// JSON は YAML として読めるので、どちらの形式も同じ経路で検証する
func ValidateSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("cannot parse config: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if schema.Err() != nil {
		return fmt.Errorf("cannot compile CUE schema: %w", schema.Err())
	}

	value := ctx.Encode(doc)
	if value.Err() != nil {
		return fmt.Errorf("cannot encode config: %w", value.Err())
	}

	final := schema.LookupPath(cue.ParsePath("#File")).Unify(value)
	if final.Err() != nil {
		return fmt.Errorf("schema unify failed: %w", final.Err())
	}
	if err := final.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
