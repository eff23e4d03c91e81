package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// WriteDefault generates a config file populated with the defaults, so an
// operator has something to edit. Refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}

	cfg := Default()
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	body.AppendUnstructuredTokens(hclwrite.Tokens{{
		Type:  hclsyntax.TokenComment,
		Bytes: []byte("# vpcsim configuration. All settings are optional.\n"),
	}})
	body.SetAttributeValue("state_path", cty.StringVal(cfg.StatePath))
	body.SetAttributeValue("name_prefix", cty.StringVal(cfg.NamePrefix))
	body.SetAttributeValue("link_wait_seconds", cty.NumberIntVal(int64(cfg.LinkWaitSeconds)))
	body.SetAttributeValue("policy_default", cty.StringVal(cfg.PolicyDefault))
	body.SetAttributeValue("log_level", cty.StringVal(cfg.LogLevel))
	body.SetAttributeValue("log_json", cty.BoolVal(cfg.LogJSON))

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, f.Bytes(), 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
