package main

import (
	"context"
	"fmt"

	"github.com/effective-security/mcpagent/pkg/llmutils"
)

// ToolsCmd prints the catalog offered to the model
type ToolsCmd struct {
	Format string `short:"o" long:"output" description:"output format" choice:"yaml" choice:"json" default:"yaml"`

	root *Options
}

// Execute implements flags.Commander
func (c *ToolsCmd) Execute(_ []string) error {
	cfg, err := c.root.loadConfig()
	if err != nil {
		return err
	}

	a, release, err := c.root.newAgent(cfg, nil)
	if err != nil {
		return err
	}
	defer release()

	if err = a.Initialize(context.Background()); err != nil {
		return err
	}

	list := a.Tools()
	if c.Format == "json" {
		fmt.Fprintln(c.root.out, llmutils.ToJSONIndent(list))
		return nil
	}
	fmt.Fprint(c.root.out, llmutils.ToYAML(list))
	return nil
}
