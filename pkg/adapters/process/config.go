package process

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tool describes one registered external command.
type Tool struct {
	Name        string            `yaml:"name"`
	Command     string            `yaml:"command"`
	Args        []string          `yaml:"args"`
	Env         map[string]string `yaml:"env"`
	Description string            `yaml:"description"`
}

// configFile is the structure of tools.yaml.
type configFile struct {
	Tools []Tool `yaml:"tools"`
}

// Registry tool names used by the pipeline stages.
const (
	ToolMakeBlastDB     = "makeblastdb"
	ToolIgBlast         = "igblastn"
	ToolMakeDB          = "makedb"
	ToolDefineClones    = "defineclones"
	ToolCreateGermlines = "creategermlines"
	ToolBuildTrees      = "buildtrees"
	ToolRscript         = "rscript"
)

// DefaultRegistry returns the standard IgBLAST/Immcantation tool set,
// resolved through PATH. A tools.yaml can override any entry, typically to
// point at a bundled bin directory.
func DefaultRegistry() map[string]Tool {
	return map[string]Tool{
		ToolMakeBlastDB:     {Name: ToolMakeBlastDB, Command: "makeblastdb"},
		ToolIgBlast:         {Name: ToolIgBlast, Command: "igblastn"},
		ToolMakeDB:          {Name: ToolMakeDB, Command: "MakeDb.py", Args: []string{"igblast"}},
		ToolDefineClones:    {Name: ToolDefineClones, Command: "DefineClones.py"},
		ToolCreateGermlines: {Name: ToolCreateGermlines, Command: "CreateGermlines.py"},
		ToolBuildTrees:      {Name: ToolBuildTrees, Command: "BuildTrees.py"},
		ToolRscript:         {Name: ToolRscript, Command: "Rscript"},
	}
}

// LoadTools reads a tools.yaml. A missing file is not an error: it means "no
// overrides" and yields an empty map.
func LoadTools(path string) (map[string]Tool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Tool{}, nil
		}
		return nil, fmt.Errorf("reading tools config: %w", err)
	}

	var cfg configFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing tools config: %w", err)
	}

	tools := make(map[string]Tool, len(cfg.Tools))
	for _, t := range cfg.Tools {
		if t.Name == "" || t.Command == "" {
			continue
		}
		tools[t.Name] = t
	}
	return tools, nil
}
