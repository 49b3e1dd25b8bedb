package config

// FoundryConfig represents the parts of foundry.toml that shape a project layout
type FoundryConfig struct {
	Profile map[string]ProfileConfig `toml:"profile"`
}

// ProfileConfig represents a profile's source layout
type ProfileConfig struct {
	SrcPath    string   `toml:"src,omitempty"`
	OutPath    string   `toml:"out,omitempty"`
	ScriptPath string   `toml:"script,omitempty"`
	TestPath   string   `toml:"test,omitempty"`
	LibPaths   []string `toml:"libs,omitempty"`
}

// SourceDirs returns the src and script directories of the default profile
func (c *FoundryConfig) SourceDirs() (src, script string) {
	src, script = "src", "script"
	if c == nil {
		return src, script
	}
	if p, ok := c.Profile["default"]; ok {
		if p.SrcPath != "" {
			src = p.SrcPath
		}
		if p.ScriptPath != "" {
			script = p.ScriptPath
		}
	}
	return src, script
}
