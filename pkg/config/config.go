package config

import (
	"fmt"
	"os"
	"os/user"
	"path"

	"gopkg.in/yaml.v2"

	"github.com/go-delve/aotgraph/pkg/revision"
)

const (
	configDir  string = ".aotgraph"
	configFile string = "config.yml"
)

// Defaults used when a key is absent from the config file.
const (
	DefaultLiteral         = "mscorlib.dll"
	DefaultScanWorkers     = 1
	DefaultStringCacheSize = 1024
	DefaultMaxThunkHops    = 8
)

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// Commands aliases.
	Aliases map[string][]string `yaml:"aliases"`

	// CodeRegistrationLiteral is the name of the last registered code
	// generation module, searched for to find the code registration.
	CodeRegistrationLiteral string `yaml:"code-registration-literal,omitempty"`
	// ScanWorkers is the number of literal matches followed in parallel.
	ScanWorkers int `yaml:"scan-workers,omitempty"`
	// FollowThunks binds methods to the target of their jump thunks.
	FollowThunks bool `yaml:"follow-thunks"`
	// MaxThunkHops bounds the length of a followed thunk chain.
	MaxThunkHops int `yaml:"max-thunk-hops,omitempty"`
	// RevisionOverride forces the layout revision, e.g. "24.5".
	RevisionOverride string `yaml:"revision-override,omitempty"`
	// StringCacheSize is the number of strings read from the image that
	// are kept in memory.
	StringCacheSize int `yaml:"string-cache-size,omitempty"`
}

// Literal returns the configured literal or its default.
func (c *Config) Literal() string {
	if c.CodeRegistrationLiteral == "" {
		return DefaultLiteral
	}
	return c.CodeRegistrationLiteral
}

// Workers returns the configured scan workers or the default.
func (c *Config) Workers() int {
	if c.ScanWorkers <= 0 {
		return DefaultScanWorkers
	}
	return c.ScanWorkers
}

// ThunkHops returns the configured thunk hop bound or the default.
func (c *Config) ThunkHops() int {
	if c.MaxThunkHops <= 0 {
		return DefaultMaxThunkHops
	}
	return c.MaxThunkHops
}

// CacheSize returns the configured string cache size or the default.
func (c *Config) CacheSize() int {
	if c.StringCacheSize <= 0 {
		return DefaultStringCacheSize
	}
	return c.StringCacheSize
}

// Revision parses RevisionOverride. An empty override is the zero
// revision.
func (c *Config) Revision() (revision.Revision, error) {
	if c.RevisionOverride == "" {
		return revision.Revision{}, nil
	}
	v, ok := revision.Parse(c.RevisionOverride)
	if !ok {
		return revision.Revision{}, fmt.Errorf("invalid revision-override %q", c.RevisionOverride)
	}
	return v, nil
}

// LoadConfig attempts to populate a Config object from the config.yml file.
func LoadConfig() *Config {
	err := createConfigPath()
	if err != nil {
		fmt.Printf("Could not create config directory: %v.", err)
		return &Config{}
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		fmt.Printf("Unable to get config file path: %v.", err)
		return &Config{}
	}
	c, err := loadConfig(fullConfigFile)
	if err != nil {
		fmt.Printf("%v.", err)
		return &Config{}
	}
	return c
}

func loadConfig(fullConfigFile string) (*Config, error) {
	data, err := os.ReadFile(fullConfigFile)
	if err != nil {
		if err := writeDefaultConfig(fullConfigFile); err != nil {
			return nil, fmt.Errorf("error creating default config file: %v", err)
		}
		if data, err = os.ReadFile(fullConfigFile); err != nil {
			return nil, fmt.Errorf("unable to read config data: %v", err)
		}
	}

	var c Config
	err = yaml.Unmarshal(data, &c)
	if err != nil {
		return nil, fmt.Errorf("unable to decode config file: %v", err)
	}
	return &c, nil
}

// SaveConfig will marshal and save the config struct
// to disk.
func SaveConfig(conf *Config) error {
	if err := createConfigPath(); err != nil {
		return err
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return err
	}
	return saveConfig(conf, fullConfigFile)
}

func saveConfig(conf *Config, fullConfigFile string) error {
	out, err := yaml.Marshal(*conf)
	if err != nil {
		return err
	}
	return os.WriteFile(fullConfigFile, out, 0600)
}

func writeDefaultConfig(path string) error {
	if err := os.WriteFile(path, []byte(defaultConfig), 0600); err != nil {
		return fmt.Errorf("unable to write default configuration: %v", err)
	}
	return nil
}

const defaultConfig = `# Configuration file for aotgraph.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# Provided aliases will be added to the default aliases for a given command.
aliases:
  # command: ["alias1", "alias2"]

# Name of the last registered code generation module. The code registration
# is found by following pointers from this string.
# code-registration-literal: mscorlib.dll

# Number of matches of the literal followed in parallel.
# scan-workers: 1

# Bind methods to the target of a jmp thunk instead of the thunk itself.
# follow-thunks: false

# Maximum number of thunks followed for a single method.
# max-thunk-hops: 8

# Force the layout revision instead of reading it from the metadata header.
# Revision 24.x and 29.1 cannot be told apart by the header alone.
# revision-override: "24.5"

# Number of strings read from the native image that are cached.
# string-cache-size: 1024
`

// createConfigPath creates the directory structure at which all config files are saved.
func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {

	userHomeDir := "."
	usr, err := user.Current()
	if err == nil {
		userHomeDir = usr.HomeDir
	}
	return path.Join(userHomeDir, configDir, file), nil
}
