package cli

import (
	"os"
	"path/filepath"
)

// Paths locates an app's files under ~/.bindkit/<app>.
type Paths struct {
	AppName string
	HomeDir string
}

// NewPaths returns the paths of app under the user's home directory.
func NewPaths(app string) (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &Paths{AppName: app, HomeDir: home}, nil
}

// BaseDir is ~/.bindkit.
func (p *Paths) BaseDir() string {
	return filepath.Join(p.HomeDir, DefaultBaseDir)
}

// AppDir is ~/.bindkit/<app>.
func (p *Paths) AppDir() string {
	return filepath.Join(p.BaseDir(), p.AppName)
}

// ConfigFile is ~/.bindkit/<app>/config.yaml.
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.AppDir(), DefaultConfigFile)
}

// CacheDir is ~/.bindkit/<app>/cache, the default build cache location.
func (p *Paths) CacheDir() string {
	return filepath.Join(p.AppDir(), "cache")
}
