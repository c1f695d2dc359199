package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// FileSystem abstracts the file probes the loader makes, swappable in
// tests.
type FileSystem interface {
	Exists(path string) bool
	LoadEnv(path string) error
}

// osFS is the FileSystem backed by the real filesystem.
type osFS struct{}

func (osFS) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (osFS) LoadEnv(path string) error {
	return godotenv.Load(path)
}

// LoaderConfig holds the loader's dependencies and optional explicit
// file paths. Zero fields fall back to the real filesystem and the
// standard search locations.
type LoaderConfig struct {
	FileSystem FileSystem
	ConfigFile string
	EnvFile    string
}

// LoaderOption is a functional option for LoadConfig.
type LoaderOption func(*LoaderConfig)

// WithFileSystem sets a custom filesystem for the loader.
func WithFileSystem(fs FileSystem) LoaderOption {
	return func(lc *LoaderConfig) { lc.FileSystem = fs }
}

// WithConfigFile sets an explicit config file path, skipping the search.
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile sets an explicit .env file path, skipping the search.
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

// LoadConfig fills cfg for the named service: the YAML config file is
// the base layer, environment variables override it, and a .env file
// overlays last. A missing or unreadable file is a warning on stderr,
// not an error, so commands still run on environment alone.
func LoadConfig(serviceName string, cfg interface{}, opts ...LoaderOption) error {
	var lc LoaderConfig
	for _, opt := range opts {
		opt(&lc)
	}
	if lc.FileSystem == nil {
		lc.FileSystem = osFS{}
	}

	configFile := lc.ConfigFile
	if configFile == "" {
		configFile = findConfigFile(lc.FileSystem, serviceName)
	}
	envFile := lc.EnvFile
	if envFile == "" {
		envFile = findEnvFile(lc.FileSystem, serviceName)
	}

	v := viper.New()
	if configFile != "" && lc.FileSystem.Exists(configFile) {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "config: warning: skipping unreadable config file %s: %v\n", configFile, err)
		}
	}

	v.AutomaticEnv()
	bindEnviron(v)

	if envFile != "" && lc.FileSystem.Exists(envFile) {
		if err := lc.FileSystem.LoadEnv(envFile); err != nil {
			fmt.Fprintf(os.Stderr, "config: warning: skipping unreadable .env file %s: %v\n", envFile, err)
		} else {
			// Re-bind so the freshly loaded variables are picked up.
			bindEnviron(v)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("config: unmarshal for %s: %w", serviceName, err)
	}
	return nil
}

// searchDepths are the relative roots probed for config and env files,
// covering runs from the repo root, a cmd directory, or a bin directory.
var searchDepths = []string{".", "..", "../.."}

// nameVariants returns the service name plus its last hyphen segment,
// so "photoflow-lifecyclectl" also matches a cmd/lifecyclectl layout.
func nameVariants(serviceName string) []string {
	idx := strings.LastIndex(serviceName, "-")
	if idx == -1 {
		return []string{serviceName}
	}
	return []string{serviceName, serviceName[idx+1:]}
}

// findConfigFile probes the standard locations for config.yml and
// returns the first hit, or empty when none exists.
func findConfigFile(fs FileSystem, serviceName string) string {
	var paths []string
	for _, up := range searchDepths {
		for _, name := range nameVariants(serviceName) {
			paths = append(paths, fmt.Sprintf("%s/cmd/%s/config.yml", up, name))
		}
	}
	paths = append(paths, "./config/config.yml", "../config/config.yml", "./config.yml")

	for _, path := range paths {
		if fs.Exists(path) {
			return path
		}
	}
	return ""
}

// findEnvFile probes the standard locations for .env.<service> and then
// a plain .env, preferring the service-specific file wherever it lives.
func findEnvFile(fs FileSystem, serviceName string) string {
	names := nameVariants(serviceName)

	var dirs []string
	for _, up := range searchDepths {
		for _, name := range names {
			dirs = append(dirs, fmt.Sprintf("%s/cmd/%s", up, name))
		}
	}
	for _, up := range searchDepths {
		for _, name := range names {
			dirs = append(dirs, fmt.Sprintf("%s/config/%s", up, name))
		}
		dirs = append(dirs, up+"/config")
	}
	dirs = append(dirs, searchDepths...)

	for _, envFile := range []string{".env." + serviceName, ".env"} {
		for _, dir := range dirs {
			path := dir + "/" + envFile
			if fs.Exists(path) {
				return path
			}
		}
	}
	return ""
}

// bindEnviron force-sets every environment variable under each nested-key
// spelling it could correspond to, so ENGINE_STORAGE_BUCKET reaches
// engine.storage.bucket without a Bind call per key. Set outranks the
// config file in viper, which is the precedence LoadConfig documents.
func bindEnviron(v *viper.Viper) {
	for _, env := range os.Environ() {
		name, value, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		for _, key := range envKeyVariants(name) {
			v.Set(key, value)
		}
	}
}

// envKeyVariants lists the viper keys an environment variable can bind
// to: fully underscored, fully dotted, and each dotted-prefix split.
//
//	ENGINE_STORAGE_BUCKET -> engine_storage_bucket, engine.storage.bucket,
//	                         engine.storage_bucket
func envKeyVariants(envKey string) []string {
	key := strings.ToLower(envKey)
	parts := strings.Split(key, "_")
	if len(parts) == 1 {
		return []string{key}
	}

	seen := make(map[string]bool, len(parts)+1)
	out := make([]string, 0, len(parts)+1)
	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}

	add(key)
	add(strings.ReplaceAll(key, "_", "."))
	for i := 1; i < len(parts); i++ {
		add(strings.Join(parts[:i], ".") + "." + strings.Join(parts[i:], "_"))
	}
	return out
}
