package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	Environment   string `mapstructure:"environment"`
	DevModeBypass bool   `mapstructure:"dev_mode_bypass"`
	LogLevel      string `mapstructure:"log_level"`

	Server struct {
		Addr    string        `mapstructure:"addr"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"server"`
	DB struct {
		Enable   bool   `mapstructure:"enable"`
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`
	Registry struct {
		ExtensionMapURL string        `mapstructure:"extension_map_url"`
		CatalogURL      string        `mapstructure:"catalog_url"`
		Timeout         time.Duration `mapstructure:"timeout"`
		CacheTTL        time.Duration `mapstructure:"cache_ttl"`
		Blacklist       []string      `mapstructure:"blacklist"`
	} `mapstructure:"registry"`
	GitHub struct {
		APIURL  string        `mapstructure:"api_url"`
		Token   string        `mapstructure:"token"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"github"`
	Files struct {
		Root          string `mapstructure:"root"`
		UploadDir     string `mapstructure:"upload_dir"`
		UploadBaseURL string `mapstructure:"upload_base_url"`
		Concurrency   int    `mapstructure:"concurrency"`
	} `mapstructure:"files"`
	Resolver struct {
		PullLatestHash  bool              `mapstructure:"pull_latest_hash"`
		IncludeNodeList bool              `mapstructure:"include_node_list"`
		Timeout         time.Duration     `mapstructure:"timeout"`
		ManualRepos     map[string]string `mapstructure:"manual_repos"`
	} `mapstructure:"resolver"`
	Loaders struct {
		OverlayFile string `mapstructure:"overlay_file"`
	} `mapstructure:"loaders"`
	Auth struct {
		OktaDomain   string `mapstructure:"okta_domain"`
		ClientID     string `mapstructure:"client_id"`
		ClientSecret string `mapstructure:"client_secret"`
		RedirectURL  string `mapstructure:"redirect_url"`

		// SwaggerClientID is the public PKCE client used by the docs page.
		SwaggerClientID string `mapstructure:"swagger_client_id"`
	} `mapstructure:"auth"`
	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`
}

// Defaults for the public registry documents and the GitHub API.
const (
	DefaultExtensionMapURL = "https://raw.githubusercontent.com/ltdrdata/ComfyUI-Manager/main/extension-node-map.json"
	DefaultCatalogURL      = "https://raw.githubusercontent.com/ltdrdata/ComfyUI-Manager/main/custom-node-list.json"
	DefaultGitHubAPIURL    = "https://api.github.com"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "PROD")
	v.SetDefault("log_level", "info")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.timeout", 15*time.Second)
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("registry.extension_map_url", DefaultExtensionMapURL)
	v.SetDefault("registry.catalog_url", DefaultCatalogURL)
	v.SetDefault("registry.timeout", 30*time.Second)
	v.SetDefault("registry.cache_ttl", 10*time.Minute)
	v.SetDefault("github.api_url", DefaultGitHubAPIURL)
	v.SetDefault("github.timeout", 10*time.Second)
	v.SetDefault("github.token", "")
	v.SetDefault("db.enable", false)
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.password", "")
	v.SetDefault("files.root", ".")
	v.SetDefault("files.concurrency", 8)
	v.SetDefault("resolver.pull_latest_hash", true)
	v.SetDefault("resolver.timeout", 2*time.Minute)
}

// LoadConfig loads the configuration from a file and the environment. An
// empty path searches for config.yaml in . and ./config; a missing file is
// not an error, the defaults and COMFYDEPS_* variables still apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.GetViper()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvPrefix("comfydeps")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// normalize OKTA issuer url (strip trailing slash if any)
	config.Auth.OktaDomain = normalizeURL(config.Auth.OktaDomain)
	config.GitHub.APIURL = normalizeURL(config.GitHub.APIURL)
	config.Files.UploadBaseURL = normalizeURL(config.Files.UploadBaseURL)

	return &config, nil
}

// IsDev reports whether the service runs in the DEV environment.
func (c *Config) IsDev() bool {
	return strings.EqualFold(c.Environment, "DEV")
}

// normalizeURL removes surrounding whitespace and any trailing slash, so
// pasted URLs can be joined with paths without double slashes.
func normalizeURL(input string) string {
	return strings.TrimRight(strings.TrimSpace(input), "/")
}
