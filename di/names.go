package di

// CoreNames defines the well-known component keys for the storage
// toolkit. Programs embed this struct in their own name sets so every
// layer agrees on the key for a shared dependency.
type CoreNames struct {
	Config   string
	Logger   string
	Engine   string
	Provider string
	Audit    string
	CDN      string
}

// Core holds the component keys every binary shares.
var Core = CoreNames{
	Config:   "config",
	Logger:   "logger",
	Engine:   "engine",
	Provider: "storage_provider",
	Audit:    "audit_log",
	CDN:      "cdn_generator",
}
