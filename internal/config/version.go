package config

// Version is set at build time with -ldflags "-X .../internal/config.Version=v1.2.3".
var Version = "dev"
