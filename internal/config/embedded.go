package config

// EmbeddedBackendURL is injected at build time via ldflags for packaged builds
// that ship with a backend on a non-default address. It can be overridden by
// environment variables or config file.
//
// Build with:
//
//	go build -ldflags "-X 'github.com/slipstream/vidgrab/internal/config.EmbeddedBackendURL=http://127.0.0.1:5050'"
var EmbeddedBackendURL string

const fallbackBackendURL = "http://127.0.0.1:5000"

func defaultBackendURL() string {
	if EmbeddedBackendURL != "" {
		return EmbeddedBackendURL
	}
	return fallbackBackendURL
}
