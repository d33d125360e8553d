package internal

import "github.com/starford/raido/internal/remote"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	client remote.Client
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithRemoteClient overrides the sync endpoint client, mainly for tests.
func WithRemoteClient(c remote.Client) Option {
	return func(a *application) {
		a.client = c
	}
}
