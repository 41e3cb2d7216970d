package app

import (
	"operatorkit/internal/config"
	"operatorkit/internal/kube"
	"operatorkit/internal/registry"
)

// Options holds what the application needs besides its configuration.
type Options struct {
	// Registry lists the kinds to run.
	Registry *registry.Registry

	// Clients overrides the clients built from the kubeconfig, mainly for tests.
	Clients *kube.Clients

	// Version is reported in logs and the info metric.
	Version string
}

// Config is the resolved configuration of one run.
type Config = config.Config
