// File path: internal/data/orchestrator/options.go
package orchestrator

import (
	"github.com/nicodishanthj/Peregrine_phase1/internal/catalog"
	"github.com/nicodishanthj/Peregrine_phase1/internal/ibmcloud"
)

type Option func(*options)

type options struct {
	catalog catalog.Store
	cloud   ibmcloud.Service
}

// WithCatalogStore injects a catalog store implementation.
func WithCatalogStore(store catalog.Store) Option {
	return func(o *options) {
		o.catalog = store
	}
}

// WithCloudService injects an IBM Cloud pricing service implementation.
func WithCloudService(svc ibmcloud.Service) Option {
	return func(o *options) {
		o.cloud = svc
	}
}
