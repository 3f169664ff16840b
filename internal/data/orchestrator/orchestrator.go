// File path: internal/data/orchestrator/orchestrator.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/nicodishanthj/Peregrine_phase1/internal/assessment"
	"github.com/nicodishanthj/Peregrine_phase1/internal/catalog"
	"github.com/nicodishanthj/Peregrine_phase1/internal/common"
	"github.com/nicodishanthj/Peregrine_phase1/internal/cost"
	"github.com/nicodishanthj/Peregrine_phase1/internal/ibmcloud"
	"github.com/nicodishanthj/Peregrine_phase1/internal/inventory"
	"github.com/nicodishanthj/Peregrine_phase1/internal/sqlite"
	"github.com/nicodishanthj/Peregrine_phase1/internal/targets"
	"github.com/nicodishanthj/Peregrine_phase1/internal/topology"
)

type closer interface {
	Close() error
}

// Orchestrator wires together the persistent stores, the pricing client, and
// the assessment pipeline that back the VMA server, and exposes convenience
// accessors for the API layer.
type Orchestrator struct {
	cfg Config

	inventory *inventory.Store
	catalog   catalog.Store
	topology  *topology.Service
	targets   *targets.Catalog
	cloud     ibmcloud.Service
	estimator *cost.Estimator
	assessor  *assessment.Assessor

	closers []closer
}

// New constructs an orchestrator from the provided configuration and optional
// overrides. The IBM Cloud client always comes up: without credentials, or
// with DisableCloud set, it quotes from the static price table only.
func New(ctx context.Context, cfg Config, opts ...Option) (*Orchestrator, error) {
	logger := common.Logger()
	cfg = applyDefaults(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	settings := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}

	invStore, err := inventory.NewStore(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("init inventory store: %w", err)
	}

	var closers []closer
	catalogStore := settings.catalog
	if catalogStore == nil {
		store, err := sqlite.Open(cfg.CatalogPath)
		if err != nil {
			return nil, fmt.Errorf("init catalog store: %w", err)
		}
		catalogStore = store
		closers = append(closers, store)
	}

	region := ""
	cloud := settings.cloud
	if cloud == nil {
		cloudCfg, err := ibmcloud.LoadConfig()
		if err != nil {
			closeAll(closers)
			return nil, fmt.Errorf("load ibmcloud config: %w", err)
		}
		if cfg.DisableCloud {
			cloudCfg.APIKey = ""
		}
		client, err := ibmcloud.New(ctx, cloudCfg)
		if err != nil {
			closeAll(closers)
			return nil, fmt.Errorf("init ibmcloud client: %w", err)
		}
		cloud = client
		region = cloudCfg.Region
	}
	closers = append(closers, cloud)

	targetCatalog := targets.NewCatalog()
	if cloud.Available() {
		profiles, err := cloud.InstanceProfiles(ctx)
		if err != nil {
			logger.Warn("orchestrator: profile refresh failed; using builtin catalog", "error", err)
		} else if len(profiles) > 0 {
			targetCatalog.Replace(profiles)
			logger.Info("orchestrator: profile catalog refreshed", "profiles", len(profiles))
		}
	}

	topo := topology.NewService()
	orch := &Orchestrator{
		cfg:       cfg,
		inventory: invStore,
		catalog:   catalogStore,
		topology:  topo,
		targets:   targetCatalog,
		cloud:     cloud,
		estimator: cost.NewEstimator(targetCatalog, cloud, region),
		assessor:  assessment.NewAssessor(assessment.WithTopology(topo)),
		closers:   closers,
	}
	logger.Info("orchestrator: ready",
		"store", cfg.StorePath, "catalog", cfg.CatalogPath,
		"cloud_available", cloud.Available())
	return orch, nil
}

// Inventory exposes the report inventory store.
func (o *Orchestrator) Inventory() *inventory.Store {
	if o == nil {
		return nil
	}
	return o.inventory
}

// Catalog exposes the assessment catalog store.
func (o *Orchestrator) Catalog() catalog.Store {
	if o == nil {
		return nil
	}
	return o.catalog
}

// Topology exposes the shared network adjacency service.
func (o *Orchestrator) Topology() *topology.Service {
	if o == nil {
		return nil
	}
	return o.topology
}

// Targets exposes the instance profile catalog.
func (o *Orchestrator) Targets() *targets.Catalog {
	if o == nil {
		return nil
	}
	return o.targets
}

// Cloud exposes the IBM Cloud pricing service.
func (o *Orchestrator) Cloud() ibmcloud.Service {
	if o == nil {
		return nil
	}
	return o.cloud
}

// Estimator exposes the cost estimator.
func (o *Orchestrator) Estimator() *cost.Estimator {
	if o == nil {
		return nil
	}
	return o.estimator
}

// Assessor exposes the assessment pipeline.
func (o *Orchestrator) Assessor() *assessment.Assessor {
	if o == nil {
		return nil
	}
	return o.assessor
}

// ArtifactRoot returns the directory workflow artifacts are written under.
func (o *Orchestrator) ArtifactRoot() string {
	if o == nil {
		return ""
	}
	return o.cfg.ArtifactRoot
}

// UploadRoot returns the staging directory for uploaded workbooks.
func (o *Orchestrator) UploadRoot() string {
	if o == nil {
		return ""
	}
	return o.cfg.UploadRoot
}

// Close releases any resources associated with the orchestrator.
func (o *Orchestrator) Close() error {
	if o == nil {
		return nil
	}
	var err error
	for i := len(o.closers) - 1; i >= 0; i-- {
		closer := o.closers[i]
		if closer == nil {
			continue
		}
		if cerr := closer.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	return err
}

func closeAll(closers []closer) {
	for i := len(closers) - 1; i >= 0; i-- {
		if closers[i] != nil {
			_ = closers[i].Close()
		}
	}
}
