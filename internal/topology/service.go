// File path: internal/topology/service.go
package topology

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nicodishanthj/Peregrine_phase1/internal/rvtools"
)

// Service is an in-memory adjacency view over one inventory: which VMs share
// networks and datastores. Wave planning uses it to keep chatty neighbors in
// the same migration wave; the API uses it for per-VM detail views.
type Service struct {
	mu           sync.RWMutex
	vms          map[string]struct{}
	vmNetworks   map[string]map[string]struct{}
	networkVMs   map[string]map[string]struct{}
	vmDatastores map[string]map[string]struct{}

	fanoutLimit int

	cacheMu       sync.RWMutex
	cacheTTL      time.Duration
	neighborCache map[string]neighborEntry
	groupsCache   []Group
	groupsValid   bool
}

// Neighbor is one adjacent VM with the assets it shares with the subject.
type Neighbor struct {
	VMName string   `json:"vm_name"`
	Weight float64  `json:"weight"`
	Shared []string `json:"shared,omitempty"`
}

// Group is a connected component of VMs over shared networks.
type Group struct {
	ID      int      `json:"id"`
	VMNames []string `json:"vm_names"`
}

type neighborEntry struct {
	neighbors []Neighbor
	expires   time.Time
}

type Option func(*Service)

// WithFanoutLimit caps how many VMs a network may carry before it stops
// counting as adjacency. A flat management network spanning the estate must
// not glue every VM into one wave.
func WithFanoutLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.fanoutLimit = limit
		}
	}
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

const defaultFanoutLimit = 50

func NewService(opts ...Option) *Service {
	svc := &Service{
		vms:           make(map[string]struct{}),
		vmNetworks:    make(map[string]map[string]struct{}),
		networkVMs:    make(map[string]map[string]struct{}),
		vmDatastores:  make(map[string]map[string]struct{}),
		fanoutLimit:   defaultFanoutLimit,
		cacheTTL:      time.Minute,
		neighborCache: make(map[string]neighborEntry),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Refresh rebuilds the adjacency maps from the inventory and drops caches.
func (s *Service) Refresh(inv *rvtools.Inventory) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.vms = make(map[string]struct{}, len(inv.VMs))
	s.vmNetworks = make(map[string]map[string]struct{})
	s.networkVMs = make(map[string]map[string]struct{})
	s.vmDatastores = make(map[string]map[string]struct{})

	for _, vm := range inv.VMs {
		s.vms[vm.Name] = struct{}{}
	}
	for _, nic := range inv.NICs {
		network := strings.TrimSpace(nic.Network)
		if network == "" || nic.VMName == "" {
			continue
		}
		addEdge(s.vmNetworks, nic.VMName, network)
		addEdge(s.networkVMs, network, nic.VMName)
	}
	for _, disk := range inv.Disks {
		ds := strings.TrimSpace(disk.Datastore)
		if ds == "" || disk.VMName == "" {
			continue
		}
		addEdge(s.vmDatastores, disk.VMName, ds)
	}

	s.cacheMu.Lock()
	s.neighborCache = make(map[string]neighborEntry)
	s.groupsCache = nil
	s.groupsValid = false
	s.cacheMu.Unlock()
}

func addEdge(m map[string]map[string]struct{}, from, to string) {
	set := m[from]
	if set == nil {
		set = make(map[string]struct{})
		m[from] = set
	}
	set[to] = struct{}{}
}

// Neighbors returns VMs adjacent to the subject, weighted by shared
// networks (1.0 each) and shared datastores (0.25 each), sorted by weight
// then name.
func (s *Service) Neighbors(ctx context.Context, vmName string, limit int) ([]Neighbor, error) {
	if strings.TrimSpace(vmName) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	cacheKey := fmt.Sprintf("%s|%d", vmName, limit)
	if cached, ok := s.cachedNeighbors(cacheKey); ok {
		return cached, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := s.vms[vmName]; !ok {
		return nil, nil
	}

	weights := make(map[string]float64)
	shared := make(map[string][]string)
	for network := range s.vmNetworks[vmName] {
		members := s.networkVMs[network]
		if s.fanoutLimit > 0 && len(members) > s.fanoutLimit {
			continue
		}
		for member := range members {
			if member == vmName {
				continue
			}
			weights[member] += 1.0
			shared[member] = append(shared[member], network)
		}
	}
	for ds := range s.vmDatastores[vmName] {
		for other, stores := range s.vmDatastores {
			if other == vmName {
				continue
			}
			if _, ok := stores[ds]; ok {
				weights[other] += 0.25
			}
		}
	}

	neighbors := make([]Neighbor, 0, len(weights))
	for name, weight := range weights {
		assets := shared[name]
		sort.Strings(assets)
		neighbors = append(neighbors, Neighbor{VMName: name, Weight: weight, Shared: assets})
	}
	sort.SliceStable(neighbors, func(i, j int) bool {
		if neighbors[i].Weight == neighbors[j].Weight {
			return neighbors[i].VMName < neighbors[j].VMName
		}
		return neighbors[i].Weight > neighbors[j].Weight
	})
	if len(neighbors) > limit {
		neighbors = neighbors[:limit]
	}
	s.storeNeighbors(cacheKey, neighbors)
	return neighbors, nil
}

// Groups returns the connected components over shared networks, skipping
// networks wider than the fanout limit. Components are sorted by size
// descending and each member list alphabetically; singleton VMs are omitted.
func (s *Service) Groups(ctx context.Context) ([]Group, error) {
	s.cacheMu.RLock()
	if s.groupsValid {
		cached := s.groupsCache
		s.cacheMu.RUnlock()
		return cached, nil
	}
	s.cacheMu.RUnlock()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parent := make(map[string]string, len(s.vms))
	var find func(string) string
	find = func(x string) string {
		root, ok := parent[x]
		if !ok {
			parent[x] = x
			return x
		}
		if root == x {
			return x
		}
		resolved := find(root)
		parent[x] = resolved
		return resolved
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	for _, members := range s.networkVMs {
		if s.fanoutLimit > 0 && len(members) > s.fanoutLimit {
			continue
		}
		var anchor string
		for member := range members {
			if anchor == "" {
				anchor = member
				continue
			}
			union(anchor, member)
		}
	}

	componentMembers := make(map[string][]string)
	for vm := range s.vms {
		if _, ok := parent[vm]; !ok {
			continue
		}
		root := find(vm)
		componentMembers[root] = append(componentMembers[root], vm)
	}

	groups := make([]Group, 0, len(componentMembers))
	for _, members := range componentMembers {
		if len(members) < 2 {
			continue
		}
		sort.Strings(members)
		groups = append(groups, Group{VMNames: members})
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if len(groups[i].VMNames) != len(groups[j].VMNames) {
			return len(groups[i].VMNames) > len(groups[j].VMNames)
		}
		return groups[i].VMNames[0] < groups[j].VMNames[0]
	})
	for i := range groups {
		groups[i].ID = i + 1
	}

	s.cacheMu.Lock()
	s.groupsCache = groups
	s.groupsValid = true
	s.cacheMu.Unlock()
	return groups, nil
}

// SharedDatastores lists the datastores the VM touches.
func (s *Service) SharedDatastores(vmName string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stores := s.vmDatastores[vmName]
	if len(stores) == 0 {
		return nil
	}
	out := make([]string, 0, len(stores))
	for ds := range stores {
		out = append(out, ds)
	}
	sort.Strings(out)
	return out
}

func (s *Service) cachedNeighbors(key string) ([]Neighbor, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	entry, ok := s.neighborCache[key]
	if !ok || time.Now().After(entry.expires) {
		return nil, false
	}
	out := make([]Neighbor, len(entry.neighbors))
	copy(out, entry.neighbors)
	return out, true
}

func (s *Service) storeNeighbors(key string, neighbors []Neighbor) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.neighborCache[key] = neighborEntry{
		neighbors: append([]Neighbor(nil), neighbors...),
		expires:   time.Now().Add(s.cacheTTL),
	}
}
