package definitions

import (
	"cmp"
	"slices"
	"strings"
)

// Registry is the lookup surface over the cluster definition tree.
//
// Numeric lookups take wire identifiers. Name lookups are
// case-insensitive on both the cluster and the item name.
type Registry interface {
	ClusterName(clusterID uint32) (string, bool)
	ClusterID(cluster string) (uint32, bool)
	AttributeName(clusterID, attributeID uint32) (string, bool)
	CommandName(clusterID, commandID uint32) (string, bool)
	ResponseName(clusterID, commandID uint32) (string, bool)
	EventName(clusterID, eventID uint32) (string, bool)

	StructByName(cluster, name string) (*Struct, bool)
	AttributeByName(cluster, name string) (*Attribute, bool)
	CommandByName(cluster, name string) (*Command, bool)
	ResponseByName(cluster, name string) (*Response, bool)
	EventByName(cluster, name string) (*Event, bool)
}

// IsNullable reports whether a field may carry null.
func IsNullable(f Field) bool { return f.IsNullable }

// IsFabricScoped reports whether a struct carries the synthetic fabric
// index field.
func IsFabricScoped(s *Struct) bool { return s != nil && s.FabricScoped }

// Compile-time interface satisfaction check.
var _ Registry = (*Definitions)(nil)

type clusterIndex struct {
	cluster    *Cluster
	structs    map[string]*Struct
	attributes map[string]*Attribute
	commands   map[string]*Command
	responses  map[string]*Response
	events     map[string]*Event

	attributeByID map[uint32]*Attribute
	commandByID   map[uint32]*Command
	responseByID  map[uint32]*Response
	eventByID     map[uint32]*Event
}

// Definitions is the in-memory Registry built from a set of clusters.
type Definitions struct {
	byName map[string]*clusterIndex
	byID   map[uint32]*clusterIndex
}

// New indexes the given clusters. A later cluster with the same name or
// code replaces an earlier one.
func New(clusters ...*Cluster) *Definitions {
	d := &Definitions{
		byName: make(map[string]*clusterIndex),
		byID:   make(map[uint32]*clusterIndex),
	}
	for _, c := range clusters {
		idx := &clusterIndex{
			cluster:       c,
			structs:       make(map[string]*Struct),
			attributes:    make(map[string]*Attribute),
			commands:      make(map[string]*Command),
			responses:     make(map[string]*Response),
			events:        make(map[string]*Event),
			attributeByID: make(map[uint32]*Attribute),
			commandByID:   make(map[uint32]*Command),
			responseByID:  make(map[uint32]*Response),
			eventByID:     make(map[uint32]*Event),
		}
		for _, s := range c.Structs {
			idx.structs[key(s.Name)] = s
		}
		for _, a := range c.Attributes {
			idx.attributes[key(a.Name)] = a
			idx.attributeByID[a.Code] = a
		}
		for _, cmd := range c.Commands {
			idx.commands[key(cmd.Name)] = cmd
			idx.commandByID[cmd.Code] = cmd
		}
		for _, r := range c.Responses {
			idx.responses[key(r.Name)] = r
			idx.responseByID[r.Code] = r
		}
		for _, e := range c.Events {
			idx.events[key(e.Name)] = e
			idx.eventByID[e.Code] = e
		}
		d.byName[key(c.Name)] = idx
		d.byID[c.Code] = idx
	}
	return d
}

func key(name string) string { return strings.ToLower(name) }

// Clusters returns all indexed clusters ordered by code.
func (d *Definitions) Clusters() []*Cluster {
	out := make([]*Cluster, 0, len(d.byName))
	for _, idx := range d.byName {
		out = append(out, idx.cluster)
	}
	slices.SortFunc(out, func(a, b *Cluster) int { return cmp.Compare(a.Code, b.Code) })
	return out
}

// ClusterName resolves a cluster id to its name.
func (d *Definitions) ClusterName(clusterID uint32) (string, bool) {
	idx, ok := d.byID[clusterID]
	if !ok {
		return "", false
	}
	return idx.cluster.Name, true
}

// ClusterID resolves a cluster name to its id.
func (d *Definitions) ClusterID(cluster string) (uint32, bool) {
	idx, ok := d.byName[key(cluster)]
	if !ok {
		return 0, false
	}
	return idx.cluster.Code, true
}

// AttributeName resolves an attribute id within a cluster.
func (d *Definitions) AttributeName(clusterID, attributeID uint32) (string, bool) {
	idx, ok := d.byID[clusterID]
	if !ok {
		return "", false
	}
	a, ok := idx.attributeByID[attributeID]
	if !ok {
		return "", false
	}
	return a.Name, true
}

// CommandName resolves a command id within a cluster.
func (d *Definitions) CommandName(clusterID, commandID uint32) (string, bool) {
	idx, ok := d.byID[clusterID]
	if !ok {
		return "", false
	}
	c, ok := idx.commandByID[commandID]
	if !ok {
		return "", false
	}
	return c.Name, true
}

// ResponseName resolves a response command id within a cluster.
func (d *Definitions) ResponseName(clusterID, commandID uint32) (string, bool) {
	idx, ok := d.byID[clusterID]
	if !ok {
		return "", false
	}
	r, ok := idx.responseByID[commandID]
	if !ok {
		return "", false
	}
	return r.Name, true
}

// EventName resolves an event id within a cluster.
func (d *Definitions) EventName(clusterID, eventID uint32) (string, bool) {
	idx, ok := d.byID[clusterID]
	if !ok {
		return "", false
	}
	e, ok := idx.eventByID[eventID]
	if !ok {
		return "", false
	}
	return e.Name, true
}

// StructByName looks up a struct type.
func (d *Definitions) StructByName(cluster, name string) (*Struct, bool) {
	idx, ok := d.byName[key(cluster)]
	if !ok {
		return nil, false
	}
	s, ok := idx.structs[key(name)]
	return s, ok
}

// AttributeByName looks up an attribute.
func (d *Definitions) AttributeByName(cluster, name string) (*Attribute, bool) {
	idx, ok := d.byName[key(cluster)]
	if !ok {
		return nil, false
	}
	a, ok := idx.attributes[key(name)]
	return a, ok
}

// CommandByName looks up a command.
func (d *Definitions) CommandByName(cluster, name string) (*Command, bool) {
	idx, ok := d.byName[key(cluster)]
	if !ok {
		return nil, false
	}
	c, ok := idx.commands[key(name)]
	return c, ok
}

// ResponseByName looks up a command response.
func (d *Definitions) ResponseByName(cluster, name string) (*Response, bool) {
	idx, ok := d.byName[key(cluster)]
	if !ok {
		return nil, false
	}
	r, ok := idx.responses[key(name)]
	return r, ok
}

// EventByName looks up an event.
func (d *Definitions) EventByName(cluster, name string) (*Event, bool) {
	idx, ok := d.byName[key(cluster)]
	if !ok {
		return nil, false
	}
	e, ok := idx.events[key(name)]
	return e, ok
}
