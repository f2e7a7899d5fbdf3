package model

import "sort"

// RelationKind is the edge between two devices. A pair holds at most one
// kind, which keeps trusted and ignored mutually exclusive and makes the
// inverse lookups mirror the forward ones.
type RelationKind uint8

const (
	RelationNone RelationKind = iota
	RelationTrusted
	RelationIgnored
)

func (k RelationKind) String() string {
	switch k {
	case RelationTrusted:
		return "trusted"
	case RelationIgnored:
		return "ignored"
	default:
		return "none"
	}
}

type relationGraph struct {
	out map[ObjectID]map[ObjectID]RelationKind
	in  map[ObjectID]map[ObjectID]RelationKind
}

func newRelationGraph() *relationGraph {
	return &relationGraph{
		out: map[ObjectID]map[ObjectID]RelationKind{},
		in:  map[ObjectID]map[ObjectID]RelationKind{},
	}
}

func (g *relationGraph) get(from, to ObjectID) RelationKind {
	return g.out[from][to]
}

// set stores the edge and reports whether it changed.
func (g *relationGraph) set(from, to ObjectID, kind RelationKind) bool {
	if g.get(from, to) == kind {
		return false
	}
	if kind == RelationNone {
		delete(g.out[from], to)
		delete(g.in[to], from)
		return true
	}
	if g.out[from] == nil {
		g.out[from] = map[ObjectID]RelationKind{}
	}
	if g.in[to] == nil {
		g.in[to] = map[ObjectID]RelationKind{}
	}
	g.out[from][to] = kind
	g.in[to][from] = kind
	return true
}

func (g *relationGraph) peers(id ObjectID, kind RelationKind, outgoing bool) []ObjectID {
	edges := g.in[id]
	if outgoing {
		edges = g.out[id]
	}
	var out []ObjectID
	for other, k := range edges {
		if k == kind {
			out = append(out, other)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (g *relationGraph) removeAll(id ObjectID) {
	for to := range g.out[id] {
		delete(g.in[to], id)
	}
	for from := range g.in[id] {
		delete(g.out[from], id)
	}
	delete(g.out, id)
	delete(g.in, id)
}

// Relation is one edge of the trust graph.
type Relation struct {
	From *Device
	To   *Device
	Kind RelationKind
}

// SetRelation points from's edge to each of devices at kind, atomically
// for the whole batch. It returns the devices whose edge changed.
func (c *ObjectContext) SetRelation(from *Device, devices []*Device, kind RelationKind) []*Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	var changed []*Device
	for _, to := range devices {
		if to.deleted || from.deleted {
			continue
		}
		if c.relations.set(from.objectID, to.objectID, kind) {
			changed = append(changed, to)
		}
	}
	return changed
}

// Relations lists every edge, ordered by source then target.
func (c *ObjectContext) Relations() []Relation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Relation
	for _, from := range c.devicesLocked() {
		for _, kind := range []RelationKind{RelationTrusted, RelationIgnored} {
			for _, id := range c.relations.peers(from.objectID, kind, true) {
				out = append(out, Relation{From: from, To: c.devices[id], Kind: kind})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].From.objectID != out[j].From.objectID {
			return out[i].From.objectID < out[j].From.objectID
		}
		return out[i].To.objectID < out[j].To.objectID
	})
	return out
}

func sortedDevices(m map[ObjectID]*Device) []*Device {
	out := make([]*Device, 0, len(m))
	for _, d := range m {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].objectID < out[j].objectID })
	return out
}
