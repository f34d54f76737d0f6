package history

import "sync"

// View remembers which hostnames are expanded.
type View struct {
	mu       sync.Mutex
	groups   []HostGroup
	expanded map[string]bool
}

func NewView(groups []HostGroup) *View {
	return &View{groups: groups, expanded: make(map[string]bool)}
}

// SetGroups replaces the data but keeps expand state for hosts still present.
func (v *View) SetGroups(groups []HostGroup) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.groups = groups
	keep := make(map[string]bool, len(v.expanded))
	for _, g := range groups {
		if v.expanded[g.Host] {
			keep[g.Host] = true
		}
	}
	v.expanded = keep
}

// Toggle flips host and returns its new state.
func (v *View) Toggle(host string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.expanded[host] = !v.expanded[host]
	if !v.expanded[host] {
		delete(v.expanded, host)
		return false
	}
	return true
}

func (v *View) Expanded(host string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.expanded[host]
}

// Row is one line of the rendered history. Summary rows carry the group;
// detail rows (Depth 1) carry one entry index into Group.Entries.
type Row struct {
	Depth int
	Group *HostGroup
	Entry int
}

// Rows flattens the groups, inserting detail rows under expanded hosts.
func (v *View) Rows() []Row {
	v.mu.Lock()
	defer v.mu.Unlock()
	var rows []Row
	for i := range v.groups {
		g := &v.groups[i]
		rows = append(rows, Row{Depth: 0, Group: g, Entry: -1})
		if !v.expanded[g.Host] {
			continue
		}
		for j := range g.Entries {
			rows = append(rows, Row{Depth: 1, Group: g, Entry: j})
		}
	}
	return rows
}
