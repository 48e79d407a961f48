// Package topology resolves Sonos zone groups from a raw ZoneGroupState document.
//
// The document is treated as loosely structured: members are recognised by
// shape (a node carrying both UUID and Location) wherever they appear, so
// stereo pairs, home theatre satellites and any future nesting are flattened
// without knowing the element names in between.
package topology

import (
	"net"
	"net/url"
	"strings"

	"github.com/strefethen/sonos-dial-go/internal/sonos/xmldoc"
)

// Member is one player found in the document.
type Member struct {
	UUID     string
	Location string
	Name     string
}

// Host returns the bare address from the member's Location.
func (m Member) Host() string {
	return HostFromLocation(m.Location)
}

// ZoneGroup is a set of players acting as one control target.
type ZoneGroup struct {
	ID              string
	CoordinatorUUID string
	CoordinatorHost string
	Name            string
	// MemberHosts holds each host once, in document order.
	MemberHosts []string
}

// HasHost reports whether host is a member of the group.
func (g ZoneGroup) HasHost(host string) bool {
	for _, member := range g.MemberHosts {
		if member == host {
			return true
		}
	}
	return false
}

// CollectMembers walks node recursively and returns every member, keeping the
// first occurrence of each UUID.
func CollectMembers(node *xmldoc.Node) []Member {
	var members []Member
	seen := make(map[string]struct{})
	collect(node, &members, seen)
	return members
}

func collect(node *xmldoc.Node, members *[]Member, seen map[string]struct{}) {
	if node == nil {
		return
	}
	switch node.Kind {
	case xmldoc.KindList:
		for _, item := range node.List {
			collect(item, members, seen)
		}
	case xmldoc.KindMap:
		if member, ok := asMember(node); ok {
			if _, dup := seen[member.UUID]; !dup {
				seen[member.UUID] = struct{}{}
				*members = append(*members, member)
			}
		}
		for _, key := range node.Keys() {
			child, _ := node.Get(key)
			collect(child, members, seen)
		}
	}
}

func asMember(node *xmldoc.Node) (Member, bool) {
	uuid := node.Text("UUID")
	location := node.Text("Location")
	if uuid == "" || location == "" {
		return Member{}, false
	}
	return Member{UUID: uuid, Location: location, Name: node.Text("ZoneName")}, true
}

// declaredGroups returns every node that declares a coordinator.
func declaredGroups(node *xmldoc.Node) []*xmldoc.Node {
	var groups []*xmldoc.Node
	var walk func(*xmldoc.Node)
	walk = func(n *xmldoc.Node) {
		if n == nil {
			return
		}
		switch n.Kind {
		case xmldoc.KindList:
			for _, item := range n.List {
				walk(item)
			}
		case xmldoc.KindMap:
			if n.Text("Coordinator") != "" {
				groups = append(groups, n)
				return
			}
			for _, key := range n.Keys() {
				child, _ := n.Get(key)
				walk(child)
			}
		}
	}
	walk(node)
	return groups
}

// Resolve builds one ZoneGroup per declared group in the document. The
// coordinator is the member whose UUID matches the group's Coordinator
// attribute, or the group's first member when nothing matches. Groups without
// any resolvable member are skipped.
func Resolve(doc *xmldoc.Node) []ZoneGroup {
	all := CollectMembers(doc)
	byUUID := make(map[string]Member, len(all))
	for _, member := range all {
		byUUID[member.UUID] = member
	}

	var groups []ZoneGroup
	for _, node := range declaredGroups(doc) {
		members := CollectMembers(node)
		if len(members) == 0 {
			continue
		}

		coordinatorID := node.Text("Coordinator")
		coordinator, ok := findMember(members, coordinatorID)
		if !ok {
			coordinator = members[0]
		}
		if full, ok := byUUID[coordinator.UUID]; ok && coordinator.Name == "" {
			coordinator.Name = full.Name
		}

		hosts := make([]string, 0, len(members))
		seenHosts := make(map[string]struct{}, len(members))
		for _, member := range members {
			host := member.Host()
			if host == "" {
				continue
			}
			if _, dup := seenHosts[host]; dup {
				continue
			}
			seenHosts[host] = struct{}{}
			hosts = append(hosts, host)
		}

		coordinatorHost := coordinator.Host()
		if coordinatorHost == "" {
			if len(hosts) == 0 {
				continue
			}
			coordinatorHost = hosts[0]
		}

		name := coordinator.Name
		if name == "" {
			name = node.Text("ID")
		}

		groups = append(groups, ZoneGroup{
			ID:              node.Text("ID"),
			CoordinatorUUID: coordinator.UUID,
			CoordinatorHost: coordinatorHost,
			Name:            name,
			MemberHosts:     hosts,
		})
	}
	return groups
}

func findMember(members []Member, uuid string) (Member, bool) {
	if uuid == "" {
		return Member{}, false
	}
	for _, member := range members {
		if member.UUID == uuid {
			return member, true
		}
	}
	return Member{}, false
}

// GroupContaining returns the first group that lists host as a member.
func GroupContaining(groups []ZoneGroup, host string) (ZoneGroup, bool) {
	for _, group := range groups {
		if group.HasHost(host) {
			return group, true
		}
	}
	return ZoneGroup{}, false
}

// HostFromLocation extracts the bare host from a Location URL, dropping the
// scheme, port and path. Inputs without a scheme are accepted.
func HostFromLocation(location string) string {
	location = strings.TrimSpace(location)
	if location == "" {
		return ""
	}
	if !strings.Contains(location, "://") {
		location = "http://" + location
	}
	parsed, err := url.Parse(location)
	if err == nil && parsed.Hostname() != "" {
		return parsed.Hostname()
	}
	hostPort := strings.TrimPrefix(location, "http://")
	if idx := strings.IndexAny(hostPort, "/?#"); idx >= 0 {
		hostPort = hostPort[:idx]
	}
	if host, _, err := net.SplitHostPort(hostPort); err == nil {
		return host
	}
	return hostPort
}
