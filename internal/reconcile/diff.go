package reconcile

import (
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Diff renders the declared topology and the kernel's managed objects as
// canonical sorted inventories and returns a unified diff between them. An
// empty string means the kernel matches the declaration exactly. Only
// objects carrying the managed name prefix are considered, so unrelated
// interfaces and namespaces never show up as drift.
func (r *Reconciler) Diff() (string, error) {
	declared := r.declaredInventory()
	live, err := r.liveInventory()
	if err != nil {
		return "", err
	}

	sort.Strings(declared)
	sort.Strings(live)

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(strings.Join(declared, "\n") + "\n"),
		B:        difflib.SplitLines(strings.Join(live, "\n") + "\n"),
		FromFile: "declared",
		ToFile:   "live",
		Context:  3,
	})
	if err != nil {
		return "", err
	}
	return diff, nil
}

// declaredInventory renders what the store says should exist.
func (r *Reconciler) declaredInventory() []string {
	var out []string
	for _, v := range r.store.ListVPCs() {
		out = append(out, "bridge "+r.namer.Bridge(v.Name))
		for _, sub := range r.store.ListSubnets(v.Name) {
			ns := r.namer.Namespace(sub.VPC, sub.Name)
			out = append(out,
				"namespace "+ns,
				"link "+r.namer.VethHost(sub.VPC, sub.Name),
				"link "+r.namer.VethPeer(sub.VPC, sub.Name)+" in "+ns,
			)
			if sub.HasPolicy {
				out = append(out, "filter "+ns)
			}
		}
	}
	for _, p := range r.store.ListPeerings() {
		endA, endB := r.namer.PeeringVeths(p.A, p.B)
		out = append(out, "link "+endA, "link "+endB)
	}
	return out
}

// liveInventory renders the managed objects the kernel currently holds.
func (r *Reconciler) liveInventory() ([]string, error) {
	var out []string

	hostLinks, err := r.adapter.ListLinks("")
	if err != nil {
		return nil, err
	}
	bridgePrefix := r.namer.Prefix + "b-"
	for _, name := range hostLinks {
		if !strings.HasPrefix(name, r.namer.Prefix) {
			continue
		}
		if strings.HasPrefix(name, bridgePrefix) {
			out = append(out, "bridge "+name)
		} else {
			out = append(out, "link "+name)
		}
	}

	namespaces, err := r.adapter.ListNamespaces()
	if err != nil {
		return nil, err
	}
	nsPrefix := r.namer.Prefix + "-"
	for _, ns := range namespaces {
		if !strings.HasPrefix(ns, nsPrefix) {
			continue
		}
		out = append(out, "namespace "+ns)

		links, err := r.adapter.ListLinks(ns)
		if err != nil {
			return nil, err
		}
		for _, l := range links {
			if strings.HasPrefix(l, r.namer.Prefix) {
				out = append(out, "link "+l+" in "+ns)
			}
		}

		if _, err := r.adapter.ListFilterRules(ns); err == nil {
			out = append(out, "filter "+ns)
		}
	}

	return out, nil
}
