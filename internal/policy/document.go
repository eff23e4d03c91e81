// Package policy translates declarative security policy documents into
// ordered packet-filter rules scoped to one subnet's namespace.
package policy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"grimm.is/vpcsim/internal/netops"
	"grimm.is/vpcsim/internal/topology"
)

// Rule is one ingress rule. Rules are evaluated in declaration order; the
// first match wins.
type Rule struct {
	Protocol string `json:"protocol"`
	Port     int    `json:"port,omitempty"`
	Action   string `json:"action"`
}

// Document is a security policy for one subnet.
type Document struct {
	Subnet  string `json:"subnet"`
	Ingress []Rule `json:"ingress"`
}

// LoadDocument reads and validates a JSON policy file.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParseDocument(data)
}

// ParseDocument decodes and validates a JSON policy document. Validation is
// complete before any kernel rule is installed: a document that fails here
// has no side effects.
func ParseDocument(data []byte) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, topology.NewValidationError("policy-syntax", "bad policy document: %v", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks the whole document against the rule model.
func (d *Document) Validate() error {
	if d.Subnet == "" {
		return topology.NewValidationError("policy-subnet", "policy document names no subnet")
	}
	for i, r := range d.Ingress {
		switch r.Protocol {
		case "tcp", "udp":
			if r.Port == 0 {
				return topology.NewValidationError("policy-port",
					"ingress[%d]: port is required for protocol %q", i, r.Protocol)
			}
			if r.Port < 1 || r.Port > 65535 {
				return topology.NewValidationError("policy-port",
					"ingress[%d]: port %d out of range", i, r.Port)
			}
		case "icmp", "any":
			if r.Port != 0 {
				return topology.NewValidationError("policy-port",
					"ingress[%d]: port is meaningless for protocol %q", i, r.Protocol)
			}
		default:
			return topology.NewValidationError("policy-protocol",
				"ingress[%d]: unknown protocol %q", i, r.Protocol)
		}
		switch r.Action {
		case "allow", "deny":
		default:
			return topology.NewValidationError("policy-action",
				"ingress[%d]: unknown action %q (want allow or deny)", i, r.Action)
		}
	}
	return nil
}

// FilterRules converts the document into adapter rules, in document order.
func (d *Document) FilterRules() []netops.FilterRule {
	out := make([]netops.FilterRule, 0, len(d.Ingress))
	for _, r := range d.Ingress {
		action := netops.VerdictDrop
		if r.Action == "allow" {
			action = netops.VerdictAccept
		}
		out = append(out, netops.FilterRule{
			Protocol: r.Protocol,
			Port:     uint16(r.Port),
			Action:   action,
		})
	}
	return out
}
