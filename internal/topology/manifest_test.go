package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `
vpcs:
  - name: vpc1
    cidr: 10.0.0.0/16
    subnets:
      - name: public
        cidr: 10.0.1.0/24
        kind: public
      - name: private
        cidr: 10.0.2.0/24
peerings:
  - a: vpc1
    b: vpc2
`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(sampleManifest))
	require.NoError(t, err)

	require.Len(t, m.VPCs, 1)
	assert.Equal(t, "vpc1", m.VPCs[0].Name)
	require.Len(t, m.VPCs[0].Subnets, 2)
	assert.Equal(t, "public", m.VPCs[0].Subnets[0].Kind)
	// Kind defaults to private when omitted.
	assert.Equal(t, "private", m.VPCs[0].Subnets[1].Kind)
	require.Len(t, m.Peerings, 1)
}

func TestParseManifestRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"missing cidr":  "vpcs:\n  - name: vpc1\n",
		"bad kind":      "vpcs:\n  - name: v\n    cidr: 10.0.0.0/16\n    subnets:\n      - name: s\n        cidr: 10.0.1.0/24\n        kind: dmz\n",
		"half peering":  "peerings:\n  - a: vpc1\n",
		"unknown field": "vpcs:\n  - name: v\n    cidr: 10.0.0.0/16\n    bogus: true\n",
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseManifest([]byte(doc))
			assert.Error(t, err)
		})
	}
}
