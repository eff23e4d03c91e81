package netops

import (
	"time"

	"github.com/stretchr/testify/mock"
)

// MockAdapter is a testify mock of the Adapter interface.
type MockAdapter struct {
	mock.Mock
}

func (m *MockAdapter) CreateNamespace(name string) error {
	args := m.Called(name)
	return args.Error(0)
}

func (m *MockAdapter) DeleteNamespace(name string) error {
	args := m.Called(name)
	return args.Error(0)
}

func (m *MockAdapter) NamespaceExists(name string) (bool, error) {
	args := m.Called(name)
	return args.Bool(0), args.Error(1)
}

func (m *MockAdapter) ListNamespaces() ([]string, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockAdapter) CreateBridge(name string) error {
	args := m.Called(name)
	return args.Error(0)
}

func (m *MockAdapter) DeleteBridge(name string) error {
	args := m.Called(name)
	return args.Error(0)
}

func (m *MockAdapter) CreateVethPair(name, peer string) error {
	args := m.Called(name, peer)
	return args.Error(0)
}

func (m *MockAdapter) DeleteLink(name string) error {
	args := m.Called(name)
	return args.Error(0)
}

func (m *MockAdapter) MoveLinkToNamespace(link, ns string) error {
	args := m.Called(link, ns)
	return args.Error(0)
}

func (m *MockAdapter) AttachToBridge(link, bridge string) error {
	args := m.Called(link, bridge)
	return args.Error(0)
}

func (m *MockAdapter) SetLinkUp(ns, link string) error {
	args := m.Called(ns, link)
	return args.Error(0)
}

func (m *MockAdapter) WaitLinkUp(ns, link string, timeout time.Duration) error {
	args := m.Called(ns, link, timeout)
	return args.Error(0)
}

func (m *MockAdapter) ListLinks(ns string) ([]string, error) {
	args := m.Called(ns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockAdapter) AssignAddress(ns, link, cidr string) error {
	args := m.Called(ns, link, cidr)
	return args.Error(0)
}

func (m *MockAdapter) RemoveAddress(ns, link, cidr string) error {
	args := m.Called(ns, link, cidr)
	return args.Error(0)
}

func (m *MockAdapter) RunInNamespace(ns string, fn func() error) error {
	args := m.Called(ns, fn)
	return args.Error(0)
}

func (m *MockAdapter) AddDefaultRoute(ns, gateway string) error {
	args := m.Called(ns, gateway)
	return args.Error(0)
}

func (m *MockAdapter) ReplaceFilterRules(ns string, rules []FilterRule, defaultAccept bool) error {
	args := m.Called(ns, rules, defaultAccept)
	return args.Error(0)
}

func (m *MockAdapter) DeleteFilterTable(ns string) error {
	args := m.Called(ns)
	return args.Error(0)
}

func (m *MockAdapter) ListFilterRules(ns string) ([]FilterRule, error) {
	args := m.Called(ns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]FilterRule), args.Error(1)
}
