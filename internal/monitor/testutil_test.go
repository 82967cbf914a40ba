package monitor

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/systmms/credbroker/internal/config"
	"github.com/systmms/credbroker/internal/logging"
	"github.com/systmms/credbroker/internal/plugins"
	"github.com/systmms/credbroker/pkg/credential"
)

func testLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, false)
}

func testDefinition(mappings ...config.MappingConfig) *config.Definition {
	return &config.Definition{
		Connection: config.ConnectionConfig{
			Address:        "https://vault.example.com",
			ClientID:       "broker-1",
			APIVersion:     "v1",
			CACert:         "/etc/credbroker/ca.pem",
			RegistrationID: "reg-1",
		},
		Mappings: mappings,
		Monitor:  config.MonitorConfig{PollIntervalMs: 20},
	}
}

// fakeSubscription is a test double for the vault event stream handle.
type fakeSubscription struct {
	stops int32
}

func (s *fakeSubscription) Stop() {
	atomic.AddInt32(&s.stops, 1)
}

// fakeVault is a test double for VaultConnection.
type fakeVault struct {
	mu            sync.Mutex
	credentials   map[string][]byte
	fetchCalls    []string
	bidirectional bool
	regErr        error
	subscribeErr  error
	subscriptions int
	onChange      func(asset, account string)
	lastSub       *fakeSubscription
	cleared       int
}

func newFakeVault() *fakeVault {
	return &fakeVault{credentials: make(map[string][]byte)}
}

func (v *fakeVault) setCredential(key string, kind credential.Kind, value []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.credentials[key+"/"+string(kind)] = value
}

func (v *fakeVault) fetchCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.fetchCalls)
}

func (v *fakeVault) Subscribe(ctx context.Context, fetchKeys []string, onChange func(asset, account string)) (Subscription, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.subscribeErr != nil {
		return nil, v.subscribeErr
	}
	v.subscriptions++
	v.onChange = onChange
	v.lastSub = &fakeSubscription{}
	return v.lastSub, nil
}

func (v *fakeVault) FetchCredential(ctx context.Context, fetchKey string, kind credential.Kind) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	call := fetchKey + "/" + string(kind)
	v.fetchCalls = append(v.fetchCalls, call)
	value, ok := v.credentials[call]
	if !ok {
		return nil, errors.New("credential not found")
	}
	return value, nil
}

func (v *fakeVault) CheckRegistrationBidirectional(ctx context.Context, registrationID string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.regErr != nil {
		return false, v.regErr
	}
	return v.bidirectional, nil
}

func (v *fakeVault) ClearSessionCache() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cleared++
}

type pushCall struct {
	account credential.Account
	value   []byte
	kind    credential.Kind
}

// fakePlugin is a push-only test double for plugins.Plugin.
type fakePlugin struct {
	name      string
	mu        sync.Mutex
	pushes    []pushCall
	pushErr   error
	pushPanic bool
}

func (p *fakePlugin) Name() string { return p.name }

func (p *fakePlugin) Push(ctx context.Context, account credential.Account, value []byte, kind credential.Kind) error {
	if p.pushPanic {
		panic("plugin exploded")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pushErr != nil {
		return p.pushErr
	}
	p.pushes = append(p.pushes, pushCall{account: account, value: value, kind: kind})
	return nil
}

func (p *fakePlugin) pushCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pushes)
}

// fakePullerPlugin additionally implements plugins.Puller.
type fakePullerPlugin struct {
	fakePlugin
	pullValue []byte
	pullErr   error
	pulls     int32
}

func (p *fakePullerPlugin) Pull(ctx context.Context, account credential.Account, kind credential.Kind) ([]byte, error) {
	atomic.AddInt32(&p.pulls, 1)
	if p.pullErr != nil {
		return nil, p.pullErr
	}
	return p.pullValue, nil
}

// fakeDirectory is a test double for PluginDirectory.
type fakeDirectory struct {
	mu        sync.Mutex
	bindings  map[string]*plugins.Binding
	refreshes int
}

func newFakeDirectory(bindings ...*plugins.Binding) *fakeDirectory {
	d := &fakeDirectory{bindings: make(map[string]*plugins.Binding)}
	for _, b := range bindings {
		d.bindings[b.Name] = b
	}
	return d
}

func (d *fakeDirectory) Resolve(name string) (*plugins.Binding, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.bindings[name]
	return b, ok
}

func (d *fakeDirectory) Bindings() []*plugins.Binding {
	d.mu.Lock()
	defer d.mu.Unlock()

	names := make([]string, 0, len(d.bindings))
	for name := range d.bindings {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*plugins.Binding, 0, len(names))
	for _, name := range names {
		out = append(out, d.bindings[name])
	}
	return out
}

func (d *fakeDirectory) RefreshCredentials(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refreshes++
}

func (d *fakeDirectory) refreshCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refreshes
}

func loadedBinding(name string, plugin plugins.Plugin) *plugins.Binding {
	return &plugins.Binding{
		Name:   name,
		Plugin: plugin,
		Loaded: true,
		Kind:   credential.KindPassword,
	}
}

func reverseBinding(name string, plugin plugins.Plugin) *plugins.Binding {
	return &plugins.Binding{
		Name:                name,
		Plugin:              plugin,
		Loaded:              true,
		Kind:                credential.KindPassword,
		SupportsReverseFlow: true,
		ReverseFlowEnabled:  true,
	}
}

// fakeCompare is a test double for ComparisonCache.
type fakeCompare struct {
	mu      sync.Mutex
	entries map[string][]byte
	puts    int
	clears  int
}

func newFakeCompare() *fakeCompare {
	return &fakeCompare{entries: make(map[string][]byte)}
}

func (c *fakeCompare) Put(value []byte, asset, account, kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	c.entries[asset+"/"+account+"/"+kind] = value
}

func (c *fakeCompare) Get(asset, account, kind string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[asset+"/"+account+"/"+kind]
	return v, ok
}

func (c *fakeCompare) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clears++
	c.entries = make(map[string][]byte)
}

func (c *fakeCompare) putCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.puts
}

// fakeStore is a test double for StateStore.
type fakeStore struct {
	mu      sync.Mutex
	enabled bool
	loadErr error
	saves   []bool
}

func (s *fakeStore) SaveEnabled(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
	s.saves = append(s.saves, enabled)
	return nil
}

func (s *fakeStore) LoadEnabled() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return false, s.loadErr
	}
	return s.enabled, nil
}
