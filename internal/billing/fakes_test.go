package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jmehdipour/vps-billing/internal/config"
	"github.com/jmehdipour/vps-billing/internal/model"
	"github.com/jmehdipour/vps-billing/internal/pricing"
)

type memStore struct {
	mu       sync.Mutex
	accounts map[int64]*model.Account
	servers  map[int64]model.Server
	volumes  map[int64]model.Volume
	ledger   []model.Transaction
	keys     map[string]bool

	listErr      error
	accountErr   map[int64]error
	deleteErr    map[int64]error
	initialFunds map[int64]int64
}

func newMemStore() *memStore {
	return &memStore{
		accounts:     map[int64]*model.Account{},
		servers:      map[int64]model.Server{},
		volumes:      map[int64]model.Volume{},
		keys:         map[string]bool{},
		accountErr:   map[int64]error{},
		deleteErr:    map[int64]error{},
		initialFunds: map[int64]int64{},
	}
}

func (s *memStore) addAccount(id, balance int64) {
	s.accounts[id] = &model.Account{ID: id, Balance: balance}
	s.initialFunds[id] = balance
}

func (s *memStore) addServer(srv model.Server) {
	if srv.Status == "" {
		srv.Status = model.ServerActive
	}
	if srv.Name == "" {
		srv.Name = "srv"
	}
	if srv.ProviderID == "" {
		srv.ProviderID = fmt.Sprintf("do-%d", srv.ID)
	}
	s.servers[srv.ID] = srv
}

func (s *memStore) addVolume(id, serverID, accountID, sizeGB int64) {
	sid := serverID
	s.volumes[id] = model.Volume{ID: id, ServerID: &sid, AccountID: accountID, SizeGB: sizeGB, ProviderID: fmt.Sprintf("vol-%d", id)}
}

func (s *memStore) balance(id int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[id].Balance
}

func (s *memStore) hasServer(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.servers[id]
	return ok
}

func (s *memStore) transactions(accountID int64, typ model.TransactionType) []model.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Transaction
	for _, t := range s.ledger {
		if t.AccountID == accountID && (typ == "" || t.Type == typ) {
			out = append(out, t)
		}
	}
	return out
}

func (s *memStore) ListServers(ctx context.Context) ([]model.Server, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]model.Server, 0, len(s.servers))
	for _, srv := range s.servers {
		out = append(out, srv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) ListVolumesByServer(ctx context.Context, serverID int64) ([]model.Volume, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Volume
	for _, v := range s.volumes {
		if v.ServerID != nil && *v.ServerID == serverID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) GetAccount(ctx context.Context, accountID int64) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.accountErr[accountID]; err != nil {
		return nil, err
	}
	a, ok := s.accounts[accountID]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) DeleteServer(ctx context.Context, serverID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.deleteErr[serverID]; err != nil {
		return err
	}
	delete(s.servers, serverID)
	return nil
}

func (s *memStore) DeleteVolume(ctx context.Context, volumeID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.volumes, volumeID)
	return nil
}

func (s *memStore) Settle(ctx context.Context, accountID int64, key string, decide DecideFunc) (model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys[key] {
		return model.Transaction{}, ErrAlreadySettled
	}
	a, ok := s.accounts[accountID]
	if !ok {
		return model.Transaction{}, ErrAccountNotFound
	}
	txn, err := decide(a.Balance)
	if err != nil {
		return model.Transaction{}, err
	}
	txn.AccountID = accountID
	txn.IdempotencyKey = key
	a.Balance += txn.Amount
	s.ledger = append(s.ledger, txn)
	s.keys[key] = true
	return txn, nil
}

type memUsage struct {
	samples []model.UsageMetric
	err     error
	queries int
}

func (u *memUsage) QueryUsage(ctx context.Context, serverID int64, from, to time.Time) ([]model.UsageMetric, error) {
	u.queries++
	if u.err != nil {
		return nil, u.err
	}
	var out []model.UsageMetric
	for _, m := range u.samples {
		if m.ServerID == serverID && !m.SampledAt.Before(from) && m.SampledAt.Before(to) {
			out = append(out, m)
		}
	}
	return out, nil
}

type recordingGateway struct {
	mu             sync.Mutex
	computeDeletes map[string]int
	volumeDeletes  map[string]int
	failFor        map[string]error
}

func newRecordingGateway() *recordingGateway {
	return &recordingGateway{
		computeDeletes: map[string]int{},
		volumeDeletes:  map[string]int{},
		failFor:        map[string]error{},
	}
}

func (g *recordingGateway) DeleteCompute(ctx context.Context, providerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.computeDeletes[providerID]++
	return g.failFor[providerID]
}

func (g *recordingGateway) DeleteVolume(ctx context.Context, providerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.volumeDeletes[providerID]++
	return g.failFor[providerID]
}

var errBoom = errors.New("boom")

func testRates() *pricing.Table {
	tbl, err := pricing.New(config.PricingConfig{
		DefaultSize: "s-1vcpu-1gb",
		Sizes: []config.SizeConfig{
			{Slug: "s-1vcpu-1gb", HourlyCents: 100, BandwidthGB: 1000},
			{Slug: "s-4vcpu-8gb", HourlyCents: 700, BandwidthGB: 5000},
		},
		VolumeRatePerGBHour: "0.5",
		OverageRate:         "0.01",
	})
	if err != nil {
		panic(err)
	}
	return tbl
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
