package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"paysync-backend/internal/domains/payment/gateway"
	"paysync-backend/internal/domains/payment/model"
)

// =====================================================
// IN-MEMORY STORES (tests and local runs without Postgres)
// =====================================================

type MemoryTransactionStore struct {
	mu     sync.RWMutex
	orders map[string]map[string]model.Transaction
}

func NewMemoryTransactionStore() *MemoryTransactionStore {
	return &MemoryTransactionStore{orders: make(map[string]map[string]model.Transaction)}
}

func (s *MemoryTransactionStore) RecordTransaction(
	ctx context.Context,
	orderID string,
	txnType model.TxnType,
	res *gateway.Resource,
	parentTxnID string,
	opts ...RecordOption,
) (string, error) {
	t, err := toTransaction(orderID, txnType, res, parentTxnID, applyOptions(opts))
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	nodes, ok := s.orders[orderID]
	if !ok {
		nodes = make(map[string]model.Transaction)
		s.orders[orderID] = nodes
	}
	if _, exists := nodes[t.TxnID]; exists {
		return t.TxnID, nil
	}
	if err := checkPlacement(t, func(txnID string) (model.TxnType, bool) {
		p, ok := nodes[txnID]
		return p.TxnType, ok
	}, func() string {
		for id, n := range nodes {
			if n.TxnType == model.TxnTypeCreate {
				return id
			}
		}
		return ""
	}); err != nil {
		return "", err
	}
	nodes[t.TxnID] = *t
	return t.TxnID, nil
}

func (s *MemoryTransactionStore) ListTransactions(ctx context.Context, orderID string, types ...model.TxnType) ([]model.Transaction, error) {
	s.mu.RLock()
	txns := make([]model.Transaction, 0, len(s.orders[orderID]))
	for _, t := range s.orders[orderID] {
		txns = append(txns, cloneTransaction(t))
	}
	s.mu.RUnlock()

	return model.FilterTransactions(model.SortTransactions(txns), types...), nil
}

func (s *MemoryTransactionStore) UpdateParentStatus(ctx context.Context, orderID, txnID, status string, modifiedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.orders[orderID][txnID]
	if !ok {
		return model.ErrTransactionNotFound
	}
	t.PaymentStatus = status
	t.LastModified = modifiedAt
	s.orders[orderID][txnID] = t
	return nil
}

func (s *MemoryTransactionStore) OrderIDFor(ctx context.Context, txnID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for orderID, nodes := range s.orders {
		if _, ok := nodes[txnID]; ok {
			return orderID, nil
		}
	}
	return "", model.ErrTransactionNotFound
}

func (s *MemoryTransactionStore) GetTransaction(ctx context.Context, orderID, txnID string) (*model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.orders[orderID][txnID]
	if !ok {
		return nil, model.ErrTransactionNotFound
	}
	c := cloneTransaction(t)
	return &c, nil
}

func (s *MemoryTransactionStore) RootTransaction(ctx context.Context, orderID string) (*model.Transaction, error) {
	txns, _ := s.ListTransactions(ctx, orderID, model.TxnTypeCreate)
	if len(txns) == 0 {
		return nil, model.ErrRootNotFound
	}
	return &txns[0], nil
}

func (s *MemoryTransactionStore) ListOrdersWithOpenAuthorizations(ctx context.Context, createdBefore time.Time, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for orderID, nodes := range s.orders {
		for _, t := range nodes {
			if t.TxnType != model.TxnTypeAuthorize || !isOpenAuthorization(t.PaymentStatus) || !t.CreatedAt.Before(createdBefore) {
				continue
			}
			if p, ok := nodes[t.Parent()]; ok && p.TxnType == model.TxnTypeCreate {
				out = append(out, orderID)
				break
			}
		}
	}
	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneTransaction(t model.Transaction) model.Transaction {
	if t.Memo != nil {
		memo := make(model.Memo, len(t.Memo))
		for k, v := range t.Memo {
			memo[k] = v
		}
		t.Memo = memo
	}
	if t.ParentTxnID != nil {
		p := *t.ParentTxnID
		t.ParentTxnID = &p
	}
	return t
}

// -----------------------------------------------------

type MemoryWebhookRepository struct {
	mu     sync.Mutex
	events []*model.WebhookEvent
}

func NewMemoryWebhookRepository() *MemoryWebhookRepository {
	return &MemoryWebhookRepository{}
}

func (r *MemoryWebhookRepository) Save(ctx context.Context, event *model.WebhookEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *event
	r.events = append(r.events, &copied)
	return nil
}

func (r *MemoryWebhookRepository) ListRecent(ctx context.Context, eventType string, limit int) ([]*model.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.WebhookEvent{}
	for i := len(r.events) - 1; i >= 0; i-- {
		if eventType != "" && r.events[i].EventType != eventType {
			continue
		}
		copied := *r.events[i]
		out = append(out, &copied)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// -----------------------------------------------------

type MemoryOrderStateRepository struct {
	mu      sync.Mutex
	status  map[string]string
	history map[string][]*model.OrderStatusHistory
	now     func() time.Time
}

func NewMemoryOrderStateRepository() *MemoryOrderStateRepository {
	return &MemoryOrderStateRepository{
		status:  make(map[string]string),
		history: make(map[string][]*model.OrderStatusHistory),
		now:     time.Now,
	}
}

func (r *MemoryOrderStateRepository) GetStatus(ctx context.Context, orderID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status[orderID], nil
}

func (r *MemoryOrderStateRepository) SetStatus(ctx context.Context, orderID, status, changedBy, notes string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendLocked(orderID, status, changedBy, notes)
	r.status[orderID] = status
	return nil
}

func (r *MemoryOrderStateRepository) AddNote(ctx context.Context, orderID, changedBy, notes string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendLocked(orderID, r.status[orderID], changedBy, notes)
	return nil
}

func (r *MemoryOrderStateRepository) ListHistory(ctx context.Context, orderID string) ([]*model.OrderStatusHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.OrderStatusHistory, len(r.history[orderID]))
	copy(out, r.history[orderID])
	return out, nil
}

func (r *MemoryOrderStateRepository) appendLocked(orderID, to, changedBy, notes string) {
	h := &model.OrderStatusHistory{
		ID:        uuid.New(),
		OrderID:   orderID,
		ToStatus:  to,
		Notes:     notes,
		ChangedAt: r.now().UTC(),
	}
	if from, ok := r.status[orderID]; ok && from != "" {
		h.FromStatus = &from
	}
	if changedBy != "" {
		h.ChangedBy = &changedBy
	}
	r.history[orderID] = append(r.history[orderID], h)
}
