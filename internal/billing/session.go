package billing

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-pos/internal/coupon"
	"github.com/noah-isme/backend-pos/internal/customer"
	"github.com/noah-isme/backend-pos/internal/obs"
	"github.com/noah-isme/backend-pos/internal/pricing"
)

// Line is one cart entry. At most one line exists per product id.
type Line struct {
	ProductID string        `json:"productId"`
	Name      string        `json:"name"`
	UnitPrice pricing.Money `json:"unitPrice"`
	Qty       int           `json:"qty"`
	Stock     int           `json:"-"`
}

// LineTotal is the derived unitPrice * qty value.
func (l Line) LineTotal() pricing.Money {
	return pricing.Money(l.Qty) * l.UnitPrice
}

// Session is the mutable state of one cashier transaction. All access goes
// through Service methods, which hold mu. The epoch counter increments on
// every mutation; bill generation uses it to detect that a slow upstream
// response refers to state that has since changed.
type Session struct {
	mu sync.Mutex

	ID         string
	TerminalID string
	epoch      uint64

	Items             []Line
	ManualDiscountBps int
	Coupon            *coupon.Rule
	Customer          *customer.Customer
	Phone             string
	LoyaltyPoints     int
	PaymentMethod     string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *Session) touchLocked(now time.Time) {
	s.epoch++
	s.UpdatedAt = now
}

// resetLocked returns the session to its initial empty form. The epoch keeps
// advancing so in-flight work against the old state stays detectable.
func (s *Session) resetLocked(now time.Time) {
	s.Items = nil
	s.ManualDiscountBps = 0
	s.Coupon = nil
	s.Customer = nil
	s.Phone = ""
	s.LoyaltyPoints = 0
	s.PaymentMethod = ""
	s.touchLocked(now)
}

// Store holds live sessions keyed by id.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore returns an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Create registers a new empty session for the terminal.
func (st *Store) Create(terminalID string) *Session {
	now := time.Now()
	s := &Session{
		ID:         uuid.NewString(),
		TerminalID: terminalID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	if obs.SessionsActive != nil {
		obs.SessionsActive.Inc()
	}
	return s
}

// Get returns the session with the given id.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	return s, ok
}

// Delete removes a session from the store.
func (st *Store) Delete(id string) {
	st.mu.Lock()
	_, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()
	if ok && obs.SessionsActive != nil {
		obs.SessionsActive.Dec()
	}
}

// Len reports the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
