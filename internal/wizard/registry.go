package wizard

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/quickorder/internal/model"
	"github.com/mmeshcher/quickorder/internal/notify"
	"github.com/mmeshcher/quickorder/internal/payment"
)

const (
	notificationLimit = 50
	sweepInterval     = time.Minute
)

// Dependencies содержит общие зависимости мастеров всех сессий.
type Dependencies struct {
	Catalog   CatalogProvider
	Orders    OrderStore
	Customers CustomerDirectory
	Payments  payment.Provider
	Logger    *zap.Logger
}

// Session связывает мастер с сессией оператора.
type Session struct {
	ID            string
	Controller    *Controller
	Notifications *notify.Recorder

	mu        sync.Mutex
	lastSeen  time.Time
	completed []model.Order
}

// Completed возвращает заказы, оплаченные в этой сессии.
func (s *Session) Completed() []model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Order(nil), s.completed...)
}

func (s *Session) addCompleted(o model.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, o)
}

func (s *Session) touch(t time.Time) {
	s.mu.Lock()
	s.lastSeen = t
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Registry хранит мастера открытых сессий и удаляет неактивные.
type Registry struct {
	deps Dependencies
	ttl  time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry создаёт реестр сессий с указанным временем жизни неактивной сессии.
func NewRegistry(deps Dependencies, ttl time.Duration) *Registry {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Registry{
		deps:     deps,
		ttl:      ttl,
		sessions: make(map[string]*Session),
	}
}

// Start открывает новую сессию для клиента и монтирует её мастер.
func (r *Registry) Start(ctx context.Context, customer *model.Customer) *Session {
	id := uuid.NewString()
	logger := r.deps.Logger.With(zap.String("session", id))
	rec := notify.NewRecorder(notificationLimit)

	s := &Session{
		ID:            id,
		Notifications: rec,
		lastSeen:      now(),
	}
	s.Controller = New(Options{
		Customer:  customer,
		Catalog:   r.deps.Catalog,
		Orders:    r.deps.Orders,
		Customers: r.deps.Customers,
		Payments:  r.deps.Payments,
		Notifier:  notify.Multi{notify.NewLogSink(logger), rec},
		Logger:    logger,
		OnCustomerNeeded: func() {
			rec.Notify(notify.New(notify.SeverityInfo, "Select a customer to continue"))
		},
		OnSuccess: s.addCompleted,
	})
	s.Controller.Mount(ctx)

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	logger.Info("wizard session started")
	return s
}

// Get возвращает сессию и продлевает её жизнь.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()

	if ok {
		s.touch(now())
	}
	return s, ok
}

// Remove закрывает сессию.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Len возвращает число открытых сессий.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep удаляет сессии, неактивные дольше времени жизни, и возвращает их число.
// Сессии с выполняющимися операциями не удаляются.
func (r *Registry) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}
	deadline := now().Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, s := range r.sessions {
		if s.idleSince().Before(deadline) && !s.Controller.Busy() {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// StartSweeper запускает фоновое удаление неактивных сессий.
func (r *Registry) StartSweeper(ctx context.Context) {
	if r.ttl <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.Sweep(); n > 0 {
					r.deps.Logger.Info("wizard sessions expired", zap.Int("count", n))
				}
			}
		}
	}()
}
