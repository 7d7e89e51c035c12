// Package notify содержит приёмники уведомлений, показываемых оператору.
package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Severity описывает важность уведомления.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification описывает одно всплывающее уведомление.
type Notification struct {
	Message  string    `json:"message"`
	Severity Severity  `json:"severity"`
	At       time.Time `json:"at"`
}

// Sink принимает уведомления. Результат доставки отправителю не сообщается.
type Sink interface {
	Notify(n Notification)
}

// New создаёт уведомление с текущим временем.
func New(severity Severity, message string) Notification {
	return Notification{
		Message:  message,
		Severity: severity,
		At:       time.Now(),
	}
}

// LogSink пишет уведомления в журнал.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink создаёт приёмник, пишущий уведомления в указанный журнал.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Notify записывает уведомление в журнал с уровнем, соответствующим важности.
func (s *LogSink) Notify(n Notification) {
	fields := []zap.Field{zap.String("severity", string(n.Severity))}
	switch n.Severity {
	case SeverityError:
		s.logger.Error(n.Message, fields...)
	case SeverityWarning:
		s.logger.Warn(n.Message, fields...)
	default:
		s.logger.Info(n.Message, fields...)
	}
}

// Recorder хранит последние уведомления до тех пор, пока их не заберут.
type Recorder struct {
	mu    sync.Mutex
	limit int
	items []Notification
}

// NewRecorder создаёт хранилище не более чем на limit уведомлений.
func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = 50
	}
	return &Recorder{limit: limit}
}

// Notify сохраняет уведомление, вытесняя самое старое при переполнении.
func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = append(r.items, n)
	if len(r.items) > r.limit {
		r.items = r.items[len(r.items)-r.limit:]
	}
}

// Peek возвращает копию накопленных уведомлений.
func (r *Recorder) Peek() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := make([]Notification, len(r.items))
	copy(res, r.items)
	return res
}

// Drain возвращает накопленные уведомления и очищает хранилище.
func (r *Recorder) Drain() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := r.items
	r.items = nil
	if res == nil {
		res = []Notification{}
	}
	return res
}

// Multi рассылает уведомление всем приёмникам по очереди.
type Multi []Sink

// Notify передаёт уведомление каждому непустому приёмнику.
func (m Multi) Notify(n Notification) {
	for _, s := range m {
		if s != nil {
			s.Notify(n)
		}
	}
}
