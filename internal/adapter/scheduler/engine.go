package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"jobkeeper/internal/jobs"
	"jobkeeper/internal/shared"
)

// Parser принимает 5 полей (минуты...дни недели), 6 полей с секундами и дескрипторы (@daily, @every 30s).
var Parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

var _ jobs.CronEngine = (*Engine)(nil)

// Config содержит конфигурацию движка.
type Config struct {
	Logger *slog.Logger
	// Location - часовой пояс расписаний (по умолчанию time.Local).
	Location *time.Location
}

// Engine реализует jobs.CronEngine поверх robfig/cron.
type Engine struct {
	cron    *cron.Cron
	logger  *slog.Logger
	running atomic.Bool
	mu      sync.Mutex
}

// New создает движок. Таймеры срабатывают только после Start.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	cl := cronLogger{logger: logger.With("component", "cron")}
	return &Engine{
		cron: cron.New(
			cron.WithParser(Parser),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			// Последний рубеж: паники обработчиков перехватывает уже jobs.Service.
			cron.WithChain(cron.Recover(cl)),
		),
		logger: logger.With("component", "cron"),
	}
}

// Validate проверяет cron-выражение, не регистрируя его.
func (e *Engine) Validate(expr string) error {
	_, err := parse(expr)
	return err
}

// Schedule регистрирует fn по расписанию expr.
func (e *Engine) Schedule(expr string, fn func()) (jobs.Handle, error) {
	sched, err := parse(expr)
	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, shared.Validationf("cron callback is required")
	}

	id := e.cron.Schedule(sched, cron.FuncJob(fn))
	e.logger.Debug("cron entry added", "id", id, "schedule", expr)
	return &entryHandle{engine: e, id: id}, nil
}

// Start запускает планировщик. Повторный вызов ничего не делает.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running.Load() {
		return
	}
	e.cron.Start()
	e.running.Store(true)
	e.logger.Info("cron engine started", "entries", e.Entries())
}

// Stop останавливает планировщик и ждет завершения запущенных задач.
func (e *Engine) Stop() {
	_ = e.StopContext(context.Background())
}

// StopContext останавливает планировщик с учетом контекста дедлайна.
// Новые срабатывания прекращаются сразу; если ctx истекает раньше, чем
// завершатся запущенные задачи, возвращается ошибка контекста.
func (e *Engine) StopContext(ctx context.Context) error {
	e.mu.Lock()
	if !e.running.Load() {
		e.mu.Unlock()
		return nil
	}
	done := e.cron.Stop()
	e.running.Store(false)
	e.mu.Unlock()

	select {
	case <-done.Done():
		e.logger.Info("cron engine stopped")
		return nil
	case <-ctx.Done():
		e.logger.Warn("cron engine stop deadline exceeded, jobs still running")
		return ctx.Err()
	}
}

// IsRunning возвращает true, если движок запущен.
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// Entries возвращает количество зарегистрированных расписаний.
func (e *Engine) Entries() int {
	return len(e.cron.Entries())
}

// entryHandle останавливает одну запись cron; Stop идемпотентен.
type entryHandle struct {
	engine *Engine
	id     cron.EntryID
	once   sync.Once
}

func (h *entryHandle) Stop() {
	h.once.Do(func() {
		h.engine.cron.Remove(h.id)
		h.engine.logger.Debug("cron entry removed", "id", h.id)
	})
}

// Next возвращает время следующего срабатывания; нулевое время, если движок не запущен.
func (h *entryHandle) Next() time.Time {
	return h.engine.cron.Entry(h.id).Next
}

func parse(expr string) (cron.Schedule, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, shared.Validationf("cron expression is required")
	}
	sched, err := Parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid cron expression %q: %v", shared.ErrValidation, expr, err)
	}
	return sched, nil
}
