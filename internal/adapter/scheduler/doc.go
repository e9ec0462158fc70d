// Package scheduler реализует jobs.CronEngine поверх github.com/robfig/cron/v3.
//
// Возможности:
//   - 5-польные выражения ("*/5 * * * *"), 6-польные с секундами ("*/10 * * * * *")
//     и дескрипторы ("@daily", "@every 30s")
//   - Часовой пояс расписаний задается через Config.Location
//   - Идемпотентные Start/Stop и остановка с дедлайном (StopContext)
//   - Логирование через slog (component=cron) и перехват паник
//
// Движок не защищает от перекрытий и не пишет историю запусков: это делает
// jobs.Service, который оборачивает каждый обратный вызов.
//
// Пример:
//
//	engine := scheduler.New(scheduler.Config{Logger: logger, Location: loc})
//	svc, _ := jobs.New(jobs.Config{Engine: engine, Configs: store, Executions: store})
//	engine.Start()
//	defer engine.Stop()
package scheduler
