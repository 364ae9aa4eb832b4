// Package scheduler реализует плановый запуск ingest-конвейера.
//
// Scheduler по cron-расписанию публикует во входную очередь
// синтетическое сообщение-триггер. Оно неотличимо от события upstream:
// consumer создаёт обычную task, и партия из исходного каталога
// обрабатывается штатным конвейером.
//
// Использование:
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Publisher: ingestPublisher, // направлен на входную очередь
//	    CronExpr:  cfg.Schedule.Cron,
//	    Logger:    logger,
//	})
//	if err != nil {
//	    return err
//	}
//
//	go sched.Run(ctx) // до отмены контекста
//
// Ошибка публикации тика не фатальна: следующий тик публикует заново.
// Расписание опционально — без SCHEDULE_CRON процесс работает чисто
// event-driven.
package scheduler
