// Package worker выполняет ingest-tasks.
//
// # Обзор
//
// Worker — исполняющий компонент системы Ingesta, который обрабатывает
// сообщения о готовности новой партии данных. Worker отвечает за:
//
//   - Потребление сообщений входной очереди (event-driven)
//   - Создание task для каждого сообщения и учёт её в Registry
//   - Проведение task через конвейер обработки артефактов
//   - Ack/nack исходного сообщения по терминальному статусу
//   - Публикацию completion-события для успешных tasks
//
// Пул воркеров фиксированного размера. Размер пула одновременно служит
// prefetch-окном брокера: когда все воркеры заняты, выдача новых
// сообщений блокируется и upstream получает естественный backpressure.
//
// # Ключевые компоненты
//
// ## Worker
//
// Основная структура, управляющая жизненным циклом.
// Создаётся через New(cfg Config) и запускается методом Start(ctx).
//
//	w := worker.New(worker.Config{
//	    Conn:       mqConn,
//	    Publisher:  publisher,
//	    Registry:   reg,
//	    Indexer:    indexer,
//	    Queue:      cfg.Broker.Queue,
//	    Workers:    cfg.Worker.Count,
//	    SourceDir:  cfg.Paths.SourceDir,
//	    StagingDir: cfg.Paths.StagingDir,
//	    Logger:     logger,
//	})
//
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// ## Indexer
//
// Интерфейс внешнего шага индексации:
//
//	type Indexer interface {
//	    Run(ctx context.Context, artifactPath string) error
//	}
//
// Реализация ExecIndexer запускает команду chunk_and_ingest и передаёт
// ей staged-файл, коллекцию и адрес Qdrant.
//
// # Конвейер task
//
//  1. Decode — тело сообщения разбирается в message_data (JSON-объект)
//  2. Load — все *.json файлы исходного каталога читаются по одному,
//     битые пропускаются с предупреждением
//  3. Transform — в каждой записи поле summary переименовывается в text
//  4. Merge + stage — записи объединяются в массив и пишутся в
//     уникально именованный staging-файл
//  5. Index — staged-файл передаётся внешней команде индексации
//  6. Cleanup — после успешной индексации staged-файл удаляется,
//     merged_file очищается; при ошибке файл остаётся для диагностики
//
// Пустая партия — не ошибка: task завершается с file_count = 0.
//
// # Ошибки
//
// Любая ошибка конвейера переводит task в failed и отклоняет сообщение
// без возврата в очередь: повторная доставка детерминированно упавшей
// task бессмысленна, оператор перезапускает её новым сообщением.
// Ошибка публикации completion-события статус task не меняет.
package worker
