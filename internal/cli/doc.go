// Package cli реализует инструмент командной строки Ingesta.
//
// # Обзор
//
// CLI — клиентская утилита для наблюдения за сервисом ingest.
// Работает через HTTP, не импортирует внутренние пакеты сервиса.
// Все команды read-only: состояние задач меняет только воркер.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Ingesta API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (dataResponse, listResponse, errorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8200")
//	tasks, err := client.ListTasks(cli.ListTasksOpts{Status: "failed"})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (с отступами) — с флагом --json
//
// Данные выводятся в stdout, что позволяет использовать pipe:
// ingesta task list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - task: list, show
//   - health
//
// Каждая группа создаётся через фабричную функцию (NewTaskCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
