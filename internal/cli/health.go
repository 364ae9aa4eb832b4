package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewHealthCmd создаёт команду проверки состояния сервиса.
func NewHealthCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show service health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			health, err := client.Health()
			if err != nil {
				return err
			}

			out.Print(
				[]string{"STATUS", "SERVICE", "RABBITMQ", "TASKS_TOTAL", "TASKS_RUNNING"},
				[][]string{{
					health.Status,
					health.Service,
					strconv.FormatBool(health.RabbitMQConnected),
					strconv.Itoa(health.TasksTotal),
					strconv.Itoa(health.TasksRunning),
				}},
				health,
			)
			return nil
		},
	}
}
