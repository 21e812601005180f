package cli

import (
	"github.com/spf13/cobra"
)

// NewJobCmd создаёт группу команд для просмотра журнала jobs.
func NewJobCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect the agent job journal",
	}

	cmd.AddCommand(
		newJobListCmd(clientFn, outputFn),
		newJobShowCmd(clientFn, outputFn),
	)

	return cmd
}

func newJobListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			jobs, err := client.ListJobs(ListJobsOpts{Limit: limit})
			if err != nil {
				return err
			}

			out.Jobs(jobs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newJobShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show REQUEST_ID",
		Short: "Show job details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			job, err := client.GetJob(args[0])
			if err != nil {
				return err
			}

			out.Job(job)
			return nil
		},
	}
}
