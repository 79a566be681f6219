package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	urfave "github.com/urfave/cli/v2"
)

// JobsCommand builds the `jobs` command tree. factory is called once per
// invocation so tests can inject fakes.
func JobsCommand(factory func(redisAddr string) *JobsCLI) *urfave.Command {
	if factory == nil {
		factory = NewJobsCLI
	}
	redisFlag := &urfave.StringFlag{
		Name:    "redis-addr",
		Usage:   "Redis address of the job queue",
		Value:   "localhost:6379",
		EnvVars: []string{"REDIS_ADDR"},
	}
	jsonFlag := &urfave.BoolFlag{Name: "json", Usage: "Print JSON instead of text"}

	withJobs := func(fn func(c *urfave.Context, jobs *JobsCLI) error) urfave.ActionFunc {
		return func(c *urfave.Context) error {
			jobs := factory(c.String("redis-addr"))
			defer func() { _ = jobs.Close() }()
			return fn(c, jobs)
		}
	}

	return &urfave.Command{
		Name:  "jobs",
		Usage: "Trigger and inspect background jobs",
		Subcommands: []*urfave.Command{
			{
				Name:      "trigger",
				Usage:     "Enqueue a job now (" + strings.Join(JobNames(), ", ") + ")",
				ArgsUsage: "<job>",
				Flags: []urfave.Flag{
					redisFlag,
					&urfave.DurationFlag{Name: "timeout", Usage: "Warm-up timeout"},
					&urfave.DurationFlag{Name: "retain", Usage: "Idempotency key retention for cleanup"},
				},
				Action: withJobs(func(c *urfave.Context, jobs *JobsCLI) error {
					name := strings.TrimSpace(c.Args().First())
					if name == "" {
						return urfave.Exit("jobs trigger: job name is required", 1)
					}
					info, err := jobs.Trigger(c.Context, name, TriggerOptions{
						Timeout: c.Duration("timeout"),
						Retain:  c.Duration("retain"),
					})
					if err != nil {
						return urfave.Exit(err.Error(), 1)
					}
					_, _ = fmt.Fprintf(c.App.Writer, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
					return nil
				}),
			},
			{
				Name:  "stats",
				Usage: "Show queue counters",
				Flags: []urfave.Flag{redisFlag, jsonFlag},
				Action: withJobs(func(c *urfave.Context, jobs *JobsCLI) error {
					stats, err := jobs.InspectQueue(c.Context)
					if err != nil {
						return urfave.Exit(err.Error(), 1)
					}
					if c.Bool("json") {
						return json.NewEncoder(c.App.Writer).Encode(stats)
					}
					renderStats(c.App.Writer, stats)
					return nil
				}),
			},
			{
				Name:  "scheduled",
				Usage: "List scheduled tasks",
				Flags: []urfave.Flag{redisFlag, &urfave.IntFlag{Name: "size", Value: 10}},
				Action: withJobs(func(c *urfave.Context, jobs *JobsCLI) error {
					tasks, err := jobs.ListScheduled(c.Context, c.Int("size"))
					if err != nil {
						return urfave.Exit(err.Error(), 1)
					}
					for _, task := range tasks {
						_, _ = fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\n", task.ID, task.Type, task.NextProcessAt.Format(time.RFC3339))
					}
					return nil
				}),
			},
		},
	}
}

func renderStats(out io.Writer, stats QueueStats) {
	_, _ = fmt.Fprintf(out, "queue %s: pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
		stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
}
