package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"taskpool/internal/eventbus"
	logx "taskpool/pkg/logx"
)

func newConsoleCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Interactive session: run verbs against one long-lived scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			// Bridge lifecycle events into the log while the session lives.
			unsub := app.Scheduler().Events().Notify(func(e eventbus.Event) {
				if e.Task == nil || e.Kind == eventbus.KindProgress {
					return
				}
				app.Logger().Debug("task event",
					logx.String("task", e.Task.ID),
					logx.String("kind", string(e.Kind)),
				)
			})
			defer unsub()

			go app.watchConfig(ctx)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "taskpool console - type a verb ('get', 'start ...'), 'help' or 'exit'")

			sc := bufio.NewScanner(os.Stdin)
			sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for {
				fmt.Fprint(out, "taskpool> ")
				if !sc.Scan() {
					return sc.Err()
				}
				select {
				case <-ctx.Done():
					return nil
				default:
				}

				line := strings.TrimSpace(sc.Text())
				if line == "" {
					continue
				}
				if line == "exit" || line == "quit" {
					return nil
				}

				argv, err := splitLine(line)
				if err != nil {
					fmt.Fprintf(out, "error: %v\n", err)
					continue
				}

				// A fresh command tree per line: cobra flag state must not
				// leak between invocations.
				verb := NewRootCommand(ctx, app)
				verb.SetArgs(argv)
				if err := verb.ExecuteContext(ctx); err != nil {
					fmt.Fprintf(out, "error: %v\n", err)
				}
			}
		},
	}
}

// splitLine splits a console line into argv honoring single and double quotes.
func splitLine(line string) ([]string, error) {
	var (
		argv  []string
		cur   strings.Builder
		quote byte
		has   bool
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				cur.WriteByte(c)
			}
		case c == '\'' || c == '"':
			quote = c
			has = true
		case c == ' ' || c == '\t':
			if has || cur.Len() > 0 {
				argv = append(argv, cur.String())
				cur.Reset()
				has = false
			}
		default:
			cur.WriteByte(c)
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote")
	}
	if has || cur.Len() > 0 {
		argv = append(argv, cur.String())
	}
	return argv, nil
}
