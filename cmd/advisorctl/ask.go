package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mohamadbazzy/Agentic-Rag/internal/advisor"
	"github.com/mohamadbazzy/Agentic-Rag/internal/agent"
	"github.com/mohamadbazzy/Agentic-Rag/internal/identity"
)

var (
	askSession  string
	askVerbose  bool
	chatSession string
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the advisor one question",
	Long: `Run one advising turn and print the answer.

Without --session the question is answered without history.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the advisor interactively",
	Long:  `Start an interactive conversation. Type "quit" or "q" to leave and "reset" to start over.`,
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

func init() {
	askCmd.Flags().StringVar(&askSession, "session", "", "conversation id to continue")
	askCmd.Flags().BoolVarP(&askVerbose, "verbose", "v", false, "print department, status and sources")
	chatCmd.Flags().StringVar(&chatSession, "session", "", "conversation id to continue (default: a new one)")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	question := strings.Join(args, " ")
	var res *advisor.Result
	if askSession == "" {
		res, err = a.Advisor.Process(cmd.Context(), question, "")
	} else {
		ctx := identity.WithIdentity(cmd.Context(), cliUser, askSession)
		res, err = a.Agent.Ask(ctx, agent.ChatRequest{Message: question, UserID: cliUser, SessionID: askSession})
	}
	if err != nil {
		return err
	}
	printResult(cmd.OutOrStdout(), res, askVerbose)
	return nil
}

func runChat(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	session := chatSession
	if session == "" {
		session = uuid.NewString()
	}
	return chatLoop(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), a.Agent, session)
}

// chatLoop reads questions line by line until EOF or a quit command.
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, svc *agent.Service, session string) error {
	ctx = identity.WithIdentity(ctx, cliUser, session)
	fmt.Fprintf(out, "MSFEA advisor (session %s). Type \"quit\" to exit.\n", session)

	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\nyou> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "q", "exit":
			return nil
		case "reset":
			if err := svc.ResetSession(ctx, cliUser, session); err != nil {
				return err
			}
			fmt.Fprintln(out, "Conversation cleared.")
			continue
		}

		res, err := svc.Ask(ctx, agent.ChatRequest{Message: line, UserID: cliUser, SessionID: session})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "advisor> %s\n", advisor.ApologyMessage)
			continue
		}
		fmt.Fprint(out, "advisor> ")
		printResult(out, res, false)
	}
}

func printResult(w io.Writer, res *advisor.Result, verbose bool) {
	fmt.Fprintln(w, res.Content)
	if len(res.ScheduleConflicts) > 0 {
		fmt.Fprintln(w, "\nWarning: this schedule has overlapping meetings:")
		for _, c := range res.ScheduleConflicts {
			fmt.Fprintf(w, "  %s: %s (%s) and %s (%s)\n", c.Day, c.First, c.FirstTime, c.Second, c.SecondTime)
		}
	}
	if !verbose {
		return
	}
	fmt.Fprintf(w, "\n[department: %s | status: %s", res.Department, res.Status)
	if res.Track != "" {
		fmt.Fprintf(w, " | track: %s", res.Track)
	}
	if res.QueryType != "" {
		fmt.Fprintf(w, " | query: %s", res.QueryType)
	}
	fmt.Fprintln(w, "]")
	for _, p := range res.Context {
		if p.Source != "" {
			fmt.Fprintf(w, "  source: %s\n", p.Source)
		}
	}
}
