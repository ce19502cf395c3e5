package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"ragctx/internal/domain"
	"ragctx/internal/usecase"
)

var askJSON bool

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the indexed passages",
	Long: `Retrieve passages for the question, assemble a prompt under the token
budget and send it to the configured chat model. Answers are served from the
semantic cache when caching is enabled and a close enough question was asked
before.

Examples:
  ragctx ask "how hot should green tea be"
  ragctx ask "how hot should green tea be" --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask follow-up questions in one conversation",
	Long: `Read questions from stdin, one per line. Earlier questions and answers
are kept in the conversation and the oldest turns are dropped when the
conversation no longer fits the token budget.

Type /reset to forget the conversation and /exit to quit.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output answer and prompt diagnostics as JSON")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()
	out := cmd.OutOrStdout()

	p, err := newPipeline(ctx, cfg, GetRootDir())
	if err != nil {
		return err
	}
	defer p.Close()

	ask, err := p.askUseCase(ctx, cfg, log)
	if err != nil {
		return err
	}

	answer, err := ask.Ask(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}

	if askJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(answer)
	}
	printAnswer(out, answer)
	return nil
}

func printAnswer(out io.Writer, answer domain.Answer) {
	fmt.Fprintln(out, answer.Text)
	if len(answer.Prompt.Passages) > 0 {
		fmt.Fprintln(out, "\nSources:")
		for _, p := range answer.Prompt.Passages {
			fmt.Fprintf(out, "  - %s\n", p.SourceID)
		}
	}
	if answer.Cached {
		fmt.Fprintln(out, "\n(cached)")
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()
	out := cmd.OutOrStdout()

	p, err := newPipeline(ctx, cfg, GetRootDir())
	if err != nil {
		return err
	}
	defer p.Close()

	ask, err := p.askUseCase(ctx, cfg, log)
	if err != nil {
		return err
	}
	session := usecase.NewChatSession(ask, newMessageCounter(cfg, p.counter))

	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case "/exit", "/quit":
			return nil
		case "/reset":
			session.Reset()
			fmt.Fprintln(out, "conversation cleared")
		default:
			answer, err := session.Send(ctx, line)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Error("question failed", "error", err)
				break
			}
			printAnswer(out, answer)
		}
		fmt.Fprint(out, "\n> ")
	}
	return scanner.Err()
}
