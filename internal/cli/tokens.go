package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"ragctx/internal/adapter/tokens"
	"ragctx/internal/domain"
)

var tokensEncoding string

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Count, encode and decode tokens",
	Long: `Inspect how text is tokenized. The encoding may be a BPE encoding
(cl100k_base, o200k_base, p50k_base, r50k_base), a model name such as gpt-4,
or one of the vocabulary-free counters "heuristic" and "words".
Text is read from the arguments, or from stdin when none are given.`,
}

var tokensCountCmd = &cobra.Command{
	Use:   "count [text]",
	Short: "Count the tokens in text",
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := textArg(cmd, args)
		if err != nil {
			return err
		}
		n, err := tokens.NewRegistry().Count(text, encodingFlag())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), n)
		return nil
	},
}

var tokensEncodeCmd = &cobra.Command{
	Use:   "encode [text]",
	Short: "Print the token ids of text",
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := textArg(cmd, args)
		if err != nil {
			return err
		}
		enc, err := tokens.NewTiktokenCounter(encodingFlag())
		if err != nil {
			return err
		}
		ids := enc.Encode(text)
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = strconv.Itoa(id)
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(parts, " "))
		return nil
	},
}

var tokensDecodeCmd = &cobra.Command{
	Use:   "decode <id>...",
	Short: "Turn token ids back into text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var ids []int
		for _, arg := range args {
			for _, field := range strings.FieldsFunc(arg, func(r rune) bool { return r == ',' || r == ' ' }) {
				id, err := strconv.Atoi(field)
				if err != nil {
					return fmt.Errorf("invalid token id %q", field)
				}
				ids = append(ids, id)
			}
		}
		enc, err := tokens.NewTiktokenCounter(encodingFlag())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), enc.Decode(ids))
		return nil
	},
}

var tokensMessagesCmd = &cobra.Command{
	Use:   "messages <file.json>",
	Short: "Count the tokens of a chat transcript",
	Long: `Count a JSON array of {"role", "content", "name"} messages the way a
chat completion request is billed, including per-message overhead and reply
priming from the tokens section of the config.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var msgs []domain.Message
		if err := json.Unmarshal(data, &msgs); err != nil {
			return fmt.Errorf("parse %s: %w", args[0], err)
		}
		counter, err := tokens.NewRegistry().Counter(encodingFlag())
		if err != nil {
			return err
		}
		n, err := newMessageCounter(GetConfig(), counter).CountMessages(msgs)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokensCmd)
	tokensCmd.PersistentFlags().StringVarP(&tokensEncoding, "encoding", "e", "", "encoding or model name (default from config)")
	tokensCmd.AddCommand(tokensCountCmd, tokensEncodeCmd, tokensDecodeCmd, tokensMessagesCmd)
}

func encodingFlag() string {
	if tokensEncoding != "" {
		return tokensEncoding
	}
	return GetConfig().Tokens.Encoding
}

func textArg(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", err
	}
	return string(data), nil
}
