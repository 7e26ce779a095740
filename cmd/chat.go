package cmd

import (
	"bufio"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inkwell-ai/inkwell/backend/chat"
	"github.com/inkwell-ai/inkwell/backend/model"
	"github.com/inkwell-ai/inkwell/backend/progress"
	"github.com/inkwell-ai/inkwell/backend/prompt"
	"github.com/inkwell-ai/inkwell/client"
)

type chatOptions struct {
	Server string
	Model  string
	Tool   string
	Notes  string
}

func NewChatCmd() *cobra.Command {
	options := chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant from the terminal",
		Long: `Opens an interactive session against a running server. Each line is
sent as a user turn; the assistant's response streams back as it is
generated. An empty line or EOF ends the session.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !model.IsValidModel(options.Model) {
				return fmt.Errorf("invalid model %q", options.Model)
			}

			tracker := progress.NewTracker(progress.WithUpdateFunc(func(state progress.State) {
				slog.Debug("tool progress",
					"tool", state.Tool, "status", string(state.Status), "percentage", state.Percentage)
			}))
			chatClient := client.New(options.Server, client.WithTracker(tracker))

			stdout := cmd.OutOrStdout()
			var transcript []prompt.TranscriptMessage

			scanner := bufio.NewScanner(cmd.InOrStdin())
			fmt.Fprint(stdout, "> ")
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					break
				}

				transcript = append(transcript, prompt.TranscriptMessage{Role: "user", Content: line})

				var response strings.Builder
				err := chatClient.Chat(cmd.Context(), client.ChatRequest{
					Tool:     options.Tool,
					Messages: transcript,
					Model:    options.Model,
					Notes:    options.Notes,
				}, client.Handlers{
					OnText: func(delta string) {
						response.WriteString(delta)
						fmt.Fprint(stdout, delta)
					},
					OnToolCall: func(call chat.ToolCallFrame) {
						fmt.Fprintf(stdout, "[running %s]\n", call.ToolName)
					},
					OnFinish: func(finish chat.FinishFrame) {
						fmt.Fprintf(stdout, "\n(%d prompt + %d completion tokens)\n",
							finish.Usage.PromptTokens, finish.Usage.CompletionTokens)
					},
				})
				if err != nil {
					fmt.Fprintf(stdout, "error: %v\n", err)
					// Drop the failed turn so a retype starts clean.
					transcript = transcript[:len(transcript)-1]
				} else {
					transcript = append(transcript, prompt.TranscriptMessage{Role: "assistant", Content: response.String()})
				}

				fmt.Fprint(stdout, "> ")
			}

			return scanner.Err()
		},
	}

	cmd.Flags().StringVar(&options.Server, "server", "http://localhost:8080", "base URL of the inkwell server")
	cmd.Flags().StringVar(&options.Model, "model", "openai", "model to chat with")
	cmd.Flags().StringVar(&options.Tool, "tool", "none", "tool to make available for this session")
	cmd.Flags().StringVar(&options.Notes, "notes", "", "notes content made available to the notes tool")

	return cmd
}
