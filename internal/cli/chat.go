package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"arbejdsret/internal/models"
	"arbejdsret/internal/service/assistant"
)

var (
	chatSession string
	chatTopic   string
	chatNew     bool
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Ask the legal assistant",
	Long: `Send a question to the legal chat. Without a message an interactive prompt
is started; type "exit" or press Ctrl-D to leave.

Topics: Generelt, Opsigelse, Overenskomst, GDPR, Ferie.

Examples:
  arbejdsret chat "Hvor lang er opsigelsesvarslet efter 3 års ansættelse?"
  arbejdsret chat --new --topic Ferie
  arbejdsret chat --session 1717171717171 "Og for funktionærer?"`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatSession, "session", "", "Session id (defaults to the active session)")
	chatCmd.Flags().StringVar(&chatTopic, "topic", "", "Topic to focus the assistant on")
	chatCmd.Flags().BoolVar(&chatNew, "new", false, "Start a new session")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := resolveChatSession(ctx, a.service.Chat)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if len(args) > 0 {
		return sendOne(ctx, a.service.Chat, out, id, strings.Join(args, " "))
	}

	se, err := a.service.Chat.Session(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Session %s [%s]\n", se.ID, se.Topic)
	if n := len(se.Messages); n > 0 {
		printReply(out, se.Messages[n-1])
	}
	return chatLoop(ctx, a.service.Chat, cmd.InOrStdin(), out, id)
}

func resolveChatSession(ctx context.Context, chat *assistant.Chat) (string, error) {
	topic := models.Topic(chatTopic)
	if chatNew {
		se, err := chat.NewSession(ctx, topic)
		if err != nil {
			return "", err
		}
		return se.ID, nil
	}
	id := chatSession
	if id == "" {
		id = chat.ActiveID()
	} else if err := chat.Select(id); err != nil {
		return "", err
	}
	if topic != "" {
		if err := chat.SetTopic(ctx, id, topic); err != nil {
			return "", err
		}
	}
	return id, nil
}

func sendOne(ctx context.Context, chat *assistant.Chat, out io.Writer, id, text string) error {
	res, err := chat.Send(ctx, id, text)
	if res != nil {
		printReply(out, res.Reply)
	}
	if err != nil {
		return friendly(err, assistant.ChatFailedMessage)
	}
	return nil
}

func chatLoop(ctx context.Context, chat *assistant.Chat, in io.Reader, out io.Writer, id string) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		fmt.Fprintln(out)
		if err := sendOne(ctx, chat, out, id, line); err != nil {
			// The error notice is already printed when a reply was stored.
			fmt.Fprintf(out, "(%v)\n", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
