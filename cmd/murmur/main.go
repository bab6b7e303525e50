// ABOUTME: Interactive CLI chat client for murmur-gateway
// ABOUTME: Sends messages over HTTP and renders the assistant's SSE stream

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/murmur-chat/murmur-gateway/internal/client"
	"github.com/murmur-chat/murmur-gateway/internal/live"
	"github.com/murmur-chat/murmur-gateway/internal/store"
)

func main() {
	server := flag.String("server", "http://localhost:8723", "Gateway server URL")
	conversationID := flag.String("conversation", "", "Conversation ID to resume")
	flag.Parse()

	fmt.Printf("murmur connected to %s\n", *server)
	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *server, *conversationID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

func run(ctx context.Context, server, conversationID string) error {
	c := client.New(server)
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")

		// Read input with context awareness
		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)

		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else {
				if err := scanner.Err(); err != nil {
					errCh <- err
				} else {
					errCh <- io.EOF
				}
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if input == "/quit" || input == "/exit" || input == "/q" {
			return nil
		}

		if input == "/new" {
			conversationID = ""
			fmt.Println("Started a new conversation")
			fmt.Println()
			continue
		}

		if input == "/history" {
			if err := printHistory(ctx, c, conversationID); err != nil {
				fmt.Printf("[error] %v\n", err)
			}
			fmt.Println()
			continue
		}

		if input == "/help" {
			printHelp()
			fmt.Println()
			continue
		}

		newID, err := sendAndStream(ctx, c, conversationID, input)
		if err != nil {
			fmt.Printf("[error] %v\n", err)
		} else {
			conversationID = newID
		}
		fmt.Println()
	}
}

// printHelp displays available commands.
func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /history   Show the conversation history")
	fmt.Println("  /new       Start a new conversation")
	fmt.Println("  /help      Show this help")
	fmt.Println("  /quit      Exit")
}

// sendAndStream submits one message and renders the assistant's reply as it
// streams. Returns the conversation ID for followup turns.
func sendAndStream(ctx context.Context, c *client.Client, conversationID, message string) (string, error) {
	ack, err := c.SendMessage(ctx, conversationID, message)
	if err != nil {
		return conversationID, err
	}

	cyan := color.New(color.FgCyan)
	sawDelta := false
	err = c.StreamEntries(ctx, ack.StreamPath, func(entry *live.Entry) error {
		switch {
		case entry.Delta != "":
			sawDelta = true
			cyan.Print(entry.Delta)
		case entry.Terminal() && !sawDelta:
			// A late subscriber gets only the terminal snapshot
			cyan.Print(entry.Content)
		}
		return nil
	})
	if err != nil {
		return ack.ConversationID, err
	}

	fmt.Println()
	return ack.ConversationID, nil
}

// printHistory fetches and displays the durable conversation history.
func printHistory(ctx context.Context, c *client.Client, conversationID string) error {
	if conversationID == "" {
		fmt.Println("No conversation yet")
		return nil
	}

	conv, err := c.GetConversation(ctx, conversationID)
	if errors.Is(err, client.ErrConversationNotFound) {
		fmt.Println("No history recorded yet")
		return nil
	}
	if err != nil {
		return err
	}

	gray := color.New(color.FgHiBlack)
	cyan := color.New(color.FgCyan)
	for _, msg := range conv.Messages {
		gray.Printf("[%s] ", msg.CreatedAt)
		if msg.Author == store.AuthorAssistant {
			cyan.Printf("%s: ", msg.Author)
		} else {
			fmt.Printf("%s: ", msg.Author)
		}
		fmt.Println(msg.Body)
	}
	return nil
}
