package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-go-golems/grillo/pkg/conversation"
	"github.com/go-go-golems/grillo/pkg/store"
)

func newReplayCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <thread-file>",
		Short: "Load a saved thread file and print the conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := conversation.LoadThread(cmd.Context(), store.NewMemoryStore(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("conversation %s\n", manager.ConversationID())
			for _, msg := range manager.Tree().LeftmostThread(manager.Tree().RootID()) {
				content, _ := msg.Content()
				fmt.Printf("%s> %s", msg.Role(), content)
				if status := msg.Status(); status != conversation.StatusNone {
					fmt.Printf("  [%s]", status)
				}
				fmt.Println()
			}
			return nil
		},
	}
}
