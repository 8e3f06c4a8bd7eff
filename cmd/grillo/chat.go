package main

import (
	"fmt"
	"os"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/grillo/pkg/conversation"
	"github.com/go-go-golems/grillo/pkg/events"
	"github.com/go-go-golems/grillo/pkg/generation"
	"github.com/go-go-golems/grillo/pkg/helpers"
	"github.com/go-go-golems/grillo/pkg/store"
)

const eventsTopic = "grillo.events"

func newChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Run a scripted conversation and stream the assistant reply",
		RunE:  runChat,
	}
	cmd.Flags().String("system", "You are a helpful cricket.", "System prompt")
	cmd.Flags().String("user", "Count to ten for me.", "User message")
	cmd.Flags().Int("tokens", 10, "Number of scripted fragments to generate")
	cmd.Flags().Duration("delay", 50*time.Millisecond, "Delay between generated fragments")
	cmd.Flags().String("save", "", "Save the finished thread to this file (.json or .yaml)")
	cmd.Flags().Bool("echo-events", false, "Print the published events alongside the stream")
	_ = viper.BindPFlags(cmd.Flags())
	return cmd
}

func openStore() (store.RecordStore, func() error, error) {
	path := viper.GetString("store")
	if path == "" {
		return store.NewMemoryStore(), func() error { return nil }, nil
	}
	ps, err := store.OpenPebbleStore(path)
	if err != nil {
		return nil, nil, err
	}
	return ps, ps.Close, nil
}

func flushPolicy() conversation.FlushPolicy {
	return conversation.FlushPolicy{
		MaxTokens:   viper.GetInt("flush-tokens"),
		MaxInterval: viper.GetDuration("flush-interval"),
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rs, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Warn().Err(err).Msg("failed to close store")
		}
	}()

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, helpers.NewWatermill(log.Logger))
	defer func() {
		_ = pubSub.Close()
	}()

	eg, egCtx := errgroup.WithContext(ctx)
	if viper.GetBool("echo-events") {
		messages, err := pubSub.Subscribe(egCtx, eventsTopic)
		if err != nil {
			return errors.Wrap(err, "failed to subscribe to events")
		}
		eg.Go(func() error {
			for msg := range messages {
				e, err := events.NewEventFromJson(msg.Payload)
				if err != nil {
					log.Warn().Err(err).Msg("failed to decode event")
					msg.Ack()
					continue
				}
				fmt.Fprintf(os.Stderr, "[event] %s %s\n", e.Type(), e.Metadata().MessageID)
				msg.Ack()
			}
			return nil
		})
	}

	manager := conversation.NewManager(rs,
		conversation.WithFlushPolicy(flushPolicy()),
		conversation.WithEventSinks(
			events.NewWatermillSink(pubSub, eventsTopic),
		),
		conversation.WithProducer(&generation.Scripted{
			Fragments: generation.Count(viper.GetInt("tokens")).Fragments,
			Interval:  viper.GetDuration("delay"),
		}),
	)

	if _, err := manager.Append(ctx, conversation.AppendOptions{
		Role:    conversation.RoleSystem,
		Content: helpers.Ptr(viper.GetString("system")),
	}); err != nil {
		return err
	}

	if _, err := manager.Append(ctx, conversation.AppendOptions{
		Role:    conversation.RoleUser,
		Content: helpers.Ptr(viper.GetString("user")),
	}); err != nil {
		return err
	}

	reply, err := manager.Append(ctx, conversation.AppendOptions{
		Role: conversation.RoleAssistant,
	})
	if err != nil {
		return err
	}

	fmt.Printf("assistant> ")
	for {
		token, ok := reply.Tokens().Next()
		if !ok {
			break
		}
		fmt.Print(token)
	}
	fmt.Println()

	if err := manager.AwaitIdle(ctx); err != nil {
		return err
	}
	fmt.Printf("status: %s\n", reply.Status())

	if err := pubSub.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close pubsub")
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	if path := viper.GetString("save"); path != "" {
		if err := conversation.SaveThread(manager, path); err != nil {
			return err
		}
		fmt.Printf("saved thread to %s\n", path)
	}
	return nil
}
