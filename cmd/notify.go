/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/venuely/apiserver/config"
	"github.com/venuely/apiserver/internal/mq"
	"github.com/venuely/apiserver/types"
)

// notifyCmd consumes verification events and logs each code.
var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Consume verification events from the message broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := zerolog.Ctx(cmd.Context())

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return fmt.Errorf("open mq: %w", err)
		}
		if queue == nil {
			return errors.New("MQ_BACKEND is not set, nothing to consume")
		}
		defer queue.Close()

		logger.Info().Str("topic", cfg.MQ.VerificationTopic).Msg("waiting for verification events")
		err = queue.Subscribe(ctx, cfg.MQ.VerificationTopic, handleVerification)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(notifyCmd)
}

func handleVerification(ctx context.Context, msg mq.Message) error {
	var event types.VerificationEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		// Unparsable payloads would be redelivered forever.
		zerolog.Ctx(ctx).Error().Err(err).Str("message_id", msg.ID).Msg("dropping malformed verification event")
		return nil
	}

	zerolog.Ctx(ctx).Info().
		Str("message_id", msg.ID).
		Str("email", event.Email).
		Str("name", event.Name).
		Str("code", event.Code).
		Time("expires_at", event.ExpiresAt).
		Msg("verification code delivered")
	return nil
}
