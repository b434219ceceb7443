package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"iot-notification-service/internal/infrastructure/client"
	"iot-notification-service/internal/port/inbound"
)

const defaultServiceURL = "http://localhost:3003"

func newPublishCommand() *cobra.Command {
	var serviceURL string

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish an event through a running service",
	}
	cmd.PersistentFlags().StringVar(&serviceURL, "url", defaultServiceURL, "base URL of the notification service")

	cmd.AddCommand(
		newPublishDeviceCommand(&serviceURL),
		newPublishNotificationCommand(&serviceURL),
	)
	return cmd
}

func newPublishDeviceCommand(serviceURL *string) *cobra.Command {
	var eventType, deviceID, data string

	cmd := &cobra.Command{
		Use:   "device",
		Short: "Publish a device event",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := jsonFlag("data", data)
			if err != nil {
				return err
			}
			err = client.New(*serviceURL).PublishDeviceEvent(cmd.Context(), inbound.PublishDeviceEventCommand{
				Type:     eventType,
				DeviceID: deviceID,
				Data:     raw,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Event published")
			return nil
		},
	}
	cmd.Flags().StringVar(&eventType, "type", "", "event type, e.g. status_change")
	cmd.Flags().StringVar(&deviceID, "device-id", "", "device identifier")
	cmd.Flags().StringVar(&data, "data", "", "event data as a JSON object")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("device-id")
	return cmd
}

func newPublishNotificationCommand(serviceURL *string) *cobra.Command {
	var notificationType, message, data string

	cmd := &cobra.Command{
		Use:   "notification",
		Short: "Publish a notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := jsonFlag("data", data)
			if err != nil {
				return err
			}
			err = client.New(*serviceURL).PublishNotification(cmd.Context(), inbound.PublishNotificationCommand{
				Type:    notificationType,
				Message: message,
				Data:    raw,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Notification sent")
			return nil
		},
	}
	cmd.Flags().StringVar(&notificationType, "type", "", "notification type, e.g. alert")
	cmd.Flags().StringVar(&message, "message", "", "notification text")
	cmd.Flags().StringVar(&data, "data", "", "optional data as JSON")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

// jsonFlag returns nil for an empty value so the service applies its default.
func jsonFlag(name, value string) (json.RawMessage, error) {
	if value == "" {
		return nil, nil
	}
	if !json.Valid([]byte(value)) {
		return nil, errors.New("--" + name + " must be valid JSON")
	}
	return json.RawMessage(value), nil
}
