// Package kitchen renders preparation tickets for a kitchen or bar display.
package kitchen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cantina-pos/internal/logger"
	"cantina-pos/internal/messaging"
	"cantina-pos/internal/models"
)

// Subscriber consumes preparation tickets and prints them
type Subscriber struct {
	consumer *messaging.Consumer
	logger   *logger.Logger

	done chan bool
}

// NewSubscriber creates a new kitchen display subscriber
func NewSubscriber(consumer *messaging.Consumer, log *logger.Logger) *Subscriber {
	return &Subscriber{
		consumer: consumer,
		logger:   log,
		done:     make(chan bool, 1),
	}
}

// Start starts consuming tickets until the context is cancelled
func (s *Subscriber) Start(ctx context.Context) error {
	requestID := logger.GenerateRequestID()

	go func() {
		if err := s.consumer.StartConsuming(ctx, s.handleTicket); err != nil && ctx.Err() == nil {
			s.logger.Error("consumer_failed", "Ticket consumer failed", requestID, err, nil)
		}
		s.done <- true
	}()

	s.logger.Info("service_started", "Kitchen display started", requestID, nil)

	select {
	case <-ctx.Done():
		s.consumer.Close()
		return nil
	case <-s.done:
		return nil
	}
}

// handleTicket processes one preparation ticket
func (s *Subscriber) handleTicket(ctx context.Context, body []byte) error {
	requestID := logger.GenerateRequestID()

	var ticket models.PrepTicket
	if err := json.Unmarshal(body, &ticket); err != nil {
		s.logger.Error("message_parsing_failed", "Failed to parse prep ticket", requestID, err, nil)
		return fmt.Errorf("failed to parse ticket: %w", err)
	}

	fmt.Println(FormatTicket(&ticket))

	s.logger.Info("ticket_displayed", fmt.Sprintf("Displayed ticket for order %d", ticket.OrderNumber), requestID, map[string]interface{}{
		"order_number": ticket.OrderNumber,
		"occupant":     ticket.Occupant,
		"station":      ticket.Station,
		"item_count":   len(ticket.Items),
	})

	return nil
}

// FormatTicket renders a ticket as the text block shown on the display
func FormatTicket(ticket *models.PrepTicket) string {
	var b strings.Builder

	fmt.Fprintf(&b, "== ORDER %d | %s | %s ==\n", ticket.OrderNumber, ticket.Occupant, strings.ToUpper(ticket.Station))
	for _, item := range ticket.Items {
		fmt.Fprintf(&b, "  %dx %s (%d min)", item.Quantity, item.Name, item.PrepMinutes)
		if item.Notes != nil && *item.Notes != "" {
			fmt.Fprintf(&b, " -- %s", *item.Notes)
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}
