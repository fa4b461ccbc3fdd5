package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookline/task-service/internal/envelope"
)

func TestRouteTableResolve(t *testing.T) {
	table := NewRouteTable([]Route{
		{Keyword: "email", Queue: "notification"},
		{Keyword: "webhook", Queue: "webhook"},
		{Keyword: "payment", Queue: "payment"},
	})

	tests := []struct {
		name      string
		taskName  string
		queueType envelope.QueueType
		expected  string
	}{
		{"keyword match", "send_email_confirmation", envelope.QueueSync, "notification"},
		{"case insensitive", "Send_Email", envelope.QueueSync, "notification"},
		{"first rule wins", "email_webhook_bridge", envelope.QueuePayment, "notification"},
		{"later rule", "charge_payment_intent", envelope.QueueSync, "payment"},
		{"fallback to queue type", "generate_invoice_pdf", envelope.QueueExport, "export"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, table.Resolve(tt.taskName, tt.queueType))
		})
	}
}

func TestRouteTableEmptyFallsBack(t *testing.T) {
	table := NewRouteTable(nil)
	assert.Equal(t, "webhook", table.Resolve("anything", envelope.QueueWebhook))
}

func TestParseRoutes(t *testing.T) {
	rules, err := ParseRoutes([]string{"email=notification", "sync=sync"})
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, Route{Keyword: "email", Queue: "notification"}, rules[0])

	_, err = ParseRoutes([]string{"no-separator"})
	assert.Error(t, err)

	_, err = ParseRoutes([]string{"=queue"})
	assert.Error(t, err)

	_, err = ParseRoutes([]string{"keyword="})
	assert.Error(t, err)
}
