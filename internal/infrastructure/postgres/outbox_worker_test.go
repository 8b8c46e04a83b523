package postgres

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeNextRetry_Bounds(t *testing.T) {
	d0 := computeNextRetry(-1)
	require.GreaterOrEqual(t, d0, 4*time.Second)
	require.LessOrEqual(t, d0, 6*time.Second)

	d10 := computeNextRetry(10)
	require.GreaterOrEqual(t, d10, 900*time.Second)
	require.LessOrEqual(t, d10, 1150*time.Second)

	d20 := computeNextRetry(20)
	require.GreaterOrEqual(t, d20, 1600*time.Second)
	require.LessOrEqual(t, d20, 2000*time.Second)
}

func TestAwaitConfirm(t *testing.T) {
	t.Run("ack", func(t *testing.T) {
		confirms := make(chan amqp.Confirmation, 1)
		returns := make(chan amqp.Return, 1)
		confirms <- amqp.Confirmation{DeliveryTag: 1, Ack: true}
		assert.Empty(t, awaitConfirm(confirms, returns))
	})

	t.Run("nack", func(t *testing.T) {
		confirms := make(chan amqp.Confirmation, 1)
		returns := make(chan amqp.Return, 1)
		confirms <- amqp.Confirmation{DeliveryTag: 7, Ack: false}
		assert.Equal(t, "NACK: delivery_tag=7", awaitConfirm(confirms, returns))
	})

	t.Run("return then ack", func(t *testing.T) {
		confirms := make(chan amqp.Confirmation, 1)
		returns := make(chan amqp.Return, 1)
		returns <- amqp.Return{ReplyCode: 312, ReplyText: "NO_ROUTE", Exchange: "city.events", RoutingKey: "waitlist.joined"}
		go func() {
			time.Sleep(10 * time.Millisecond)
			confirms <- amqp.Confirmation{DeliveryTag: 2, Ack: true}
		}()
		assert.Contains(t, awaitConfirm(confirms, returns), "NO_ROUTE")
	})

	t.Run("timeout", func(t *testing.T) {
		assert.Equal(t, "confirm timeout", awaitConfirm(make(chan amqp.Confirmation), make(chan amqp.Return)))
	})
}

func TestDrainNotifications(t *testing.T) {
	confirms := make(chan amqp.Confirmation, 3)
	returns := make(chan amqp.Return, 3)
	confirms <- amqp.Confirmation{}
	confirms <- amqp.Confirmation{}
	returns <- amqp.Return{}

	drainNotifications(confirms, returns)
	assert.Empty(t, confirms)
	assert.Empty(t, returns)
}
