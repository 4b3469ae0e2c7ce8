package pubsub_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	pub "github.com/JakeFAU/pageview-counter/internal/publisher/pubsub"
)

func TestPublisherPublish(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv := pstest.NewServer()
	defer srv.Close()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)

	topic, err := client.CreateTopic(ctx, "pageview-imports")
	require.NoError(t, err)
	sub, err := client.CreateSubscription(ctx, "sub-id", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	p := pub.New(client)
	id, err := p.Publish(ctx, "pageview-imports", map[string]int{"rows": 2})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	received := make(chan []byte, 1)
	rctx, rcancel := context.WithCancel(ctx)
	go func() {
		_ = sub.Receive(rctx, func(_ context.Context, msg *pubsub.Message) {
			msg.Ack()
			received <- msg.Data
			rcancel()
		})
	}()

	select {
	case data := <-received:
		var body map[string]int
		require.NoError(t, json.Unmarshal(data, &body))
		assert.Equal(t, 2, body["rows"])
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}

	assert.NoError(t, p.Close())
}

func TestPublisherWithoutClient(t *testing.T) {
	p := pub.New(nil)
	_, err := p.Publish(context.Background(), "topic", "payload")
	assert.Error(t, err)
	assert.NoError(t, p.Close())
}

func TestPublisherRejectsUnmarshalablePayload(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)

	p := pub.New(client)
	_, err = p.Publish(ctx, "topic", make(chan int))
	assert.ErrorContains(t, err, "marshal payload")
	assert.NoError(t, p.Close())
}
