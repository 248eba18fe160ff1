package notifications

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedHub_TopicSubscriptions(t *testing.T) {
	hub := NewFeedHub()
	global, err := hub.Register(1, nil)
	require.NoError(t, err)
	watcher, err := hub.Register(2, nil)
	require.NoError(t, err)

	hub.Subscribe(global, "posts")
	hub.Subscribe(watcher, "post:42")

	assert.Equal(t, 1, hub.SubscriberCount("posts"))
	assert.Equal(t, 1, hub.SubscriberCount("post:42"))

	hub.Broadcast("post:42", FeedEvent{Type: "new-comment", PostID: 42})

	select {
	case raw := <-watcher.Send:
		var event FeedEvent
		require.NoError(t, json.Unmarshal(raw, &event))
		assert.Equal(t, "new-comment", event.Type)
		assert.Equal(t, uint(42), event.PostID)
	default:
		t.Fatal("post watcher did not receive the event")
	}

	select {
	case <-global.Send:
		t.Fatal("global subscriber received a per-post event")
	default:
	}
}

func TestFeedHub_MultiTopicClient(t *testing.T) {
	hub := NewFeedHub()
	c, err := hub.Register(1, nil)
	require.NoError(t, err)

	hub.Subscribe(c, "posts")
	hub.Subscribe(c, "post:1")
	hub.Subscribe(c, "post:2")

	hub.Unsubscribe(c, "post:1")
	assert.Equal(t, 0, hub.SubscriberCount("post:1"))
	assert.Equal(t, 1, hub.SubscriberCount("post:2"))

	// Unregistering clears everything
	hub.UnregisterClient(c)
	assert.Equal(t, 0, hub.SubscriberCount("posts"))
	assert.Equal(t, 0, hub.SubscriberCount("post:2"))
}

func TestFeedHub_BroadcastToEmptyTopic(t *testing.T) {
	hub := NewFeedHub()
	// No subscribers; must not panic
	hub.Broadcast("posts", FeedEvent{Type: "new-post", PostID: 1})
}
