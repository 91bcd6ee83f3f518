package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTopic(t *testing.T) {
	cases := []struct {
		in   string
		want Topic
	}{
		{"stream:abc", NewStreamTopic("abc")},
		{"content:artist-1", NewContentTopic("artist-1")},
		{"user:u1", NewUserTopic("u1")},
		{"stream:id:with:colons", Topic{Kind: TopicStream, ID: "id:with:colons"}},
	}
	for _, tc := range cases {
		got, err := ParseTopic(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
		assert.Equal(t, tc.in, got.Key())
	}
}

func TestParseTopicRejectsMalformedInput(t *testing.T) {
	for _, in := range []string{"", "stream", "stream:", "video:abc", ":abc"} {
		_, err := ParseTopic(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestTopicJSONRoundTrip(t *testing.T) {
	msg := SubscribeMessage{Type: MsgTypeSubscribe, Topic: NewStreamTopic("s1")}

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"stream:s1"`)

	var decoded SubscribeMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, msg.Topic, decoded.Topic)
}

func TestTopicUnmarshalRejectsUnknownKind(t *testing.T) {
	var msg SubscribeMessage
	err := json.Unmarshal([]byte(`{"type":"subscribe","topic":"video:s1"}`), &msg)
	assert.Error(t, err)
}

func TestTopicKindValid(t *testing.T) {
	assert.True(t, TopicStream.Valid())
	assert.True(t, TopicContent.Valid())
	assert.True(t, TopicUser.Valid())
	assert.False(t, TopicKind("video").Valid())
	assert.False(t, TopicKind("").Valid())
}
