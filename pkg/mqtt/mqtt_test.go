package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicPrefixing(t *testing.T) {
	client := NewClient(NewClientOptions().SetTopicPrefix("tahoma"))

	assert.Equal(t, "tahoma/units/sh222/primary_position/state", client.GetFullTopic("units/sh222/primary_position/state"))
	assert.Equal(t, "tahoma/server/status", client.ServerStatusTopic())
}

func TestDefaultOptions(t *testing.T) {
	options := NewClientOptions()
	assert.Equal(t, "tahoma", options.TopicPrefix)
	assert.True(t, options.NormalizeDeviceName)
	assert.False(t, options.Retain)
}
