package rabbitmq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPublishBackoff_UsesConfiguredMultiplier(t *testing.T) {
	c := &Client{config: &Config{
		PublishRetryDelay:  100 * time.Millisecond,
		PublishBackoffMult: 3,
	}}

	assert.Equal(t, 100*time.Millisecond, c.publishBackoff(0))
	assert.Equal(t, 300*time.Millisecond, c.publishBackoff(1))
	assert.Equal(t, 900*time.Millisecond, c.publishBackoff(2))
}

func TestPublishBackoff_Defaults(t *testing.T) {
	c := &Client{config: &Config{}}

	assert.Equal(t, 100*time.Millisecond, c.publishBackoff(0))
	assert.Equal(t, 200*time.Millisecond, c.publishBackoff(1))
	assert.Equal(t, 400*time.Millisecond, c.publishBackoff(2))
}
