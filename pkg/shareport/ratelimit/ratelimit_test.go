package ratelimit_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shareport/shareport/pkg/shareport/ratelimit"
)

func TestAllowWithinBudget(t *testing.T) {
	limiter := ratelimit.New(5)

	for i := 0; i < 5; i++ {
		assert.True(t, limiter.Allow("10.0.0.1"), "request %d should pass", i+1)
	}
	assert.False(t, limiter.Allow("10.0.0.1"), "request over budget should be rejected")
}

func TestKeysAreIndependent(t *testing.T) {
	limiter := ratelimit.New(1)

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))

	// A different caller has its own bucket
	assert.True(t, limiter.Allow("10.0.0.2"))
}

func TestManyKeys(t *testing.T) {
	limiter := ratelimit.New(2)

	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("10.0.%d.%d", i/256, i%256)
		assert.True(t, limiter.Allow(key))
	}
}
