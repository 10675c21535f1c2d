package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerPool(t *testing.T) {
	assert := assert.New(t)

	timer1 := GetTimer(10 * time.Millisecond)
	assert.NotNil(timer1)
	PutTimer(timer1)

	timer2 := GetTimer(20 * time.Millisecond)
	assert.NotNil(timer2)

	select {
	case <-timer2.C:
	case <-time.After(time.Second):
		t.Fatal("pooled timer did not fire")
	}
	PutTimer(timer2)
}

func TestSleep(t *testing.T) {
	assert := assert.New(t)

	assert.True(Sleep(context.Background(), 5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	begin := time.Now()
	assert.False(Sleep(ctx, time.Second))
	assert.Less(time.Since(begin), 500*time.Millisecond)
}
