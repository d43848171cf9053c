package queue

import (
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
)

func TestToAsynqOptions(t *testing.T) {
	assert.Empty(t, toAsynqOptions(EnqueueOption{}))

	opts := toAsynqOptions(EnqueueOption{
		Queue:     "notifications",
		TaskID:    "abc",
		MaxRetry:  5,
		Retention: time.Hour,
	})
	assert.Len(t, opts, 4)

	var types []asynq.OptionType
	for _, o := range opts {
		types = append(types, o.Type())
	}
	assert.ElementsMatch(t, []asynq.OptionType{asynq.QueueOpt, asynq.TaskIDOpt, asynq.MaxRetryOpt, asynq.RetentionOpt}, types)
}

func TestNewAsynqClientRequiresURL(t *testing.T) {
	_, err := NewAsynqClient("")
	assert.Error(t, err)

	_, err = NewAsynqServer("", "notifications", 1, nil)
	assert.Error(t, err)
}
