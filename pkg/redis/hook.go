package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/kitchenstock-backend/pkg/logger"
)

// slowCommandHook warns about commands slower than threshold. Lock and
// replay lookups sit on the order path, so latency here shows up at the till.
type slowCommandHook struct {
	logg      *logger.Logger
	threshold time.Duration
}

func (h slowCommandHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h slowCommandHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.observe(ctx, cmd.Name(), time.Since(start), err)
		return err
	}
}

func (h slowCommandHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		h.observe(ctx, "pipeline", time.Since(start), err)
		return err
	}
}

func (h slowCommandHook) observe(ctx context.Context, name string, elapsed time.Duration, err error) {
	if h.logg == nil || h.threshold <= 0 || elapsed <= h.threshold {
		return
	}
	fields := map[string]any{"command": name, "duration_ms": elapsed.Milliseconds()}
	if err != nil && err != redis.Nil {
		fields["error"] = err.Error()
	}
	h.logg.Warn(h.logg.WithFields(ctx, fields), "slow redis command")
}

var _ redis.Hook = slowCommandHook{}
