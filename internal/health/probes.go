package health

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/uptrace/bun"
)

// Pinger is any payment-provider client that can be poked for connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseProbe pings the ledger's backing store.
func DatabaseProbe(db *bun.DB, timeout time.Duration) Probe {
	return Probe{
		Name:    "database",
		Timeout: timeout,
		Check: func(ctx context.Context) error {
			return db.PingContext(ctx)
		},
	}
}

// RedisProbe pings the order-number sequencer's store.
func RedisProbe(client *redis.Client, timeout time.Duration) Probe {
	return Probe{
		Name:    "redis",
		Timeout: timeout,
		Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	}
}

// PaymentProviderProbe checks connectivity to the payment API.
func PaymentProviderProbe(client Pinger, timeout time.Duration) Probe {
	return Probe{
		Name:    "payment_provider",
		Timeout: timeout,
		Check:   client.Ping,
	}
}

// MemoryProbe grades process-host memory pressure. Advisory only: a warning
// or critical level is reported but never flips readiness by itself.
func MemoryProbe(timeout time.Duration, warnPercent, critPercent float64) Probe {
	return Probe{
		Name:     "memory",
		Timeout:  timeout,
		Advisory: true,
		Grade: func(ctx context.Context) (Level, string, error) {
			stat, err := mem.VirtualMemoryWithContext(ctx)
			if err != nil {
				return LevelCritical, "", err
			}
			detail := fmt.Sprintf("%.1f%% used", stat.UsedPercent)
			switch {
			case stat.UsedPercent >= critPercent:
				return LevelCritical, detail, nil
			case stat.UsedPercent >= warnPercent:
				return LevelWarning, detail, nil
			default:
				return LevelOK, detail, nil
			}
		},
	}
}
