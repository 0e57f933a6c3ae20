package service

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer задаёт паузу между последовательными обращениями к MEGA API.
type Pacer interface {
	// Wait блокируется до разрешённого момента следующего вызова.
	Wait(ctx context.Context) error
}

// NewRatePacer создаёт Pacer на основе rate.Limiter: не чаще одного вызова за interval.
// Один экземпляр разделяется всеми вызывающими, поэтому ограничение общее на процесс.
// interval <= 0 отключает паузу.
func NewRatePacer(interval time.Duration) Pacer {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}
