package core

const (
	maxHealthScore = 100.0

	// healthyScore is the score an instance must exceed to be preferred by
	// BestInstance.
	healthyScore = 50.0

	// failurePenalty is subtracted per consecutive failed health check.
	failurePenalty = 25.0
)

// healthScore rates an instance from 0 to 100. Resource usage close to the
// service limits costs up to 30 points each for memory and CPU and 20 for
// latency; each consecutive failure costs failurePenalty.
func healthScore(cfg ServiceConfig, st InstanceStats) float64 {
	score := maxHealthScore
	score -= 30 * ratio(st.MemoryMB, cfg.MemoryLimitMB)
	score -= 30 * ratio(st.CPUPercent, cfg.CPUThreshold)
	score -= 20 * ratio(float64(st.ResponseTime), float64(cfg.ResponseTimeLimit))
	score -= failurePenalty * float64(st.ConsecutiveFailures)
	return max(0, min(maxHealthScore, score))
}

func ratio(v, limit float64) float64 {
	if limit <= 0 || v <= 0 {
		return 0
	}
	return min(v/limit, 1)
}

// pickBest chooses the instance new work should go to: the highest scoring
// running instance above healthyScore, ties broken by fewer requests. With
// no healthy instance it falls back to the live instance with the fewest
// requests. ok is false when infos holds no live instance.
func pickBest(infos []InstanceInfo) (best InstanceInfo, ok bool) {
	for _, in := range infos {
		if in.State != StateRunning || in.HealthScore <= healthyScore {
			continue
		}
		if !ok || in.HealthScore > best.HealthScore ||
			(in.HealthScore == best.HealthScore && in.Requests < best.Requests) {
			best, ok = in, true
		}
	}
	if ok {
		return best, true
	}
	for _, in := range infos {
		if !in.State.Live() {
			continue
		}
		if !ok || in.Requests < best.Requests {
			best, ok = in, true
		}
	}
	return best, ok
}

