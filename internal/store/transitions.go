package store

import "flowq/queue-service/internal/models"

// Statuses only move forward: waiting -> serving -> served, with
// cancellation allowed from waiting or serving. serving -> serving is the
// transfer case, which rewrites the assigned counter without changing
// status.
var transitionMap = map[string][]string{
	models.StatusServing:   {models.StatusWaiting, models.StatusServing},
	models.StatusServed:    {models.StatusServing},
	models.StatusCancelled: {models.StatusWaiting, models.StatusServing},
}

func ValidTransition(fromStatus, toStatus string) bool {
	allowed, ok := transitionMap[toStatus]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}
