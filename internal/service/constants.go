package service

import "time"

const (
	// Pagination limits
	RecentActivitiesLimit = 10
	MaxActivitiesLimit    = 500

	// Days of training load shown in a summary
	SummaryLoadDays = 90
)

// syncTimeLayout is the format of stored sync timestamps
const syncTimeLayout = time.RFC3339
