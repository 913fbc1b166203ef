package config

type WorkerKeyStruct struct {
	// DeadlineSchedule is the Redis ZSET of STARTED attempt ids scored by
	// deadline unix time, consumed by the expiry worker.
	DeadlineSchedule string
}

var WorkerKey = &WorkerKeyStruct{
	DeadlineSchedule: "attempt_deadline_schedule",
}
