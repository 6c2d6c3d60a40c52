package config

type WorkerKeyStruct struct {
	PersistFlagsQueue  string
	NotificationsQueue string
	ExpirySweeperLock  string
}

var WorkerKey = &WorkerKeyStruct{
	PersistFlagsQueue:  "persist_flags_queue",
	NotificationsQueue: "notifications_queue",
	ExpirySweeperLock:  "lock:expiry_sweeper",
}
