package bus

import "time"

// Event kinds published by the backup and link-and-sync components.
const (
	KindLinkStateChanged = "linksync.state_changed"
	KindLinkFinished     = "linksync.finished"
	KindBackupExported   = "backup.exported"
	KindBackupImported   = "backup.imported"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
