package util

import (
	"github.com/rs/xid"
)

// GenBatchID generates a batch ID string.
// IDs are globally unique and sortable.
func GenBatchID() string {
	id := xid.New()
	return id.String()
}
