// models/metadata.go
package models

// Metadata is a key/value row for singleton state that is not worth a table
// of its own. The block ingest cursor lives here.
type Metadata struct {
	Key   string `gorm:"primaryKey;type:varchar(64)" json:"key"`
	Value string `gorm:"type:text;not null" json:"value"`
}

// MetaLastBlockHash holds the hash of the last block the ingest job
// examined. Advancing it marks a block as fully handled; a tick that fails
// leaves it untouched so the block is reprocessed.
const MetaLastBlockHash = "last_block_hash"
