package model

// A Binding associates a local filename to the archive identifier assigned by the remote vault.
type Binding struct {
	Base `json:",inline" storm:"inline"`

	Container string `json:"container"  storm:"index"`
	Filename  string `json:"filename"   storm:"index"`
	ArchiveID string `json:"archive_id" storm:"index"`
	// Sequence keeps the insertion order.
	Sequence uint64 `json:"sequence" storm:"index,increment"`
}
