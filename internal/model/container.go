package model

// A Container is a remote vault known by the local database.
type Container struct {
	Base `json:",inline" storm:"inline"`

	Name string `json:"name" storm:"unique"`
}
