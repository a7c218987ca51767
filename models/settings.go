package models

// ChangeOrigin tells subscribers whether a setting was written by this process or observed
// in the database after another process wrote it.
type ChangeOrigin string

const (
	OriginLocal    ChangeOrigin = "local"
	OriginExternal ChangeOrigin = "external"
)

// SettingChange is emitted by the key/value store after a write.
type SettingChange struct {
	Key    string
	Value  string
	Origin ChangeOrigin
}
