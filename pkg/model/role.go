package model

//go:generate go run github.com/dmarkham/enumer -type Role -trimprefix Role -transform lower -json -sql -output role.gen.go

// Role identifies who authored a conversation message
type Role int

const (
	RoleUser Role = iota
	RoleAssistant
)
