// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package messenger

import "fmt"

// Role is a privileged principal on a messenger.
type Role uint8

const (
	RoleAdmin Role = iota
	RoleRelayer
	RoleRouter
	RoleAnchor

	numRoles
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleRelayer:
		return "relayer"
	case RoleRouter:
		return "router"
	case RoleAnchor:
		return "anchor"
	default:
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
}

func (r Role) Valid() bool {
	return r < numRoles
}
