// Package common contains shared constants and sentinel errors used across
// the session manager, transport, and credential store layers.
package common

// Names of the slots in the persistent credential store. The values stored
// under them are opaque strings owned by the backend.
const (
	SlotAccessToken  = "access_token"
	SlotRefreshToken = "refresh_token"
	SlotUser         = "user"
	SlotResetToken   = "reset_token"
)

// AuthSlots lists every slot holding session credentials. Logout and the
// terminal refresh-failure path clear all of them together; the reset token
// lives outside the session and is cleared separately.
var AuthSlots = []string{SlotAccessToken, SlotRefreshToken, SlotUser}
