package models

// Identity is the trusted result of the external verification step. The
// relay never checks credentials itself; it only trusts identities minted
// by the auth service.
type Identity struct {
	UID         string `json:"uid"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url,omitempty"`
	Email       string `json:"email,omitempty"`
}

// UserInfo is the presence metadata a client supplies when joining a room.
// It may differ from the verified identity (e.g. a per-trip nickname).
type UserInfo struct {
	DisplayName string `json:"display_name,omitempty"`
	PhotoURL    string `json:"photo_url,omitempty"`
	Email       string `json:"email,omitempty"`
}
