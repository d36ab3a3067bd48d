package model

// Expert is a user ranked by how often their tickets and messages mention a term.
type Expert struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Mentions int    `json:"mentions"`
}
