package model

import (
	"strings"

	"github.com/secmon-lab/synapse/pkg/domain/types"
)

// User is keyed by email
type User struct {
	Email string
	Name  string
}

func (u *User) ToNode() *Node {
	props := Properties{KeyEmail: strings.ToLower(u.Email)}
	if u.Name != "" {
		props["name"] = u.Name
	}
	return &Node{Label: types.LabelUser, Properties: props}
}

func (u *User) Ref() NodeRef {
	return NodeRef{Label: types.LabelUser, ID: strings.ToLower(u.Email)}
}

// KeywordRef returns the reference of the Keyword node for a normalized term.
func KeywordRef(term string) NodeRef {
	return NodeRef{Label: types.LabelKeyword, ID: term}
}

// KeywordNode builds a Keyword node for a normalized term.
func KeywordNode(term string) *Node {
	return &Node{Label: types.LabelKeyword, Properties: Properties{KeyTerm: term}}
}
