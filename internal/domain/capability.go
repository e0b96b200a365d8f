package domain

import (
	"fmt"
	"sort"
)

// Capability は主体に付与される権限を表す。値は閉じた集合。
type Capability string

const (
	CapCreateTeam              Capability = "can_create_team"
	CapAddEncryptionKey        Capability = "can_add_encryption_key"
	CapActivateEncryptionKey   Capability = "can_activate_encryption_key"
	CapEditForm                Capability = "can_edit_form"
	CapRemoveTeamMember        Capability = "can_remove_team_member"
	CapRetrieveFormSubmissions Capability = "can_retrieve_form_submissions"
)

var knownCapabilities = map[Capability]struct{}{
	CapCreateTeam:              {},
	CapAddEncryptionKey:        {},
	CapActivateEncryptionKey:   {},
	CapEditForm:                {},
	CapRemoveTeamMember:        {},
	CapRetrieveFormSubmissions: {},
}

// CapabilitySet はリクエストごとに一度だけ解決される権限の集合。
type CapabilitySet map[Capability]struct{}

// NewCapabilitySet は名前の一覧から権限集合を作る。未知の名前は無視する。
func NewCapabilitySet(names ...string) CapabilitySet {
	set := make(CapabilitySet, len(names))
	for _, n := range names {
		c := Capability(n)
		if _, ok := knownCapabilities[c]; ok {
			set[c] = struct{}{}
		}
	}
	return set
}

// Has は権限を持つか判定する。nil でも安全に呼べる。
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Names はソート済みの権限名を返す。
func (s CapabilitySet) Names() []string {
	names := make([]string, 0, len(s))
	for c := range s {
		names = append(names, string(c))
	}
	sort.Strings(names)
	return names
}

// Principal は操作を行う主体を表す。
type Principal struct {
	UserID       string
	Capabilities CapabilitySet
}

// Require は権限を持たない場合に ErrForbidden をラップしたエラーを返す。
func (p Principal) Require(c Capability) error {
	if p.UserID == "" || !p.Capabilities.Has(c) {
		return fmt.Errorf("%w: missing capability %s", ErrForbidden, c)
	}
	return nil
}
