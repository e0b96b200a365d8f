package domain

import "time"

// TeamRole はチーム内のロールを表す。
type TeamRole string

const (
	// TeamRoleAdmin はチーム管理者を表す。
	TeamRoleAdmin TeamRole = "admin"
	// TeamRoleMember は一般メンバーを表す。
	TeamRoleMember TeamRole = "member"
)

// Valid はロールが定義済みの値か判定する。
func (r TeamRole) Valid() bool {
	return r == TeamRoleAdmin || r == TeamRoleMember
}

// ParseTeamRole は文字列をロールに変換する。空文字は MEMBER とみなす。
func ParseTeamRole(s string) (TeamRole, error) {
	if s == "" {
		return TeamRoleMember, nil
	}
	r := TeamRole(s)
	if !r.Valid() {
		return "", ErrInvalidRole
	}
	return r, nil
}

// Team はチームエンティティを表す。
type Team struct {
	ID        string
	Name      string
	Slug      string
	CreatedAt time.Time
}

// TeamMembership はチームへの所属を表す。
type TeamMembership struct {
	ID        string
	TeamID    string
	UserID    string
	Role      TeamRole
	CreatedAt time.Time
}

// TeamMembershipAccessKey はメンバーシップと暗号鍵の組ごとのラップ済み鍵を表す。
// サーバーはラップ前の鍵を保持しない。
type TeamMembershipAccessKey struct {
	ID              string
	MembershipID    string
	EncryptionKeyID string
	WrappedKey      string
	CreatedAt       time.Time
}

// WrappedKeys は暗号鍵IDごとのラップ済み鍵を表す。
type WrappedKeys map[string]string

// WrappedKeysByMembership はメンバーシップIDごとのラップ済み鍵を表す。
type WrappedKeysByMembership map[string]string
