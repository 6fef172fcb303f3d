package types

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role is the authorization level of an account.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleUser    Role = "user"
)

// Roles lists every valid role.
var Roles = []Role{RoleAdmin, RoleManager, RoleUser}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleUser:
		return true
	}
	return false
}

// User represents an account in the system.
// It contains identity, role, team membership and audit metadata.
type User struct {
	// ID is assigned by the store on insert and never changes.
	ID primitive.ObjectID `json:"id" bson:"_id,omitempty"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" bson:"username"`

	// Email is unique and always stored lowercased.
	Email string `json:"email" bson:"email"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" bson:"password"`

	FirstName string `json:"firstName,omitempty" bson:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty" bson:"lastName,omitempty"`

	Role Role `json:"role" bson:"role"`

	// Team references the users this account directly oversees.
	Team []primitive.ObjectID `json:"team" bson:"team"`

	IsActive bool `json:"isActive" bson:"isActive"`

	// LastLogin is only touched by a successful login.
	LastLogin *time.Time `json:"lastLogin,omitempty" bson:"lastLogin,omitempty"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// FullName falls back from "first last" to whichever name is set, then to the username.
func (u User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	}
	return u.Username
}

// TeamSize is the number of direct reports.
func (u User) TeamSize() int {
	return len(u.Team)
}

// UserPatch is a partial update. Nil fields are left untouched; a nil Team
// leaves the team as is while an empty non-nil slice clears it.
type UserPatch struct {
	Username     *string
	Email        *string
	PasswordHash *string
	FirstName    *string
	LastName     *string
	Role         *Role
	Team         []primitive.ObjectID
	IsActive     *bool
	LastLogin    *time.Time
}

// Empty reports whether the patch changes nothing.
func (p UserPatch) Empty() bool {
	return p.Username == nil && p.Email == nil && p.PasswordHash == nil &&
		p.FirstName == nil && p.LastName == nil && p.Role == nil &&
		p.Team == nil && p.IsActive == nil && p.LastLogin == nil
}

// UserFilter narrows a user listing.
type UserFilter struct {
	Role     *Role
	IsActive *bool
	// Search is matched case-insensitively against username, email, first and last name.
	Search string
	Page   int
	Limit  int
}

// Offset is the number of documents to skip for the requested page.
func (f UserFilter) Offset() int64 {
	if f.Page < 1 {
		return 0
	}
	return int64(f.Page-1) * int64(f.Limit)
}

// UserStats aggregates account counts.
type UserStats struct {
	TotalUsers        int64 `json:"totalUsers"`
	TotalAdmins       int64 `json:"totalAdmins"`
	TotalManagers     int64 `json:"totalManagers"`
	TotalRegularUsers int64 `json:"totalRegularUsers"`
	TotalActiveUsers  int64 `json:"totalActiveUsers"`
}
