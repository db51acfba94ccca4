package clinic

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// User is the account record shared by patients, doctors and admins.
// Authentication and token issuance live outside this service; the scheduler
// only ever reads users to resolve identities and check roles.
type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	FullName     string
	Role         Role
	Specialty    *string
	Location     *string
	CreatedAt    time.Time
}

func (u *User) IsDoctor() bool  { return u.Role == RoleDoctor }
func (u *User) IsPatient() bool { return u.Role == RolePatient }
