package model

// User is a seeded account; the service never creates or mutates users.
// PasswordHash holds a bcrypt hash, or Password a plaintext credential
// for bootstrap/dev seed rows.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Role         string `json:"role"`
	PasswordHash string `json:"passwordHash,omitempty"`
	Password     string `json:"password,omitempty"`
}

// Course is a catalog entry authored by a teacher. CreatedBy is empty on
// legacy rows imported before ownership tracking existed.
type Course struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Subject     string `json:"subject"`
	Credits     int    `json:"credits"`
	CreatedBy   string `json:"createdBy,omitempty"`
}

const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)
