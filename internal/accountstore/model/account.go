// Package model defines the persisted account shape the SASL broker
// authenticates and authorizes against. This is account storage only;
// per spec.md's Non-goals, in-flight session state never touches this
// store.
package model

import "time"

// Account is one login-capable identity.
type Account struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"uniqueIndex;size:64;not null"`
	Class     string    `gorm:"size:64"`
	Frozen    bool      `gorm:"not null;default:false"`
	FrozenBy  string    `gorm:"size:64"`
	Cloak     string    `gorm:"size:128"`

	// WaitAuth marks an account still waiting on an external
	// authentication step (e.g. a pending email verification) before a
	// SASL login may be announced to the network, mirroring the
	// original's MU_WAITAUTH flag.
	WaitAuth bool `gorm:"not null;default:false"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Credentials []Credential  `gorm:"foreignKey:AccountID"`
	Privileges  []Privilege   `gorm:"foreignKey:AccountID"`
}

// Credential is one verifiable authentication factor for an account
// (a PLAIN password hash, an EXTERNAL certificate fingerprint binding,
// a GSSAPI principal mapping).
type Credential struct {
	ID        uint   `gorm:"primaryKey"`
	AccountID uint   `gorm:"index;not null"`
	Kind      string `gorm:"size:32;not null"` // "plain", "external", "gssapi"
	Secret    string `gorm:"size:256;not null"` // bcrypt hash, fingerprint, or principal
}

// Privilege is one authorization grant attached to an account (e.g. the
// ability to impersonate another account or class of accounts).
type Privilege struct {
	ID        uint   `gorm:"primaryKey"`
	AccountID uint   `gorm:"index;not null"`
	Kind      int    `gorm:"not null"`
	Param     string `gorm:"size:64"`
}

// AllModels returns every model AutoMigrate/the SQLite backend must
// register, mirroring the teacher's models.AllModels convention.
func AllModels() []any {
	return []any{&Account{}, &Credential{}, &Privilege{}}
}
