package model

import "time"

// Role identifies a user's tier in the authority hierarchy. Roles form a
// closed set; every switch over Role must enumerate all five values so that
// introducing a new tier forces each consumption site to be revisited.
type Role string

const (
	RoleLevel0        Role = "LEVEL_0"         // super admin, highest authority
	RoleLevel1        Role = "LEVEL_1"         // senior authority
	RoleLevel2        Role = "LEVEL_2"         // field officer
	RoleLevel2Captain Role = "LEVEL_2_CAPTAIN" // field supervisor
	RoleJanMitra      Role = "JANMITRA"        // anonymous citizen member
)

// ParseRole maps a stored role string onto the closed Role set. Unknown
// values are reported so a corrupted row cannot silently gain privileges.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleLevel0, RoleLevel1, RoleLevel2, RoleLevel2Captain, RoleJanMitra:
		return Role(s), true
	}
	return "", false
}

// IsAuthority reports whether the role belongs to the non-anonymous
// authority hierarchy. Citizens are never authorities.
func (r Role) IsAuthority() bool {
	switch r {
	case RoleLevel0, RoleLevel1, RoleLevel2, RoleLevel2Captain:
		return true
	case RoleJanMitra:
		return false
	}
	return false
}

// CanSeeLevel implements the case visibility partition: plain Level-2
// officers see only level-2 cases, captains see every level, Level-1 and
// Level-0 see exactly their own level, and citizens see no cases at all.
func (r Role) CanSeeLevel(level CaseLevel) bool {
	switch r {
	case RoleLevel2:
		return level == CaseLevel2
	case RoleLevel2Captain:
		return level <= CaseLevel2
	case RoleLevel1:
		return level == CaseLevel1
	case RoleLevel0:
		return level == CaseLevel0
	case RoleJanMitra:
		return false
	}
	return false
}

// UserStatus is the account lifecycle state.
type UserStatus string

const (
	StatusPending   UserStatus = "PENDING"
	StatusActive    UserStatus = "ACTIVE"
	StatusSuspended UserStatus = "SUSPENDED"
	StatusRevoked   UserStatus = "REVOKED"
)

// InvalidationReason records why a device session stopped being active.
type InvalidationReason string

const (
	InvalidationNewDevice     InvalidationReason = "NEW_DEVICE"
	InvalidationLogout        InvalidationReason = "LOGOUT"
	InvalidationAccessRevoked InvalidationReason = "ACCESS_REVOKED"
	InvalidationSecurity      InvalidationReason = "SECURITY"
	InvalidationExpired       InvalidationReason = "EXPIRED"
)

// User mirrors the `users` table. The identifier is an email or phone
// number for authorities and an opaque anonymous token (JM-XXXXXXXXXXXX)
// for citizens. Rows are never physically deleted; Archive sets the
// soft-delete flag instead.
//
// Fields:
//  ID                  – primary key identifier.
//  Identifier          – unique login identifier.
//  PasswordHash        – bcrypt hash; empty for citizen accounts.
//  Role                – tier in the authority hierarchy.
//  Status              – account lifecycle state.
//  IsAnonymous         – true for citizen (identity protected) accounts.
//  FailedLoginAttempts – consecutive failed password attempts.
//  LastFailedLogin     – when the last failure happened (nullable).
//  LastLoginIP         – IP of the last successful login (nullable).
//  RevokedAt/RevokedBy – revocation metadata (nullable).
//  RevocationReason    – audit-required justification for revocation.
type User struct {
	ID                  uint64     // users.id
	Identifier          string     // users.identifier
	PasswordHash        string     // users.password_hash
	Role                Role       // users.role
	Status              UserStatus // users.status
	IsAnonymous         bool       // users.is_anonymous
	FailedLoginAttempts uint32     // users.failed_login_attempts
	LastFailedLogin     *time.Time // users.last_failed_login (nullable)
	LastLoginIP         *string    // users.last_login_ip (nullable)
	RevokedAt           *time.Time // users.revoked_at (nullable)
	RevokedBy           *uint64    // users.revoked_by (nullable)
	RevocationReason    string     // users.revocation_reason
	CreatedAt           time.Time  // users.created_at
	UpdatedAt           time.Time  // users.updated_at
}

// DeviceSession binds one user to one physical device. The raw fingerprint
// is never stored; only its SHA-256 hex digest. The session store keeps at
// most one row with IsActive=true per user: creating a session deactivates
// every prior active one with reason NEW_DEVICE.
//
// Fields:
//  ID                 – primary key identifier.
//  UserID             – owning user.
//  FingerprintHash    – SHA-256 hex digest of the device fingerprint.
//  DeviceName/OSName/OSVersion/AppVersion – display metadata, not
//                       security relevant.
//  IsActive           – whether this is the user's live session.
//  RefreshTokenHash   – SHA-256 digest of the currently bound refresh token.
//  LastActivityAt/IP  – touched on every authenticated request.
//  InvalidatedAt      – when the session stopped being active (nullable).
//  InvalidationReason – why it was deactivated.
type DeviceSession struct {
	ID                 uint64             // device_sessions.id
	UserID             uint64             // device_sessions.user_id
	FingerprintHash    string             // device_sessions.fingerprint_hash
	DeviceName         string             // device_sessions.device_name
	OSName             string             // device_sessions.os_name
	OSVersion          string             // device_sessions.os_version
	AppVersion         string             // device_sessions.app_version
	IsActive           bool               // device_sessions.is_active
	RefreshTokenHash   string             // device_sessions.refresh_token_hash
	LastActivityAt     time.Time          // device_sessions.last_activity_at
	LastActivityIP     *string            // device_sessions.last_activity_ip (nullable)
	InvalidatedAt      *time.Time         // device_sessions.invalidated_at (nullable)
	InvalidationReason InvalidationReason // device_sessions.invalidation_reason
	CreatedAt          time.Time          // device_sessions.created_at
}

// DeviceInfo carries the display metadata a client reports at login time.
type DeviceInfo struct {
	DeviceName string `json:"device_name"`
	OSName     string `json:"os_name"`
	OSVersion  string `json:"os_version"`
	AppVersion string `json:"app_version"`
	IPAddress  string `json:"-"`
}

// InviteCode gates citizen registration. A code is valid while it is not
// archived, its use count is below max_uses and it has not expired. Use()
// semantics live in the repository; UsableAt is the pure validity check.
type InviteCode struct {
	ID        uint64     // invite_codes.id
	Code      string     // invite_codes.code (JM-XXXX-XXXX-XXXX)
	IssuedBy  uint64     // invite_codes.issued_by
	MaxUses   uint32     // invite_codes.max_uses
	UseCount  uint32     // invite_codes.use_count
	IsUsed    bool       // invite_codes.is_used
	UsedAt    *time.Time // invite_codes.used_at (nullable)
	ExpiresAt time.Time  // invite_codes.expires_at
	Notes     string     // invite_codes.notes
	IsDeleted bool       // invite_codes.is_deleted
	CreatedAt time.Time  // invite_codes.created_at
}

// UsableAt reports whether the code may still be redeemed at the given time.
func (ic InviteCode) UsableAt(now time.Time) bool {
	if ic.IsDeleted {
		return false
	}
	if ic.UseCount >= ic.MaxUses {
		return false
	}
	return now.Before(ic.ExpiresAt)
}
