package utils

import (
    "fmt"
    "strings"
)

// NewAnonymousIdentifier generates the opaque identifier assigned to a
// citizen account at registration, format JM-XXXXXXXXXXXX (12 uppercase hex
// characters). The identifier carries no personal information.
func NewAnonymousIdentifier() (string, error) {
    raw, err := randomHex(6) // 6 bytes -> 12 hex chars
    if err != nil {
        return "", err
    }
    return "JM-" + strings.ToUpper(raw), nil
}

// NewInviteCode generates a registration invite code in the format
// JM-XXXX-XXXX-XXXX (uppercase hex groups).
func NewInviteCode() (string, error) {
    raw, err := randomHex(6) // 12 hex chars split into three groups
    if err != nil {
        return "", err
    }
    chars := strings.ToUpper(raw)
    return fmt.Sprintf("JM-%s-%s-%s", chars[:4], chars[4:8], chars[8:12]), nil
}
