// Package policy decides whether an incoming transfer is accepted, needs a
// PIN, or may be saved without asking the user.
package policy

import (
	"fmt"
	"strings"
)

type AcceptPolicy int

const (
	AcceptEveryone AcceptPolicy = iota
	AcceptFavoritesOnly
)

type PinPolicy int

const (
	PinNever PinPolicy = iota
	PinIfNotFavorite
	PinAlways
)

type QuickSavePolicy int

const (
	QuickSaveNever QuickSavePolicy = iota
	QuickSaveFavoritesOnly
	QuickSaveAlways
)

// DoesAccept reports whether a sender may start a transfer at all.
func DoesAccept(p AcceptPolicy, isFavorite bool) bool {
	return p == AcceptEveryone || isFavorite
}

// RequiresPin reports whether the sender has to present the PIN.
func RequiresPin(p PinPolicy, isFavorite bool) bool {
	return p == PinAlways || (p == PinIfNotFavorite && !isFavorite)
}

// AllowsQuickSave reports whether a transfer is accepted without approval.
func AllowsQuickSave(p QuickSavePolicy, isFavorite bool) bool {
	return p == QuickSaveAlways || (p == QuickSaveFavoritesOnly && isFavorite)
}

func (p AcceptPolicy) String() string {
	switch p {
	case AcceptEveryone:
		return "everyone"
	case AcceptFavoritesOnly:
		return "favorites-only"
	default:
		return fmt.Sprintf("AcceptPolicy(%d)", int(p))
	}
}

func (p PinPolicy) String() string {
	switch p {
	case PinNever:
		return "never"
	case PinIfNotFavorite:
		return "if-not-favorite"
	case PinAlways:
		return "always"
	default:
		return fmt.Sprintf("PinPolicy(%d)", int(p))
	}
}

func (p QuickSavePolicy) String() string {
	switch p {
	case QuickSaveNever:
		return "never"
	case QuickSaveFavoritesOnly:
		return "favorites-only"
	case QuickSaveAlways:
		return "always"
	default:
		return fmt.Sprintf("QuickSavePolicy(%d)", int(p))
	}
}

// ParseAcceptPolicy accepts the policy name or its persisted integer value.
func ParseAcceptPolicy(s string) (AcceptPolicy, error) {
	switch normalize(s) {
	case "everyone", "0":
		return AcceptEveryone, nil
	case "favorites-only", "1":
		return AcceptFavoritesOnly, nil
	}
	return 0, fmt.Errorf("unknown accept policy %q", s)
}

// ParsePinPolicy accepts the policy name or its persisted integer value.
func ParsePinPolicy(s string) (PinPolicy, error) {
	switch normalize(s) {
	case "never", "0":
		return PinNever, nil
	case "if-not-favorite", "1":
		return PinIfNotFavorite, nil
	case "always", "2":
		return PinAlways, nil
	}
	return 0, fmt.Errorf("unknown pin policy %q", s)
}

// ParseQuickSavePolicy accepts the policy name or its persisted integer value.
func ParseQuickSavePolicy(s string) (QuickSavePolicy, error) {
	switch normalize(s) {
	case "never", "0":
		return QuickSaveNever, nil
	case "favorites-only", "1":
		return QuickSaveFavoritesOnly, nil
	case "always", "2":
		return QuickSaveAlways, nil
	}
	return 0, fmt.Errorf("unknown quick save policy %q", s)
}

// normalize maps "FAVORITES_ONLY", "favorites_only" and "Favorites-Only"
// to the same spelling.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, "_", "-")
}
