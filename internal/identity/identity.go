// Package identity holds the authenticated caller and the closed set of
// marketplace roles. Capability checks live here so handlers never compare
// role strings themselves.
package identity

import (
	"context"
	"fmt"
)

type Role string

const (
	RoleVepari       Role = "vepari"
	RoleFactoryOwner Role = "factory_owner"
)

// ParseRole rejects anything outside the two marketplace roles.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleVepari, RoleFactoryOwner:
		return Role(s), nil
	default:
		return "", fmt.Errorf("identity: unknown role %q", s)
	}
}

func (r Role) String() string { return string(r) }

func (r Role) Valid() bool {
	return r == RoleVepari || r == RoleFactoryOwner
}

func (r Role) IsVepari() bool       { return r == RoleVepari }
func (r Role) IsFactoryOwner() bool { return r == RoleFactoryOwner }

// CanPublishDesigns reports whether the role may upload, edit or delete designs.
func (r Role) CanPublishDesigns() bool { return r == RoleFactoryOwner }

// CanPlaceOrders reports whether the role may place orders against a factory.
func (r Role) CanPlaceOrders() bool { return r == RoleVepari }

// CanManageOrders reports whether the role may move an order through its statuses.
func (r Role) CanManageOrders() bool { return r == RoleFactoryOwner }

func (r Role) CanRequestAccess() bool   { return r == RoleVepari }
func (r Role) CanRespondToAccess() bool { return r == RoleFactoryOwner }

// Counterpart is the role on the other side of a chat room.
func (r Role) Counterpart() Role {
	if r == RoleVepari {
		return RoleFactoryOwner
	}
	return RoleVepari
}

// Identity is what a verified credential resolves to.
type Identity struct {
	UserID int64
	Role   Role
}

type contextKey string

const identityKey contextKey = "identity"

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
