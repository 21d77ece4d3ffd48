// Package capability evaluates client-held write/read grants.
//
// A grant is issued during the auth handshake as a "path:perm" string,
// e.g. "/pub/pubky-tools/:rw". Grants are a client-side hint only: the
// homeserver enforces its own rules, this package merely lets the UI
// decide up front whether an operation can succeed.
package capability

import (
	"strings"

	"github.com/gillohner/pubky-tools/internal/errs"
	"github.com/gillohner/pubky-tools/internal/keys"
)

// Permission is a single capability action.
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
)

// PermissionSet is the set of actions a grant allows.
type PermissionSet map[Permission]struct{}

// Has reports whether the set contains p.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Grant scopes a permission set to a path prefix under /pub/.
type Grant struct {
	PathPrefix  string
	Permissions PermissionSet
}

// ParseGrant parses a "path:perm[,perm]" capability string.
// Short forms "r" and "w" and the combined "rw" are accepted alongside
// the long names. Malformed input is a Validation error, never a silent
// empty grant.
func ParseGrant(raw string) (Grant, error) {
	path, perms, found := strings.Cut(raw, ":")
	if !found {
		return Grant{}, errs.Newf(errs.ErrKindValidation, "capability %q has no permission part", raw)
	}
	if path == "" {
		return Grant{}, errs.New(errs.ErrKindValidation, "capability has an empty path")
	}
	if !strings.HasPrefix(path, keys.PubPrefix) {
		return Grant{}, errs.Newf(errs.ErrKindValidation, "capability path %q is not under %s", path, keys.PubPrefix)
	}

	set := make(PermissionSet)
	for _, part := range strings.Split(perms, ",") {
		switch strings.TrimSpace(part) {
		case "r", string(PermissionRead):
			set[PermissionRead] = struct{}{}
		case "w", string(PermissionWrite):
			set[PermissionWrite] = struct{}{}
		case "rw":
			set[PermissionRead] = struct{}{}
			set[PermissionWrite] = struct{}{}
		default:
			return Grant{}, errs.Newf(errs.ErrKindValidation, "capability %q has unknown permission %q", raw, part)
		}
	}
	if len(set) == 0 {
		return Grant{}, errs.Newf(errs.ErrKindValidation, "capability %q grants no permissions", raw)
	}

	return Grant{PathPrefix: path, Permissions: set}, nil
}

// ParseGrants parses a list of capability strings, failing on the first
// malformed entry.
func ParseGrants(raws []string) ([]Grant, error) {
	grants := make([]Grant, 0, len(raws))
	for _, raw := range raws {
		g, err := ParseGrant(raw)
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, nil
}

// Authorize reports whether grants held by owner allow perm on target.
//
// Keys belonging to any other owner are unconditionally denied, as is
// anything outside the owner's /pub/ subtree. For same-owner keys a grant
// applies when it carries perm and the target path lies under the grant's
// path prefix. Containment is one-directional: a grant scoped to
// /pub/app/sub/ does not reach up to /pub/app/.
func Authorize(grants []Grant, owner string, target keys.Key, perm Permission) bool {
	if target.Owner() != owner {
		return false
	}
	if !target.InPub() {
		return false
	}

	path := target.Path()
	for _, g := range grants {
		if !g.Permissions.Has(perm) {
			continue
		}
		if strings.HasPrefix(path, g.PathPrefix) {
			return true
		}
	}
	return false
}
