package auth

import (
	"slices"
	"strings"
)

const (
	// RoleAdmin has full access.
	RoleAdmin = "admin"
	// RoleService is held by farm backend services that raise notification events.
	RoleService = "service"
	// RoleViewer reads delivery state.
	RoleViewer = "viewer"
	// RoleFarmer is a farm user opening the live channel.
	RoleFarmer = "farmer"
)

// Permission lists the methods and path patterns a role may use.
// A pattern ending in "/*" matches the prefix and everything below it.
type Permission struct {
	AllowedMethods []string
	AllowedPaths   []string
}

// RolePermissions is the authorization table.
var RolePermissions = map[string]Permission{
	RoleAdmin: {
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedPaths:   []string{"/*"},
	},
	RoleService: {
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedPaths: []string{
			"/notifications/dispatch",
			"/deliveries/*",
		},
	},
	RoleViewer: {
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedPaths:   []string{"/deliveries/*"},
	},
	RoleFarmer: {
		AllowedMethods: []string{"GET"},
		AllowedPaths:   []string{"/live"},
	},
}

func checkRolePermission(role, method, path string) bool {
	perm, ok := RolePermissions[role]
	if !ok {
		return false
	}
	if !slices.Contains(perm.AllowedMethods, method) {
		return false
	}
	return matchesPathPattern(path, perm.AllowedPaths)
}

func matchesPathPattern(path string, patterns []string) bool {
	for _, pattern := range patterns {
		if pattern == "/*" {
			return true
		}
		if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
			if path == prefix || strings.HasPrefix(path, prefix+"/") {
				return true
			}
			continue
		}
		if path == pattern {
			return true
		}
	}
	return false
}
