package auth

import (
	"context"
	"slices"
)

const (
	RoleEmployee    = "Employee"
	RoleManager     = "Manager"
	RoleHR          = "HR"
	RolePayroll     = "Payroll"
	RoleSystemAdmin = "SystemAdmin"
)

const (
	PermPayrollRead     = "payroll.read"
	PermPayrollRun      = "payroll.run"
	PermPayrollSettings = "payroll.settings"
	PermAuditRead       = "audit.read"
)

var DefaultPermissions = []string{
	PermPayrollRead,
	PermPayrollRun,
	PermPayrollSettings,
	PermAuditRead,
}

var RolePermissions = map[string][]string{
	RoleManager: {
		PermPayrollRead,
	},
	RoleHR: {
		PermPayrollRead,
		PermPayrollRun,
		PermAuditRead,
	},
	RolePayroll: {
		PermPayrollRead,
		PermPayrollRun,
		PermPayrollSettings,
		PermAuditRead,
	},
	RoleSystemAdmin: DefaultPermissions,
}

// RolePermissionStore resolves permissions from RolePermissions by role name.
type RolePermissionStore struct {
	Roles map[string][]string
}

func NewRolePermissionStore() *RolePermissionStore {
	return &RolePermissionStore{Roles: RolePermissions}
}

func (s *RolePermissionStore) HasPermission(ctx context.Context, role, permission string) (bool, error) {
	return slices.Contains(s.Roles[role], permission), nil
}
