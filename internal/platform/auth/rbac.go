package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Permission names one guarded capability.
type Permission string

const (
	PermClaimCreate        Permission = "CLAIM_CREATE"
	PermClaimRead          Permission = "CLAIM_READ"
	PermClaimList          Permission = "CLAIM_LIST"
	PermClaimUpdate        Permission = "CLAIM_UPDATE"
	PermClaimAssign        Permission = "CLAIM_ASSIGN"
	PermClaimDelete        Permission = "CLAIM_DELETE"
	PermEnhancementCreate  Permission = "ENHANCEMENT_CREATE"
	PermEnhancementRead    Permission = "ENHANCEMENT_READ"
	PermEnhancementUpdate  Permission = "ENHANCEMENT_UPDATE"
	PermQueryCreate        Permission = "QUERY_CREATE"
	PermQueryUpdate        Permission = "QUERY_UPDATE"
	PermCommentCreate      Permission = "COMMENT_CREATE"
	PermCommentList        Permission = "COMMENT_LIST"
	PermCommentMarkRead    Permission = "COMMENT_MARK_READ"
	PermCommentManagerList Permission = "COMMENT_MANAGER_LIST"
	PermNotificationList   Permission = "NOTIFICATION_READ_LIST"
	PermNotificationRead   Permission = "NOTIFICATION_MARK_READ"
	PermPatientCreate      Permission = "PATIENT_CREATE"
	PermPatientRead        Permission = "PATIENT_READ"
	PermPatientList        Permission = "PATIENT_LIST"
	PermPatientUpdate      Permission = "PATIENT_UPDATE"
	PermPatientDelete      Permission = "PATIENT_DELETE"
	PermFileUpload         Permission = "FILE_UPLOAD"
	PermFileDelete         Permission = "FILE_DELETE"
	PermUserRead           Permission = "USER_READ"
	PermUserList           Permission = "USER_LIST"
	PermUserUpdate         Permission = "USER_UPDATE"
	PermUserDelete         Permission = "USER_DELETE"
)

// DefaultRolePermissions is the static role to capability table.
func DefaultRolePermissions() map[Role][]Permission {
	collaborate := []Permission{
		PermClaimRead, PermClaimList, PermClaimCreate, PermClaimUpdate,
		PermEnhancementCreate, PermEnhancementRead, PermEnhancementUpdate,
		PermQueryCreate, PermQueryUpdate,
		PermCommentCreate, PermCommentList, PermCommentMarkRead,
		PermNotificationList, PermNotificationRead,
		PermPatientRead, PermPatientList, PermPatientUpdate,
		PermFileUpload, PermFileDelete,
		PermUserRead,
	}

	admin := append([]Permission{PermClaimAssign, PermCommentManagerList, PermUserList, PermUserUpdate}, collaborate...)
	superAdmin := append([]Permission{PermClaimDelete, PermPatientDelete, PermUserDelete}, admin...)
	hospital := append([]Permission{PermPatientCreate, PermPatientDelete}, collaborate...)

	return map[Role][]Permission{
		RoleSuperAdmin:      superAdmin,
		RoleAdmin:           admin,
		RoleHospital:        hospital,
		RoleHospitalManager: collaborate,
	}
}

// PermissionSet answers Permission = f(Role). It is built once at startup
// and only read afterwards.
type PermissionSet struct {
	byRole map[Role]map[Permission]struct{}
}

func NewPermissionSet(table map[Role][]Permission) *PermissionSet {
	ps := &PermissionSet{byRole: make(map[Role]map[Permission]struct{}, len(table))}
	for role, perms := range table {
		set := make(map[Permission]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		ps.byRole[role] = set
	}
	return ps
}

func (ps *PermissionSet) Allows(role Role, p Permission) bool {
	_, ok := ps.byRole[role][p]
	return ok
}

// Require returns middleware that lets the request through only when the
// actor's role holds every listed permission.
func (ps *PermissionSet) Require(perms ...Permission) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor, err := RequireActor(c.Request().Context())
			if err != nil {
				return err
			}
			var missing []string
			for _, p := range perms {
				if !ps.Allows(actor.Role, p) {
					missing = append(missing, string(p))
				}
			}
			if len(missing) > 0 {
				return echo.NewHTTPError(http.StatusForbidden,
					fmt.Sprintf("access denied: missing permission %s", strings.Join(missing, ", ")))
			}
			return next(c)
		}
	}
}
