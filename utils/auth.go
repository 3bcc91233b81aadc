package utils

// Permission levels
const (
	SuperAdminPermission = "super_admin"
	DeveloperPermission  = "developer"
	AdminPermission      = "admin"
	UserPermission       = "user"
)

// contains checks if a slice of strings contains an element.
func contains(slice []string, item string) bool {
	for _, a := range slice {
		if a == item {
			return true
		}
	}
	return false
}

// CheckPermission returns the highest permission level the member holds.
// Everyone bottoms out at UserPermission; user-level commands (reminders)
// need no gate beyond that.
func CheckPermission(memberRoleIDs []string, userID string, adminRoleIDs, developerUserIDs, superAdminRoleIDs []string) string {
	if contains(developerUserIDs, userID) {
		return DeveloperPermission
	}

	for _, roleID := range memberRoleIDs {
		if contains(superAdminRoleIDs, roleID) {
			return SuperAdminPermission
		}
	}

	for _, roleID := range memberRoleIDs {
		if contains(adminRoleIDs, roleID) {
			return AdminPermission
		}
	}

	return UserPermission
}

// IsModerator reports whether the permission level allows moderation commands.
func IsModerator(level string) bool {
	return level == AdminPermission || level == SuperAdminPermission || level == DeveloperPermission
}
