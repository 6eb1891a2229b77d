package rbac

type Role string
type Action string

const (
	RoleViewer    Role = "viewer"
	RoleEditor    Role = "editor"
	RoleDeveloper Role = "developer"
	RoleAdmin     Role = "admin"
)

const (
	ActionRead         Action = "read"
	ActionWrite        Action = "write"
	ActionPublish      Action = "publish"
	ActionManageSchema Action = "manage_schema"
	ActionAdmin        Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleDeveloper:
		return action == ActionRead || action == ActionWrite || action == ActionPublish || action == ActionManageSchema
	case RoleEditor:
		return action == ActionRead || action == ActionWrite || action == ActionPublish
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleEditor, RoleDeveloper, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}
