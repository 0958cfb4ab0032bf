package rbac

// Simple default policy. Expand as needed.
var RolePermissions = map[string][]string{
	"learner": {
		"quiz:view",
		"attempt:create",
		"attempt:answer",
		"attempt:submit",
		"attempt:view-own",
		"violation:report",
		"analytics:view-own",
	},
	"instructor": {
		"quiz:create",
		"quiz:view",
		"quiz:view-keys",
		"attempt:view-all",
		"proctor:review",
		"analytics:view-all",
	},
	"admin": {
		"*", // everything
	},
}
