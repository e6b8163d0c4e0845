package rbac

// Default policy for the three platform roles.
var RolePermissions = map[string][]string{
	"student": {
		"test:view",
		"attempt:start",
		"attempt:save",
		"attempt:submit",
		"attempt:abandon",
		"attempt:view-own",
		"recording:upload",
		"user:change_password",
	},
	"teacher": {
		"test:view",
		"test:create",
		"attempt:view-all",
		"attempt:grade",
		"recording:view",
		"users:bulk_upsert",
		"users:list",
		"user:change_password",
	},
	"admin": {
		"*", // everything
	},
}
