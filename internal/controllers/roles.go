package controllers

var allowedRoles = map[string]struct{}{
	"admin":   {},
	"teacher": {},
	"student": {},
	"parent":  {},
}

func IsValidRole(role string) bool {
	_, ok := allowedRoles[role]
	return ok
}
