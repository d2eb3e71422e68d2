package linebot

import (
	"embed"
	"fmt"
	"strings"

	"github.com/jiujiugas/gasops/internal/sentinel"
)

// ErrUnknownRole is returned by ParseRoles for a role name it does not know.
const ErrUnknownRole = sentinel.Error("unknown group role")

// Role decides which commands and which system prompt a chat gets.
type Role string

const (
	// RoleCustomer is every 1:1 chat and any group without a configured role.
	RoleCustomer Role = "customer"
	// RoleAttendance groups clock staff in and out.
	RoleAttendance Role = "attendance"
	// RoleBoss groups can query orders, customers, stock and the leave
	// schedule.
	RoleBoss Role = "boss"
	// RoleStaff groups file leave and advance requests, read the leave
	// schedule and the knowledge base, and get the customer prompt.
	RoleStaff Role = "staff"
)

// ParseRoles converts a group id to role-name map, as loaded from
// BOT_GROUPS, into roles.
func ParseRoles(groups map[string]string) (map[string]Role, error) {
	out := make(map[string]Role, len(groups))
	for id, name := range groups {
		r := Role(strings.ToLower(name))
		switch r {
		case RoleAttendance, RoleBoss, RoleStaff:
			out[id] = r
		default:
			return nil, fmt.Errorf("%w %q for group %s", ErrUnknownRole, name, id)
		}
	}
	return out, nil
}

//go:embed prompts/*.txt
var promptFS embed.FS

func mustPrompt(name string) string {
	b, err := promptFS.ReadFile("prompts/" + name)
	if err != nil {
		panic(fmt.Sprintf("linebot: missing prompt %s: %v", name, err))
	}
	return strings.TrimSpace(string(b))
}

var (
	corePrompt       = mustPrompt("core.txt")
	customerPrompt   = mustPrompt("customer.txt")
	ownerPrompt      = mustPrompt("owner.txt")
	attendancePrompt = mustPrompt("attendance.txt")
)

// SystemPrompt is the LLM system prompt for r.
func SystemPrompt(r Role) string {
	switch r {
	case RoleBoss:
		return corePrompt + "\n\n" + ownerPrompt
	case RoleAttendance:
		return corePrompt + "\n\n" + attendancePrompt
	default:
		return corePrompt + "\n\n" + customerPrompt
	}
}
