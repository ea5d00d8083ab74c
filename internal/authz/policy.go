package authz

import (
	"fmt"
	"slices"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/hugh/ia-marketing/internal/database/models"
)

// Action is an organization scoped operation.
type Action string

const (
	ActionProjectsRead   Action = "projects:read"
	ActionProjectsManage Action = "projects:manage"
	ActionCreditsRead    Action = "credits:read"
	ActionCreditsAdjust  Action = "credits:adjust"
	ActionVideosCreate   Action = "videos:create"
	ActionVideosRead     Action = "videos:read"
	ActionVideosCancel   Action = "videos:cancel"
	ActionPromptsRead    Action = "prompts:read"
	ActionPromptsManage  Action = "prompts:manage"
	ActionMembersRead    Action = "members:read"
)

// The model has no role definition section, so there is no inheritance:
// a role is allowed an action only if that exact pair is listed.
const policyModel = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.act == p.act
`

var defaultRules = map[models.Role][]Action{
	models.RoleMember: {
		ActionProjectsRead, ActionCreditsRead, ActionVideosCreate,
		ActionVideosRead, ActionVideosCancel, ActionPromptsRead,
	},
	models.RoleAdmin: {
		ActionProjectsRead, ActionProjectsManage, ActionCreditsRead, ActionVideosCreate,
		ActionVideosRead, ActionVideosCancel, ActionPromptsRead, ActionPromptsManage,
		ActionMembersRead,
	},
	models.RoleSuperadmin: {
		ActionProjectsRead, ActionProjectsManage, ActionCreditsRead, ActionCreditsAdjust,
		ActionVideosCreate, ActionVideosRead, ActionVideosCancel, ActionPromptsRead,
		ActionPromptsManage, ActionMembersRead,
	},
}

// Policy answers whether a membership role may perform an action.
type Policy struct {
	enforcer *casbin.Enforcer
	rules    map[Action][]models.Role
}

func NewPolicy() (*Policy, error) {
	return NewPolicyWithRules(defaultRules)
}

func NewPolicyWithRules(rules map[models.Role][]Action) (*Policy, error) {
	m, err := model.NewModelFromString(policyModel)
	if err != nil {
		return nil, fmt.Errorf("loading policy model: %w", err)
	}

	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("creating enforcer: %w", err)
	}

	p := &Policy{enforcer: enforcer, rules: make(map[Action][]models.Role)}
	var lines [][]string
	for role, actions := range rules {
		for _, action := range actions {
			lines = append(lines, []string{string(role), string(action)})
			p.rules[action] = append(p.rules[action], role)
		}
	}
	if len(lines) > 0 {
		if _, err := enforcer.AddPolicies(lines); err != nil {
			return nil, fmt.Errorf("adding policies: %w", err)
		}
	}

	return p, nil
}

// Allows fails closed on evaluation errors.
func (p *Policy) Allows(role models.Role, action Action) bool {
	ok, err := p.enforcer.Enforce(string(role), string(action))
	return err == nil && ok
}

// RolesFor returns the roles allowed to perform action, sorted.
func (p *Policy) RolesFor(action Action) []models.Role {
	roles := append([]models.Role(nil), p.rules[action]...)
	slices.Sort(roles)
	return roles
}
