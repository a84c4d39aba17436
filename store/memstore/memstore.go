// Package memstore is an in-memory implementation of every authkit
// persistence interface. It backs tests and single-process deployments; the
// shared mutex gives it the same atomic rotation guarantee the SQL and
// Redis stores provide with their own primitives.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	authkit "github.com/playcricket/authkit"
	"github.com/playcricket/authkit/internal/audit"
)

// Store holds all tables behind one mutex. Individual interface
// implementations are thin views over it; get them from [Store.Stores].
type Store struct {
	mu sync.Mutex

	users       map[int64]*authkit.User
	usersByMail map[string]int64
	nextUserID  int64

	roles       map[int64]*authkit.Role
	rolesByCode map[string]int64
	nextRoleID  int64

	userRoles      map[int64]*authkit.UserRole
	nextUserRoleID int64

	tokens      map[int64]*authkit.RefreshToken
	nextTokenID int64

	oneTime       map[int64]*authkit.OneTimeToken
	nextOneTimeID int64

	events []audit.Event
}

func New() *Store {
	return &Store{
		users:       make(map[int64]*authkit.User),
		usersByMail: make(map[string]int64),
		roles:       make(map[int64]*authkit.Role),
		rolesByCode: make(map[string]int64),
		userRoles:   make(map[int64]*authkit.UserRole),
		tokens:      make(map[int64]*authkit.RefreshToken),
		oneTime:     make(map[int64]*authkit.OneTimeToken),
	}
}

// Stores bundles the interface views for [authkit.New].
func (s *Store) Stores() authkit.Stores {
	return authkit.Stores{
		Users:         &userStore{s},
		Roles:         &roleStore{s},
		UserRoles:     &userRoleStore{s},
		RefreshTokens: &refreshTokenStore{s},
		OneTimeTokens: &oneTimeTokenStore{s},
		Audit:         &auditStore{s},
	}
}

// DefaultRoles is the platform's seeded role catalogue.
var DefaultRoles = []authkit.Role{
	{Code: "ADMIN", Name: "Administrator", Description: "Full platform access"},
	{Code: "ORGANIZER", Name: "Organizer", Description: "Creates and manages tournaments"},
	{Code: "TEAM_MANAGER", Name: "Team Manager", Description: "Manages a team roster"},
	{Code: "SCORER", Name: "Scorer", Description: "Records ball-by-ball scoring"},
	{Code: "UMPIRE", Name: "Umpire", Description: "Officiates matches"},
	{Code: "PLAYER", Name: "Player", Description: "Registered player"},
	{Code: "VIEWER", Name: "Viewer", Description: "Read-only access"},
}

// SeedRoles inserts roles, assigning IDs and skipping codes already present.
// Usually called once at startup with [DefaultRoles].
func (s *Store) SeedRoles(roles []authkit.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range roles {
		if _, exists := s.rolesByCode[r.Code]; exists {
			continue
		}
		s.nextRoleID++
		cp := r
		cp.ID = s.nextRoleID
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = time.Now().UTC()
		}
		s.roles[cp.ID] = &cp
		s.rolesByCode[cp.Code] = cp.ID
	}
}

func (s *Store) copyUserLocked(u *authkit.User) *authkit.User {
	cp := *u
	cp.BackupCodes = append([]string(nil), u.BackupCodes...)
	cp.Roles = s.roleCodesLocked(u.ID)
	return &cp
}

func (s *Store) roleCodesLocked(userID int64) []string {
	var codes []string
	for _, ur := range s.userRoles {
		if ur.UserID == userID {
			if r, ok := s.roles[ur.RoleID]; ok {
				codes = append(codes, r.Code)
			}
		}
	}
	sort.Strings(codes)
	return codes
}

type userStore struct{ s *Store }

func (v *userStore) GetByID(_ context.Context, id int64) (*authkit.User, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	u, ok := v.s.users[id]
	if !ok {
		return nil, authkit.ErrNotFound
	}
	return v.s.copyUserLocked(u), nil
}

func (v *userStore) GetByEmail(_ context.Context, email string) (*authkit.User, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	id, ok := v.s.usersByMail[strings.ToLower(email)]
	if !ok {
		return nil, authkit.ErrNotFound
	}
	return v.s.copyUserLocked(v.s.users[id]), nil
}

func (v *userStore) Create(_ context.Context, u *authkit.User) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	key := strings.ToLower(u.Email)
	if _, exists := v.s.usersByMail[key]; exists {
		return authkit.ErrEmailExists
	}
	v.s.nextUserID++
	u.ID = v.s.nextUserID
	cp := *u
	cp.BackupCodes = append([]string(nil), u.BackupCodes...)
	v.s.users[u.ID] = &cp
	v.s.usersByMail[key] = u.ID
	return nil
}

func (v *userStore) Update(_ context.Context, u *authkit.User) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.users[u.ID]; !ok {
		return authkit.ErrNotFound
	}
	cp := *u
	cp.Roles = nil // membership lives in the join table
	cp.BackupCodes = append([]string(nil), u.BackupCodes...)
	v.s.users[u.ID] = &cp
	return nil
}

func (v *userStore) Delete(_ context.Context, id int64) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	u, ok := v.s.users[id]
	if !ok {
		return authkit.ErrNotFound
	}
	delete(v.s.usersByMail, strings.ToLower(u.Email))
	delete(v.s.users, id)
	for urID, ur := range v.s.userRoles {
		if ur.UserID == id {
			delete(v.s.userRoles, urID)
		}
	}
	for tID, t := range v.s.tokens {
		if t.UserID == id {
			delete(v.s.tokens, tID)
		}
	}
	for oID, o := range v.s.oneTime {
		if o.UserID == id {
			delete(v.s.oneTime, oID)
		}
	}
	return nil
}

type roleStore struct{ s *Store }

func (v *roleStore) GetByCode(_ context.Context, code string) (*authkit.Role, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	id, ok := v.s.rolesByCode[code]
	if !ok {
		return nil, authkit.ErrNotFound
	}
	cp := *v.s.roles[id]
	return &cp, nil
}

func (v *roleStore) List(_ context.Context) ([]authkit.Role, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	out := make([]authkit.Role, 0, len(v.s.roles))
	for _, r := range v.s.roles {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type userRoleStore struct{ s *Store }

func (v *userRoleStore) Assign(_ context.Context, ur *authkit.UserRole) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, existing := range v.s.userRoles {
		if existing.UserID == ur.UserID && existing.RoleID == ur.RoleID {
			return nil
		}
	}
	v.s.nextUserRoleID++
	ur.ID = v.s.nextUserRoleID
	cp := *ur
	v.s.userRoles[ur.ID] = &cp
	return nil
}

func (v *userRoleStore) Remove(_ context.Context, userID, roleID int64) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for id, ur := range v.s.userRoles {
		if ur.UserID == userID && ur.RoleID == roleID {
			delete(v.s.userRoles, id)
			return nil
		}
	}
	return authkit.ErrNotFound
}

func (v *userRoleStore) ListByUser(_ context.Context, userID int64) ([]authkit.Role, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []authkit.Role
	for _, ur := range v.s.userRoles {
		if ur.UserID == userID {
			if r, ok := v.s.roles[ur.RoleID]; ok {
				out = append(out, *r)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *userRoleStore) CountByUser(_ context.Context, userID int64) (int, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	n := 0
	for _, ur := range v.s.userRoles {
		if ur.UserID == userID {
			n++
		}
	}
	return n, nil
}
