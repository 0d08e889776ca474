// README: User directory (profiles + credential checks).
package users

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"cartpool/internal/types"
)

// Profile is the account data kept per user. Timezone is an IANA zone
// name and drives wall-clock conversion of delivery times.
type Profile struct {
	ID          types.UserID `json:"id"`
	Login       string       `json:"login"`
	FirstName   string       `json:"first_name"`
	LastName    string       `json:"last_name"`
	CompanyName string       `json:"company_name,omitempty"`
	Email       string       `json:"email"`
	Phone       string       `json:"phone,omitempty"`
	Timezone    string       `json:"timezone"`

	passwordHash []byte
}

// DisplayName is the name shown to the other side of a match.
func (p Profile) DisplayName() string {
	return p.FirstName + " " + p.LastName
}

var (
	ErrUnknownUser        = fmt.Errorf("unknown user")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
)

// Directory holds all known users. Accounts are seeded at startup;
// registration goes through the lead funnel, not here.
type Directory struct {
	mu      sync.RWMutex
	byID    map[types.UserID]*Profile
	byLogin map[string]*Profile
}

func NewDirectory() *Directory {
	return &Directory{
		byID:    make(map[types.UserID]*Profile),
		byLogin: make(map[string]*Profile),
	}
}

// Add registers a profile with a bcrypt-hashed password.
func (d *Directory) Add(p Profile, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password for user %d: %w", p.ID, err)
	}
	p.passwordHash = hash

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byID[p.ID]; ok {
		return fmt.Errorf("user %d already exists", p.ID)
	}
	if _, ok := d.byLogin[p.Login]; ok {
		return fmt.Errorf("login %q already taken", p.Login)
	}
	stored := p
	d.byID[p.ID] = &stored
	d.byLogin[p.Login] = &stored
	return nil
}

// Authenticate checks login/password and returns the profile on
// success. Unknown logins and wrong passwords are indistinguishable to
// the caller.
func (d *Directory) Authenticate(login, password string) (Profile, error) {
	d.mu.RLock()
	p, ok := d.byLogin[login]
	d.mu.RUnlock()
	if !ok {
		return Profile{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(p.passwordHash, []byte(password)); err != nil {
		return Profile{}, ErrInvalidCredentials
	}
	return *p, nil
}

// Find returns the profile for id.
func (d *Directory) Find(id types.UserID) (Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.byID[id]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %d", ErrUnknownUser, id)
	}
	return *p, nil
}

// Timezone returns the user's IANA zone name.
func (d *Directory) Timezone(id types.UserID) (string, error) {
	p, err := d.Find(id)
	if err != nil {
		return "", err
	}
	return p.Timezone, nil
}

// All lists profiles ascending by id.
func (d *Directory) All() []Profile {
	d.mu.RLock()
	defer d.mu.RUnlock()
	res := make([]Profile, 0, len(d.byID))
	for _, p := range d.byID {
		res = append(res, *p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}
