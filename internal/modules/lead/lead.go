// README: Lead store for registration requests from the public site.
package lead

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"cartpool/internal/types"
)

// Lead is one registration request. Leads are collected for manual
// follow-up; account creation happens out of band.
type Lead struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	CompanyName string `json:"company_name,omitempty"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
}

// Record is a stored lead with its registration metadata.
type Record struct {
	ID           types.ID     `json:"id"`
	Lead         Lead         `json:"lead"`
	SubmittedBy  types.UserID `json:"submitted_by"`
	RegisteredAt time.Time    `json:"registered_at"`
}

// Store keeps leads in memory and writes one log line per
// registration, which doubles as the durable trail.
type Store struct {
	mu     sync.Mutex
	log    zerolog.Logger
	nextID types.ID
	leads  map[types.ID]Record
}

func NewStore(log zerolog.Logger) *Store {
	return &Store{
		log:    log.With().Str("module", "lead").Logger(),
		nextID: 1,
		leads:  make(map[types.ID]Record),
	}
}

// Register stores the lead and returns its id.
func (s *Store) Register(lead Lead, submittedBy types.UserID) types.ID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.leads[id] = Record{
		ID:           id,
		Lead:         lead,
		SubmittedBy:  submittedBy,
		RegisteredAt: time.Now().UTC(),
	}

	s.log.Info().
		Int64("lead_id", int64(id)).
		Int64("submitted_by", int64(submittedBy)).
		Str("email", lead.Email).
		Str("name", lead.FirstName+" "+lead.LastName).
		Msg("lead registered")
	return id
}

// All lists records ascending by id.
func (s *Store) All() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := make([]Record, 0, len(s.leads))
	for _, r := range s.leads {
		res = append(res, r)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}
