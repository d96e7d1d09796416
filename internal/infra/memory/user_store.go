package memory

import (
	"context"
	"sync"

	"avtotest-service/internal/domain"
	"github.com/ecodeclub/ekit/slice"
)

type credentials struct {
	email string
	hash  []byte
	salt  []byte
}

// UserStore is an in-memory profile, credential and device slot store.
type UserStore struct {
	mu       sync.RWMutex
	profiles map[string]domain.Profile
	creds    map[string]credentials
}

func NewUserStore() *UserStore {
	return &UserStore{
		profiles: make(map[string]domain.Profile),
		creds:    make(map[string]credentials),
	}
}

func (s *UserStore) CreateUser(_ context.Context, p domain.Profile, hash, salt []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.UserID]; ok {
		return domain.ErrAlreadyExists
	}
	for _, c := range s.creds {
		if c.email == p.Email {
			return domain.ErrAlreadyExists
		}
	}
	p.Slots.UserID = p.UserID
	s.profiles[p.UserID] = cloneProfile(p)
	s.creds[p.UserID] = credentials{email: p.Email, hash: hash, salt: salt}
	return nil
}

func (s *UserStore) GetProfile(_ context.Context, userID string) (domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return domain.Profile{}, domain.ErrNotFound
	}
	return cloneProfile(p), nil
}

func (s *UserStore) ListProfiles(_ context.Context, role domain.Role) ([]domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		if role == "" || p.Role == role {
			out = append(out, cloneProfile(p))
		}
	}
	return out, nil
}

func (s *UserStore) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[userID]; !ok {
		return domain.ErrNotFound
	}
	delete(s.profiles, userID)
	delete(s.creds, userID)
	return nil
}

func (s *UserStore) UpdatePassword(_ context.Context, userID string, hash, salt []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[userID]
	if !ok {
		return domain.ErrNotFound
	}
	c.hash, c.salt = hash, salt
	s.creds[userID] = c
	return nil
}

// Credentials returns the profile and stored hash and salt for email.
func (s *UserStore) Credentials(_ context.Context, email string) (domain.Profile, []byte, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, c := range s.creds {
		if c.email == email {
			return cloneProfile(s.profiles[id]), c.hash, c.salt, nil
		}
	}
	return domain.Profile{}, nil, nil, domain.ErrNotFound
}

func (s *UserStore) GetSlots(ctx context.Context, userID string) (domain.DeviceSlots, error) {
	p, err := s.GetProfile(ctx, userID)
	if err != nil {
		return domain.DeviceSlots{}, err
	}
	return p.Slots, nil
}

func (s *UserStore) AppendDevice(_ context.Context, userID string, kind domain.DeviceType, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Slots.Contains(kind, deviceID) || !p.Slots.HasRoom(kind) {
		return domain.ErrSlotConflict
	}
	ids := append(append([]string{}, p.Slots.IDs(kind)...), deviceID)
	setIDs(&p.Slots, kind, ids)
	s.profiles[userID] = p
	return nil
}

func (s *UserStore) ReplaceDevice(_ context.Context, userID string, kind domain.DeviceType, oldID, newID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return domain.ErrNotFound
	}
	idx := slice.Index(p.Slots.IDs(kind), oldID)
	if idx < 0 || p.Slots.Contains(kind, newID) {
		return domain.ErrSlotConflict
	}
	ids := slice.Map(p.Slots.IDs(kind), func(i int, id string) string {
		if i == idx {
			return newID
		}
		return id
	})
	setIDs(&p.Slots, kind, ids)
	s.profiles[userID] = p
	return nil
}

func (s *UserStore) ResetDevices(_ context.Context, userID string, kinds ...domain.DeviceType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return domain.ErrNotFound
	}
	for _, kind := range kinds {
		setIDs(&p.Slots, kind, []string{})
	}
	s.profiles[userID] = p
	return nil
}

func setIDs(slots *domain.DeviceSlots, kind domain.DeviceType, ids []string) {
	if kind == domain.DeviceMobile {
		slots.MobileDeviceIDs = ids
		return
	}
	slots.PCDeviceIDs = ids
}

func cloneProfile(p domain.Profile) domain.Profile {
	p.Slots.PCDeviceIDs = append([]string{}, p.Slots.PCDeviceIDs...)
	p.Slots.MobileDeviceIDs = append([]string{}, p.Slots.MobileDeviceIDs...)
	return p
}
