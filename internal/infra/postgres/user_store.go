package postgres

import (
	"context"
	"fmt"

	"avtotest-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// UserStore keeps profiles (with device slots), roles and credentials.
type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

const profileColumns = `p.user_id, p.full_name, p.email, r.role, p.pc_device_ids, p.mobile_device_ids, p.pc_limit, p.mobile_limit, p.created_at`

func scanProfile(row pgx.Row) (domain.Profile, error) {
	var p domain.Profile
	err := row.Scan(&p.UserID, &p.FullName, &p.Email, &p.Role,
		&p.Slots.PCDeviceIDs, &p.Slots.MobileDeviceIDs, &p.Slots.PCLimit, &p.Slots.MobileLimit, &p.CreatedAt)
	p.Slots.UserID = p.UserID
	return p, err
}

// CreateUser writes the profile, role and credentials together.
func (s *UserStore) CreateUser(ctx context.Context, p domain.Profile, hash, salt []byte) error {
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO profiles (user_id, full_name, email, pc_device_ids, mobile_device_ids, pc_limit, mobile_limit, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			p.UserID, p.FullName, p.Email, nonNil(p.Slots.PCDeviceIDs), nonNil(p.Slots.MobileDeviceIDs),
			p.Slots.PCLimit, p.Slots.MobileLimit, p.CreatedAt,
		); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO user_roles (user_id, role) VALUES ($1, $2)`, p.UserID, string(p.Role)); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO auth_users (user_id, password_hash, password_salt) VALUES ($1, $2, $3)`, p.UserID, hash, salt)
		return err
	})
	return mapErr(err, domain.ErrNotFound)
}

func (s *UserStore) GetProfile(ctx context.Context, userID string) (domain.Profile, error) {
	p, err := scanProfile(s.pool.QueryRow(ctx, `
		SELECT `+profileColumns+`
		FROM profiles p JOIN user_roles r ON r.user_id = p.user_id
		WHERE p.user_id=$1`, userID))
	return p, mapErr(err, domain.ErrNotFound)
}

// ListProfiles returns profiles with role, or all profiles when role is empty.
func (s *UserStore) ListProfiles(ctx context.Context, role domain.Role) ([]domain.Profile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+profileColumns+`
		FROM profiles p JOIN user_roles r ON r.user_id = p.user_id
		WHERE $1 = '' OR r.role = $1
		ORDER BY p.created_at DESC`, string(role))
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []domain.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// DeleteUser removes the profile; role and credentials cascade.
func (s *UserStore) DeleteUser(ctx context.Context, userID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM profiles WHERE user_id=$1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *UserStore) UpdatePassword(ctx context.Context, userID string, hash, salt []byte) error {
	tag, err := s.pool.Exec(ctx, `UPDATE auth_users SET password_hash=$2, password_salt=$3 WHERE user_id=$1`, userID, hash, salt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Credentials returns the profile and stored hash and salt for email.
func (s *UserStore) Credentials(ctx context.Context, email string) (domain.Profile, []byte, []byte, error) {
	var (
		p          domain.Profile
		hash, salt []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT `+profileColumns+`, a.password_hash, a.password_salt
		FROM profiles p
		JOIN user_roles r ON r.user_id = p.user_id
		JOIN auth_users a ON a.user_id = p.user_id
		WHERE p.email=$1`, email).
		Scan(&p.UserID, &p.FullName, &p.Email, &p.Role,
			&p.Slots.PCDeviceIDs, &p.Slots.MobileDeviceIDs, &p.Slots.PCLimit, &p.Slots.MobileLimit, &p.CreatedAt,
			&hash, &salt)
	if err != nil {
		return domain.Profile{}, nil, nil, mapErr(err, domain.ErrNotFound)
	}
	p.Slots.UserID = p.UserID
	return p, hash, salt, nil
}

func (s *UserStore) GetSlots(ctx context.Context, userID string) (domain.DeviceSlots, error) {
	var slots domain.DeviceSlots
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, pc_device_ids, mobile_device_ids, pc_limit, mobile_limit
		FROM profiles WHERE user_id=$1`, userID).
		Scan(&slots.UserID, &slots.PCDeviceIDs, &slots.MobileDeviceIDs, &slots.PCLimit, &slots.MobileLimit)
	return slots, mapErr(err, domain.ErrNotFound)
}

// slotColumns returns the id-set and limit columns of kind.
func slotColumns(kind domain.DeviceType) (ids, limit string) {
	if kind == domain.DeviceMobile {
		return "mobile_device_ids", "mobile_limit"
	}
	return "pc_device_ids", "pc_limit"
}

// AppendDevice binds deviceID only while the set has room and does not hold it yet.
func (s *UserStore) AppendDevice(ctx context.Context, userID string, kind domain.DeviceType, deviceID string) error {
	ids, limit := slotColumns(kind)
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE profiles SET %[1]s = array_append(%[1]s, $2)
		WHERE user_id=$1 AND cardinality(%[1]s) < %[2]s AND NOT ($2 = ANY(%[1]s))`, ids, limit),
		userID, deviceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSlotConflict
	}
	return nil
}

// ReplaceDevice swaps oldID for newID in place, keeping the set's size.
func (s *UserStore) ReplaceDevice(ctx context.Context, userID string, kind domain.DeviceType, oldID, newID string) error {
	ids, _ := slotColumns(kind)
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE profiles SET %[1]s = array_replace(%[1]s, $2, $3)
		WHERE user_id=$1 AND $2 = ANY(%[1]s) AND NOT ($3 = ANY(%[1]s))`, ids),
		userID, oldID, newID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSlotConflict
	}
	return nil
}

func (s *UserStore) ResetDevices(ctx context.Context, userID string, kinds ...domain.DeviceType) error {
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		for _, kind := range kinds {
			ids, _ := slotColumns(kind)
			tag, err := tx.Exec(ctx, fmt.Sprintf(`UPDATE profiles SET %s = '{}' WHERE user_id=$1`, ids), userID)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return domain.ErrNotFound
			}
		}
		return nil
	})
	return err
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
