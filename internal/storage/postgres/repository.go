package postgres

import (
	"context"
	"fmt"

	"github.com/dkeye/Moderation/internal/core"
	"github.com/dkeye/Moderation/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	db *pgxpool.Pool
}

var _ core.MemberStore = (*Repository)(nil)

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) SaveRoom(ctx context.Context, room domain.Room) error {
	query := `
		INSERT INTO rooms (id, name, is_direct)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    is_direct = EXCLUDED.is_direct
	`
	if _, err := r.db.Exec(ctx, query, string(room.ID), string(room.Name), room.IsDirect); err != nil {
		return fmt.Errorf("save room %s: %w", room.ID, err)
	}
	return nil
}

// DeleteRoom removes the room; its members go with it.
func (r *Repository) DeleteRoom(ctx context.Context, id domain.RoomID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, string(id)); err != nil {
		return fmt.Errorf("delete room %s: %w", id, err)
	}
	return nil
}

// SaveMember upserts the member. The first insert fixes its list position.
func (r *Repository) SaveMember(ctx context.Context, roomID domain.RoomID, m domain.Member) error {
	query := `
		INSERT INTO room_members (room_id, user_id, display_name, avatar_url, membership, power_level)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (room_id, user_id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    avatar_url = EXCLUDED.avatar_url,
		    membership = EXCLUDED.membership,
		    power_level = EXCLUDED.power_level,
		    updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query,
		string(roomID), string(m.UserID), m.DisplayName, m.AvatarURL,
		m.Membership.String(), m.PowerLevel,
	)
	if err != nil {
		return fmt.Errorf("save member %s of %s: %w", m.UserID, roomID, err)
	}
	return nil
}

func (r *Repository) LoadRooms(ctx context.Context) ([]domain.Room, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, is_direct FROM rooms ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("load rooms: %w", err)
	}
	rooms, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Room, error) {
		var (
			room     domain.Room
			id, name string
		)
		if err := row.Scan(&id, &name, &room.IsDirect); err != nil {
			return domain.Room{}, err
		}
		room.ID = domain.RoomID(id)
		room.Name = domain.RoomName(name)
		return room, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan rooms: %w", err)
	}
	return rooms, nil
}

func (r *Repository) LoadMembers(ctx context.Context, roomID domain.RoomID) ([]domain.Member, error) {
	query := `
		SELECT user_id, display_name, avatar_url, membership, power_level
		FROM room_members
		WHERE room_id = $1
		ORDER BY position
	`
	rows, err := r.db.Query(ctx, query, string(roomID))
	if err != nil {
		return nil, fmt.Errorf("load members of %s: %w", roomID, err)
	}
	members, err := pgx.CollectRows(rows, scanMember)
	if err != nil {
		return nil, fmt.Errorf("scan members of %s: %w", roomID, err)
	}
	return members, nil
}

func scanMember(row pgx.CollectableRow) (domain.Member, error) {
	var (
		m                  domain.Member
		userID, membership string
	)
	if err := row.Scan(&userID, &m.DisplayName, &m.AvatarURL, &membership, &m.PowerLevel); err != nil {
		return domain.Member{}, err
	}
	parsed, err := domain.ParseMembership(membership)
	if err != nil {
		return domain.Member{}, err
	}
	m.UserID = domain.UserID(userID)
	m.Membership = parsed
	return m, nil
}
