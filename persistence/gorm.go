package persistence

import (
	"errors"
	"fmt"
	"time"

	"github.com/hovercast/hovercast-coordinator/config"
	"github.com/hovercast/hovercast-coordinator/types"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormPersist struct {
	db *gorm.DB
}

func NewPersister(cfg *config.Config) (Persister, error) {
	db, err := setupGormDB(cfg)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, nil // no or wrong configuration, ignore the persister
	}
	p := GormPersist{db: db}
	return &p, nil
}

func setupGormDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, nil
	}
	var dial gorm.Dialector
	switch cfg.PersistenceConfig.Type {
	case "postgres":
		dial = postgres.Open(cfg.PersistenceConfig.DSN)

	case "sqlite":
		dial = sqlite.Open(cfg.PersistenceConfig.DSN)

	default:
		return nil, fmt.Errorf("invalid persistence configuration")
	}
	db, err := gorm.Open(dial, &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if cfg.PersistenceConfig.Type == "sqlite" {
		// go-sqlite3 supports a single writer
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	db.Migrator().AutoMigrate(&types.User{}, &types.Room{}, &types.Participant{}, &types.ModeratorEntry{}, &types.Ban{}, &types.Report{})
	return db, nil
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.ErrNotFound(what + " not found")
	}
	return err
}

func (p *GormPersist) StoreUser(user types.User) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&user).Error
}

func (p *GormPersist) GetUser(user *types.User) error {
	return notFound(p.db.First(user).Error, "user")
}

func (p *GormPersist) GetUsers() ([]*types.User, error) {
	users := make([]*types.User, 0)
	err := p.db.Find(&users).Error
	return users, err
}

func (p *GormPersist) DeleteUser(user *types.User) error {
	return p.db.Delete(user).Error
}

func (p *GormPersist) StoreRoom(room types.Room) error {
	return p.db.Omit("Users", "Moderators").Clauses(clause.OnConflict{UpdateAll: true}).Create(&room).Error
}

func (p *GormPersist) GetRoom(room *types.Room) error {
	return notFound(p.db.Preload("Users").Preload("Moderators").First(room).Error, "room")
}

func (p *GormPersist) GetRooms() ([]*types.Room, error) {
	rooms := make([]*types.Room, 0)
	err := p.db.Find(&rooms).Error
	return rooms, err
}

func (p *GormPersist) DeleteRoom(room *types.Room) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_name = ?", room.Name).Delete(&types.Participant{}).Error; err != nil {
			return err
		}
		if err := tx.Where("room_name = ?", room.Name).Delete(&types.ModeratorEntry{}).Error; err != nil {
			return err
		}
		return tx.Delete(room).Error
	})
}

func (p *GormPersist) DeleteRoomIfEmpty(roomName string) (bool, *types.Room, error) {
	deleted := false
	room := &types.Room{Name: roomName}
	err := p.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(room).Error; err != nil {
			return err
		}
		if room.OwnerId != nil && *room.OwnerId != "" {
			return nil // owned rooms persist across emptiness
		}
		var count int64
		if err := tx.Model(&types.Participant{}).Where("room_name = ?", roomName).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		if err := tx.Where("room_name = ?", roomName).Delete(&types.ModeratorEntry{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(room).Error; err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, nil, notFound(err, "room")
	}
	return deleted, room, nil
}

func (p *GormPersist) AddParticipant(participant *types.Participant) error {
	return p.db.Create(participant).Error
}

// lockRoom takes the room row for writing, serializing the color
// read-pick-write across concurrent transactions.
func lockRoom(tx *gorm.DB, roomName string) error {
	return tx.Model(&types.Room{}).Where("name = ?", roomName).Update("updated_at", time.Now()).Error
}

func usedColors(tx *gorm.DB, roomName string) ([]string, error) {
	colors := make([]string, 0)
	err := tx.Model(&types.Participant{}).Where("room_name = ?", roomName).Distinct().Pluck("color", &colors).Error
	return colors, err
}

func (p *GormPersist) AddParticipantPickColor(participant *types.Participant, pick func(used []string) string) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		if err := lockRoom(tx, participant.RoomName); err != nil {
			return err
		}
		used, err := usedColors(tx, participant.RoomName)
		if err != nil {
			return err
		}
		participant.Color = pick(used)
		return tx.Create(participant).Error
	})
}

func (p *GormPersist) RemoveParticipant(roomName, connectionId string) (*types.Participant, error) {
	var participant *types.Participant
	err := p.db.Transaction(func(tx *gorm.DB) error {
		found := types.Participant{}
		err := tx.Where("room_name = ? AND connection_id = ?", roomName, connectionId).First(&found).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := tx.Delete(&found).Error; err != nil {
			return err
		}
		participant = &found
		return nil
	})
	return participant, err
}

func (p *GormPersist) FindParticipantByListId(roomName, listId string) (*types.Participant, error) {
	participant := types.Participant{}
	err := p.db.Where("room_name = ? AND list_id = ?", roomName, listId).First(&participant).Error
	if err != nil {
		return nil, notFound(err, "participant")
	}
	return &participant, nil
}

func (p *GormPersist) GetParticipants(roomName string) ([]types.Participant, error) {
	participants := make([]types.Participant, 0)
	err := p.db.Where("room_name = ?", roomName).Order("id").Find(&participants).Error
	return participants, err
}

func (p *GormPersist) UpdateParticipantHandle(roomName, connectionId, handle string) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&types.Participant{}).
			Where("room_name = ? AND handle = ? AND connection_id <> ?", roomName, handle, connectionId).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return types.ErrConflict("handle already taken")
		}
		res := tx.Model(&types.Participant{}).
			Where("room_name = ? AND connection_id = ?", roomName, connectionId).
			Update("handle", handle)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return types.ErrNotFound("participant not found")
		}
		return nil
	})
}

func (p *GormPersist) RecolorParticipant(roomName, connectionId string, pick func(used []string) string) (string, error) {
	color := ""
	err := p.db.Transaction(func(tx *gorm.DB) error {
		if err := lockRoom(tx, roomName); err != nil {
			return err
		}
		used, err := usedColors(tx, roomName)
		if err != nil {
			return err
		}
		color = pick(used)
		res := tx.Model(&types.Participant{}).
			Where("room_name = ? AND connection_id = ?", roomName, connectionId).
			Update("color", color)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return types.ErrNotFound("participant not found")
		}
		return nil
	})
	return color, err
}

func (p *GormPersist) SetBroadcasting(roomName, listId string, broadcasting bool) error {
	res := p.db.Model(&types.Participant{}).
		Where("room_name = ? AND list_id = ?", roomName, listId).
		Update("is_broadcasting", broadcasting)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return types.ErrNotFound("participant not found")
	}
	return nil
}

func (p *GormPersist) AddModerator(entry *types.ModeratorEntry) error {
	return p.db.Create(entry).Error
}

func (p *GormPersist) RemoveModerator(roomName string, id types.Identity) error {
	q := p.db.Where("room_name = ?", roomName)
	switch id.Kind {
	case types.IdentityAccount:
		q = q.Where("account_id = ?", id.AccountId)
	case types.IdentitySession:
		q = q.Where("session_token = ?", id.SessionId)
	default:
		return types.ErrInvalidInput(types.ErrorContextAlert, "invalid moderator identity")
	}
	return q.Delete(&types.ModeratorEntry{}).Error
}

func (p *GormPersist) StoreBan(ban types.Ban) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&ban).Error
}

func (p *GormPersist) ActiveBans(id types.Identity, now time.Time) ([]types.Ban, error) {
	bans := make([]types.Ban, 0)
	match := p.db.Where("1 = 0")
	if id.Kind == types.IdentityAccount && id.AccountId != "" {
		match = match.Or("account_id = ?", id.AccountId)
	}
	if id.SessionId != "" {
		match = match.Or("session_id = ?", id.SessionId)
	}
	if id.IP != "" {
		match = match.Or("ip = ?", id.IP)
	}
	err := p.db.Where("expires_at > ?", now).Where(match).Find(&bans).Error
	return bans, err
}

func (p *GormPersist) GetBans() ([]types.Ban, error) {
	bans := make([]types.Ban, 0)
	err := p.db.Order("created_at DESC").Find(&bans).Error
	return bans, err
}

func (p *GormPersist) StoreReport(report types.Report) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&report).Error
}

func (p *GormPersist) GetReport(report *types.Report) error {
	return notFound(p.db.First(report).Error, "report")
}

func (p *GormPersist) ResolveReport(reportId, resolvedBy string) error {
	res := p.db.Model(&types.Report{}).
		Where("id = ?", reportId).
		Updates(map[string]interface{}{
			"resolved":    true,
			"resolved_by": resolvedBy,
			"resolved_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return types.ErrNotFound("report not found")
	}
	return nil
}

func (p *GormPersist) Close() error {
	return nil
}
