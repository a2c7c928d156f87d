package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/floor-ops-backend/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const (
	displayOrder = "CASE severity WHEN 'CRITICAL' THEN 4 WHEN 'HIGH' THEN 3 WHEN 'MEDIUM' THEN 2 WHEN 'LOW' THEN 1 ELSE 0 END DESC, created_at DESC"
	statusOrder  = "CASE status WHEN 'ACTIVE' THEN 0 WHEN 'IN_PROGRESS' THEN 1 ELSE 2 END ASC, " + displayOrder
	resolvedDesc = "resolved_at DESC NULLS LAST, created_at DESC"
)

type GormStore struct {
	db *gorm.DB
}

// OpenPostgres connects with the pgx-backed gorm driver.
func OpenPostgres(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewGormStore(db), nil
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&models.User{},
		&models.Tournament{},
		&models.TournamentMember{},
		&models.Emergency{},
		&models.ProductionStatus{},
		&models.TeamMember{},
		&models.Message{},
		&models.ChecklistTemplate{},
		&models.ChecklistItem{},
		&models.ChecklistCheck{},
	)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) Tx(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) CreateEmergency(ctx context.Context, e *models.Emergency) error {
	return s.db.WithContext(ctx).Create(e).Error
}

func (s *GormStore) GetEmergency(ctx context.Context, tournamentID, id string) (*models.Emergency, error) {
	var e models.Emergency
	err := s.db.WithContext(ctx).
		Where("id = ? AND tournament_id = ?", id, tournamentID).
		Take(&e).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

func (s *GormStore) SaveEmergency(ctx context.Context, e *models.Emergency) error {
	return s.db.WithContext(ctx).Save(e).Error
}

func (s *GormStore) DeleteEmergency(ctx context.Context, tournamentID, id string) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND tournament_id = ?", id, tournamentID).
		Delete(&models.Emergency{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ListEmergencies(ctx context.Context, f EmergencyFilter) ([]models.Emergency, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Emergency{}).Where("tournament_id = ?", f.TournamentID)
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Severity != "" {
		q = q.Where("severity = ?", f.Severity)
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since)
	}
	if f.Synthetic != nil {
		q = q.Where("synthetic = ?", *f.Synthetic)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	switch f.Order {
	case OrderStatusFirst:
		q = q.Order(statusOrder)
	case OrderResolvedDesc:
		q = q.Order(resolvedDesc)
	default:
		q = q.Order(displayOrder)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var list []models.Emergency
	if err := q.Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (s *GormStore) CountQualifying(ctx context.Context, tournamentID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Emergency{}).
		Where("tournament_id = ?", tournamentID).
		Where("status IN ?", models.OpenStatuses).
		Where("severity IN ?", []models.Severity{models.SeverityHigh, models.SeverityCritical}).
		Count(&n).Error
	return n, err
}

func (s *GormStore) GetProductionStatus(ctx context.Context, tournamentID string) (*models.ProductionStatus, error) {
	var st models.ProductionStatus
	if err := s.db.WithContext(ctx).Where("tournament_id = ?", tournamentID).Take(&st).Error; err != nil {
		return nil, notFound(err)
	}
	return &st, nil
}

// SaveProductionStatus upserts by tournament id.
func (s *GormStore) SaveProductionStatus(ctx context.Context, st *models.ProductionStatus) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tournament_id"}},
		UpdateAll: true,
	}).Create(st).Error
}

func (s *GormStore) ActiveMembership(ctx context.Context, userID string) (*models.TournamentMember, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInactiveUser
		}
		return nil, err
	}
	if !u.IsActive {
		return nil, ErrInactiveUser
	}

	var m models.TournamentMember
	err := s.db.WithContext(ctx).Model(&models.TournamentMember{}).
		Select("tournament_members.*").
		Joins("JOIN tournaments ON tournaments.id = tournament_members.tournament_id").
		Where("tournament_members.user_id = ? AND tournaments.status = ?", userID, models.TournamentActive).
		Take(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (s *GormStore) GetMembership(ctx context.Context, tournamentID, userID string) (*models.TournamentMember, error) {
	var m models.TournamentMember
	err := s.db.WithContext(ctx).
		Where("tournament_id = ? AND user_id = ?", tournamentID, userID).
		Take(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (s *GormStore) GetTeamMember(ctx context.Context, tournamentID, memberID string) (*models.TeamMember, error) {
	var m models.TeamMember
	err := s.db.WithContext(ctx).
		Where("id = ? AND tournament_id = ?", memberID, tournamentID).
		Take(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (s *GormStore) SaveTeamMember(ctx context.Context, m *models.TeamMember) error {
	return s.db.WithContext(ctx).Save(m).Error
}

func (s *GormStore) SetMemberStatusByUser(ctx context.Context, tournamentID, userID string, status models.MemberStatus) ([]models.TeamMember, error) {
	err := s.db.WithContext(ctx).Model(&models.TeamMember{}).
		Where("tournament_id = ? AND user_id = ?", tournamentID, userID).
		Updates(map[string]any{"status": status, "updated_at": time.Now()}).Error
	if err != nil {
		return nil, err
	}
	return s.ListMembersByUsers(ctx, tournamentID, []string{userID})
}

func (s *GormStore) CountMembersByStatus(ctx context.Context, tournamentID string) (map[models.MemberStatus]int64, error) {
	var rows []struct {
		Status models.MemberStatus
		Count  int64
	}
	err := s.db.WithContext(ctx).Model(&models.TeamMember{}).
		Select("status, count(*) AS count").
		Where("tournament_id = ?", tournamentID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[models.MemberStatus]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}

func (s *GormStore) ListMembersByUsers(ctx context.Context, tournamentID string, userIDs []string) ([]models.TeamMember, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var list []models.TeamMember
	err := s.db.WithContext(ctx).
		Where("tournament_id = ? AND user_id IN ?", tournamentID, userIDs).
		Find(&list).Error
	return list, err
}

func (s *GormStore) CreateMessage(ctx context.Context, m *models.Message) error {
	return s.db.WithContext(ctx).Create(m).Error
}

func (s *GormStore) GetChecklistItem(ctx context.Context, tournamentID, itemID string) (*models.ChecklistItem, error) {
	var item models.ChecklistItem
	err := s.db.WithContext(ctx).Model(&models.ChecklistItem{}).
		Select("checklist_items.*").
		Joins("JOIN checklist_templates ON checklist_templates.id = checklist_items.template_id").
		Where("checklist_items.id = ? AND checklist_templates.tournament_id = ?", itemID, tournamentID).
		Take(&item).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

func (s *GormStore) UpsertChecklistCheck(ctx context.Context, c *models.ChecklistCheck) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "item_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_checked", "checked_at"}),
	}).Create(c).Error
}

func (s *GormStore) ListActiveTemplates(ctx context.Context, tournamentID string) ([]models.ChecklistTemplate, error) {
	var list []models.ChecklistTemplate
	err := s.db.WithContext(ctx).
		Where("tournament_id = ? AND is_active = ?", tournamentID, true).
		Order("name ASC").
		Find(&list).Error
	return list, err
}

func (s *GormStore) CountItemsByTemplate(ctx context.Context, templateIDs []string) (map[string]int64, error) {
	return s.countByTemplate(ctx, s.db.WithContext(ctx).Model(&models.ChecklistItem{}).
		Where("template_id IN ?", templateIDs), templateIDs)
}

func (s *GormStore) CountChecksByTemplate(ctx context.Context, templateIDs []string, day time.Time) (map[string]int64, error) {
	return s.countByTemplate(ctx, s.db.WithContext(ctx).Model(&models.ChecklistCheck{}).
		Where("template_id IN ? AND date = ? AND is_checked = ?", templateIDs, Day(day), true), templateIDs)
}

func (s *GormStore) countByTemplate(_ context.Context, q *gorm.DB, templateIDs []string) (map[string]int64, error) {
	out := make(map[string]int64, len(templateIDs))
	if len(templateIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		TemplateID string
		Count      int64
	}
	if err := q.Select("template_id, count(*) AS count").Group("template_id").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.TemplateID] = r.Count
	}
	return out, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
