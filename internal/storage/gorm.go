package storage

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"strconv"
	"time"

	"ems3/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type Server struct {
	ID        string `gorm:"primaryKey"`
	Name      string
	Dir       string
	CoreFile  string
	JavaPath  string
	JavaArgs  string
	Port      int
	CoreType  string
	CreatedAt time.Time
}

type ScheduledTask struct {
	ID           string `gorm:"primaryKey"`
	Name         string
	Action       string
	ServerID     string `gorm:"index"`
	TriggerKind  string
	TriggerValue string
	Command      string
	KeepBackups  int
	LastRun      *time.Time
	LastError    string
	CreatedAt    time.Time
}

type Setting struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

type QuickCommand struct {
	Name        string `gorm:"primaryKey"`
	Template    string
	Description string
	CreatedAt   time.Time
}

type JavaPath struct {
	Path    string `gorm:"primaryKey"`
	Version string
	Major   int
	AddedAt time.Time
}

type GormStore struct {
	db *gorm.DB
}

var _ domain.Repository = (*GormStore)(nil)

func NewGormStore(path string) (*GormStore, error) {
	newLogger := gormlogger.New(
		log.Default(),
		gormlogger.Config{
			IgnoreRecordNotFoundError: true,
			LogLevel:                  gormlogger.Error,
		},
	)

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: newLogger})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(&Server{}, &ScheduledTask{}, &Setting{}, &QuickCommand{}, &JavaPath{})
	if err != nil {
		return nil, fmt.Errorf("error migrating database: %w", err)
	}

	store := &GormStore{db: db}

	if err := store.initDefaultSettings(); err != nil {
		return nil, fmt.Errorf("error initializing settings: %w", err)
	}
	if err := store.seedQuickCommands(); err != nil {
		return nil, fmt.Errorf("error seeding quick commands: %w", err)
	}

	return store, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) initDefaultSettings() error {
	defaults := map[string]string{
		"port_range_start": "25565",
		"port_range_end":   "25600",
	}

	for key, value := range defaults {
		var setting Setting
		result := s.db.First(&setting, "key = ?", key)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				if err := s.db.Create(&Setting{Key: key, Value: value}).Error; err != nil {
					return err
				}
			} else {
				return result.Error
			}
		}
	}

	return nil
}

func toServerModel(srv *domain.ServerConfig) *Server {
	return &Server{
		ID:        srv.ID,
		Name:      srv.Name,
		Dir:       srv.Dir,
		CoreFile:  srv.CoreFile,
		JavaPath:  srv.JavaPath,
		JavaArgs:  srv.JavaArgs,
		Port:      srv.Port,
		CoreType:  srv.CoreType,
		CreatedAt: srv.CreatedAt,
	}
}

func (m Server) toDomain() domain.ServerConfig {
	return domain.ServerConfig{
		ID:        m.ID,
		Name:      m.Name,
		Dir:       m.Dir,
		CoreFile:  m.CoreFile,
		JavaPath:  m.JavaPath,
		JavaArgs:  m.JavaArgs,
		Port:      m.Port,
		CoreType:  m.CoreType,
		CreatedAt: m.CreatedAt,
	}
}

func (s *GormStore) SaveServer(srv *domain.ServerConfig) error {
	return s.db.Create(toServerModel(srv)).Error
}

func (s *GormStore) UpdateServer(id string, patch domain.ServerPatch) error {
	if patch.Empty() {
		return errors.New("no fields to update")
	}

	updates := make(map[string]interface{})
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.JavaPath != nil {
		updates["java_path"] = *patch.JavaPath
	}
	if patch.JavaArgs != nil {
		updates["java_args"] = *patch.JavaArgs
	}
	if patch.Port != nil {
		updates["port"] = *patch.Port
	}

	return s.updateServer(id, updates)
}

func (s *GormStore) UpdateServerCore(id, coreFile, coreType string) error {
	return s.updateServer(id, map[string]interface{}{
		"core_file": coreFile,
		"core_type": coreType,
	})
}

func (s *GormStore) updateServer(id string, updates map[string]interface{}) error {
	result := s.db.Model(&Server{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: server %s", domain.ErrNotFound, id)
	}
	return nil
}

func (s *GormStore) ListServers() ([]domain.ServerConfig, error) {
	var gormServers []Server
	if err := s.db.Order("created_at").Find(&gormServers).Error; err != nil {
		return nil, err
	}

	servers := make([]domain.ServerConfig, 0, len(gormServers))
	for _, gs := range gormServers {
		servers = append(servers, gs.toDomain())
	}
	return servers, nil
}

// GetServerByID returns nil without an error when no server has the id.
func (s *GormStore) GetServerByID(id string) (*domain.ServerConfig, error) {
	var gormServer Server
	result := s.db.First(&gormServer, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("error querying server: %w", result.Error)
	}

	srv := gormServer.toDomain()
	return &srv, nil
}

func (s *GormStore) DeleteServer(id string) error {
	return s.db.Delete(&Server{}, "id = ?", id).Error
}

func toTaskModel(t *domain.ScheduledTask) *ScheduledTask {
	return &ScheduledTask{
		ID:           t.ID,
		Name:         t.Name,
		Action:       string(t.Action),
		ServerID:     t.ServerID,
		TriggerKind:  string(t.Trigger.Kind),
		TriggerValue: t.Trigger.Value(),
		Command:      t.Command,
		KeepBackups:  t.KeepBackups,
		LastRun:      t.LastRun,
		LastError:    t.LastError,
		CreatedAt:    t.CreatedAt,
	}
}

func (m ScheduledTask) toDomain() (domain.ScheduledTask, error) {
	trigger, err := domain.ParseTrigger(m.TriggerKind, m.TriggerValue)
	if err != nil {
		return domain.ScheduledTask{}, fmt.Errorf("task %s: %w", m.ID, err)
	}
	return domain.ScheduledTask{
		ID:          m.ID,
		Name:        m.Name,
		Action:      domain.TaskAction(m.Action),
		ServerID:    m.ServerID,
		Trigger:     trigger,
		Command:     m.Command,
		KeepBackups: m.KeepBackups,
		LastRun:     m.LastRun,
		LastError:   m.LastError,
		CreatedAt:   m.CreatedAt,
	}, nil
}

func (s *GormStore) SaveTask(task *domain.ScheduledTask) error {
	return s.db.Create(toTaskModel(task)).Error
}

func (s *GormStore) UpdateTask(task *domain.ScheduledTask) error {
	return s.db.Save(toTaskModel(task)).Error
}

func (s *GormStore) RecordTaskRun(id string, at time.Time, runErr string) error {
	return s.db.Model(&ScheduledTask{}).Where("id = ?", id).Updates(map[string]interface{}{
		"last_run":   at,
		"last_error": runErr,
	}).Error
}

func (s *GormStore) ListTasks() ([]domain.ScheduledTask, error) {
	var rows []ScheduledTask
	if err := s.db.Order("created_at").Find(&rows).Error; err != nil {
		return nil, err
	}

	// A row with an unparseable trigger must not hide the others.
	tasks := make([]domain.ScheduledTask, 0, len(rows))
	for _, row := range rows {
		task, err := row.toDomain()
		if err != nil {
			slog.Warn("skipping stored task", "component", "storage", "task", row.ID, "err", err)
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (s *GormStore) DeleteTask(id string) error {
	return s.db.Delete(&ScheduledTask{}, "id = ?", id).Error
}

func (s *GormStore) GetSetting(key string) (string, error) {
	var setting Setting
	result := s.db.First(&setting, "key = ?", key)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("setting not found: %s", key)
		}
		return "", result.Error
	}
	return setting.Value, nil
}

func (s *GormStore) SetSetting(key string, value string) error {
	var setting Setting
	result := s.db.First(&setting, "key = ?", key)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return s.db.Create(&Setting{Key: key, Value: value}).Error
		}
		return result.Error
	}

	return s.db.Model(&setting).Update("value", value).Error
}

func (s *GormStore) GetPortRange() (int, int, error) {
	startStr, err := s.GetSetting("port_range_start")
	if err != nil {
		return 0, 0, err
	}

	endStr, err := s.GetSetting("port_range_end")
	if err != nil {
		return 0, 0, err
	}

	start, err := strconv.Atoi(startStr)
	if err != nil {
		return 0, 0, fmt.Errorf("error parsing port_range_start: %w", err)
	}

	end, err := strconv.Atoi(endStr)
	if err != nil {
		return 0, 0, fmt.Errorf("error parsing port_range_end: %w", err)
	}

	return start, end, nil
}

func (s *GormStore) SetPortRange(start int, end int) error {
	if start <= 0 || end <= 0 || start > end {
		return fmt.Errorf("invalid port range: %d-%d", start, end)
	}

	if err := s.SetSetting("port_range_start", strconv.Itoa(start)); err != nil {
		return err
	}

	return s.SetSetting("port_range_end", strconv.Itoa(end))
}

const quickCommandsSeeded = "quick_commands_seeded"

// seedQuickCommands installs the default quick commands once. Deleting them
// later does not bring them back.
func (s *GormStore) seedQuickCommands() error {
	if _, err := s.GetSetting(quickCommandsSeeded); err == nil {
		return nil
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		base := time.Now()
		for i, qc := range domain.DefaultQuickCommands {
			row := QuickCommand{
				Name:        qc.Name,
				Template:    qc.Template,
				Description: qc.Description,
				CreatedAt:   base.Add(time.Duration(i) * time.Millisecond),
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
				return err
			}
		}
		return tx.Create(&Setting{Key: quickCommandsSeeded, Value: "1"}).Error
	})
}

func (s *GormStore) ListQuickCommands() ([]domain.QuickCommand, error) {
	var rows []QuickCommand
	if err := s.db.Order("created_at, name").Find(&rows).Error; err != nil {
		return nil, err
	}

	commands := make([]domain.QuickCommand, 0, len(rows))
	for _, row := range rows {
		commands = append(commands, domain.QuickCommand{
			Name:        row.Name,
			Template:    row.Template,
			Description: row.Description,
		})
	}
	return commands, nil
}

func (s *GormStore) SaveQuickCommand(qc domain.QuickCommand) error {
	row := QuickCommand{
		Name:        qc.Name,
		Template:    qc.Template,
		Description: qc.Description,
		CreatedAt:   time.Now(),
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"template", "description"}),
	}).Create(&row).Error
}

func (s *GormStore) DeleteQuickCommand(name string) error {
	result := s.db.Delete(&QuickCommand{}, "name = ?", name)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: quick command %s", domain.ErrNotFound, name)
	}
	return nil
}

func (s *GormStore) ListJavaPaths() ([]domain.JavaInstall, error) {
	var rows []JavaPath
	if err := s.db.Order("added_at").Find(&rows).Error; err != nil {
		return nil, err
	}

	installs := make([]domain.JavaInstall, 0, len(rows))
	for _, row := range rows {
		installs = append(installs, domain.JavaInstall{
			Path:    row.Path,
			Version: row.Version,
			Major:   row.Major,
			AddedAt: row.AddedAt,
		})
	}
	return installs, nil
}

func (s *GormStore) SaveJavaPath(install domain.JavaInstall) error {
	row := JavaPath{
		Path:    install.Path,
		Version: install.Version,
		Major:   install.Major,
		AddedAt: install.AddedAt,
	}
	result := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: java path %s", domain.ErrExists, install.Path)
	}
	return nil
}

func (s *GormStore) DeleteJavaPath(path string) error {
	result := s.db.Delete(&JavaPath{}, "path = ?", path)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: java path %s", domain.ErrNotFound, path)
	}
	return nil
}
