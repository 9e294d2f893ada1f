package store

import (
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// gorm 模型：用户与订阅走 gorm，目录节点走 database/sql（见 entry_store.go）。
// AutoMigrate 同时负责建出目录节点三张表，保持一处定义。

type User struct {
	ID           string `gorm:"primaryKey;size:36"`
	Email        string `gorm:"uniqueIndex;size:255"`
	PasswordHash []byte
	AvatarURL    string `gorm:"size:512"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Subscription struct {
	ID        string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"index;size:36"`
	Status    string `gorm:"size:32"` // "active" / "canceled" / ...
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Workspace struct {
	ID        string `gorm:"primaryKey;size:36"`
	Title     string `gorm:"size:255"`
	IconID    string `gorm:"size:64"`
	Data      string `gorm:"type:longtext"`
	InTrash   string `gorm:"size:255"`
	BannerURL string `gorm:"size:512"`
	OwnerID   string `gorm:"index;size:36"`
	CreatedAt time.Time
}

type Folder struct {
	ID          string `gorm:"primaryKey;size:36"`
	Title       string `gorm:"size:255"`
	IconID      string `gorm:"size:64"`
	Data        string `gorm:"type:longtext"`
	InTrash     string `gorm:"size:255"`
	BannerURL   string `gorm:"size:512"`
	WorkspaceID string `gorm:"index;size:36"`
	CreatedAt   time.Time
}

type File struct {
	ID        string `gorm:"primaryKey;size:36"`
	Title     string `gorm:"size:255"`
	IconID    string `gorm:"size:64"`
	Data      string `gorm:"type:longtext"`
	InTrash   string `gorm:"size:255"`
	BannerURL string `gorm:"size:512"`
	FolderID  string `gorm:"index;size:36"`
	CreatedAt time.Time
}

func InitMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&User{}, &Subscription{}, &Workspace{}, &Folder{}, &File{}); err != nil {
		return nil, err
	}
	return db, nil
}
