package database

import (
	"time"

	"gorm.io/datatypes"
)

// User 表示系统中的账号信息。Images 以 JSON 数组整体存放在账号行上，
// 每次变更都会整列重写。
type User struct {
	ID           uint                       `gorm:"primaryKey"`
	FullName     string                     `gorm:"size:128;not null"`
	Email        string                     `gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string                     `gorm:"size:255;not null"`
	Role         string                     `gorm:"size:16;not null;index"`
	ImagePath    *string                    `gorm:"size:512"`
	Images       datatypes.JSONSlice[Image] `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Image is one uploaded showcase picture. Path is the stored object name,
// unique per file.
type Image struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Job 表示一条招聘信息，创建后不可修改。
type Job struct {
	ID          uint      `gorm:"primaryKey"`
	CompanyName string    `gorm:"size:255;not null"`
	Title       string    `gorm:"size:255;not null"`
	Description string    `gorm:"type:text;not null"`
	Salary      float64   `gorm:"not null"`
	CreatedBy   string    `gorm:"size:255;not null;index"`
	CreatedAt   time.Time `gorm:"index"`
	UpdatedAt   time.Time
}
